package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/kafka"
)

// Publisher is the sink for corpus events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const maxBatch = 100

// Collector publishes corpus events asynchronously. Track never blocks: when
// the buffer is full the event is dropped and counted.
type Collector struct {
	publisher Publisher
	eventCh   chan CorpusEvent
	logger    *slog.Logger
	done      chan struct{}
	dropped   atomic.Int64
	published atomic.Int64
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan CorpusEvent, bufferSize),
		logger:    slog.Default().With("component", "corpus-events"),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. Events already buffered are drained in
// batches of up to maxBatch.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, c.batchWith(event))
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("corpus event collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event CorpusEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("corpus event dropped (buffer full)",
			"type", event.Type,
			"document_id", event.DocumentID,
		)
	}
}

// Close stops accepting events and waits for the buffer to be published.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// Stats returns how many events were published and dropped.
func (c *Collector) Stats() (published, dropped int64) {
	return c.published.Load(), c.dropped.Load()
}

func (c *Collector) batchWith(first CorpusEvent) []CorpusEvent {
	batch := []CorpusEvent{first}
	for len(batch) < maxBatch {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), c.batchWith(event))
		default:
			return
		}
	}
}

func (c *Collector) publish(ctx context.Context, batch []CorpusEvent) {
	events := make([]kafka.Event, len(batch))
	for i, e := range batch {
		events[i] = kafka.Event{Key: e.DocumentID, Value: e}
	}
	if err := c.publisher.PublishBatch(ctx, events); err != nil {
		c.logger.Error("failed to publish corpus events", "count", len(events), "error", err)
		return
	}
	c.published.Add(int64(len(events)))
}
