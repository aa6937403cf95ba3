package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/storage"
)

// pendingPrefix marks staged bytes that no document owns yet.
const pendingPrefix = "pending-"

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Submitter is the producing side: it parks the bytes in blob storage under
// a pending key and publishes the event that the consumer picks up.
type Submitter struct {
	blobs     storage.Store
	publisher Publisher
	maxBytes  int
}

func NewSubmitter(blobs storage.Store, publisher Publisher, maxBytes int) *Submitter {
	return &Submitter{blobs: blobs, publisher: publisher, maxBytes: maxBytes}
}

// Submit stores data and queues it for ingestion. The returned event carries
// the storage key, which also serves as the idempotency key.
func (s *Submitter) Submit(ctx context.Context, ownerID, title string, data []byte) (IngestEvent, error) {
	if len(data) == 0 {
		return IngestEvent{}, apperrors.Validation("file is empty")
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return IngestEvent{}, apperrors.Validation("file exceeds %d bytes", s.maxBytes)
	}
	event := IngestEvent{
		OwnerID:     ownerID,
		Title:       title,
		StorageKey:  storage.Key(ownerID, pendingPrefix+uuid.NewString()),
		SubmittedAt: time.Now().UTC(),
	}
	event.IdempotencyKey = event.StorageKey
	if err := event.Validate(); err != nil {
		return IngestEvent{}, err
	}

	if err := s.blobs.Put(ctx, event.StorageKey, data); err != nil {
		return IngestEvent{}, fmt.Errorf("staging ingest bytes: %w", err)
	}
	if err := s.publisher.Publish(ctx, kafka.Event{Key: ownerID, Value: event}); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), event.StorageKey); derr != nil {
			err = fmt.Errorf("%w (cleanup: %v)", err, derr)
		}
		return IngestEvent{}, fmt.Errorf("publishing ingest event: %w", err)
	}
	return event, nil
}
