package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/storage"
)

type flakyBlobs struct {
	storage.Store
	mu       sync.Mutex
	failures int
	gets     int
}

func (b *flakyBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	b.gets++
	fail := b.failures > 0
	if fail {
		b.failures--
	}
	b.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return b.Store.Get(ctx, key)
}

type capturePublisher struct {
	events []kafka.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func newEngine(t *testing.T) *corpus.Engine {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	require.NoError(t, err)
	e, err := corpus.NewEngine(corpus.Options{Tokenizer: tok})
	require.NoError(t, err)
	return e
}

func newBlobs(t *testing.T) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func encode(t *testing.T, e IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func fastRetry(h *Handler) {
	h.retry.InitialDelay = time.Millisecond
	h.retry.MaxDelay = 2 * time.Millisecond
}

func TestSubmitThenConsume(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	pub := &capturePublisher{}
	event, err := NewSubmitter(blobs, pub, 1024).Submit(ctx, "alice", "notes.txt", []byte("queued words queued"))
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "alice", pub.events[0].Key)
	assert.True(t, strings.HasPrefix(event.StorageKey, "alice/pending-"))

	engine := newEngine(t)
	handle := NewHandler(engine, blobs).HandleMessage()
	require.NoError(t, handle(ctx, []byte("alice"), encode(t, event)))

	docs, total := engine.ListDocuments("alice", 0, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, "notes.txt", docs[0].Title)
	assert.Equal(t, event.StorageKey, docs[0].StorageKey)
	assert.Equal(t, 3, docs[0].TotalTerms)

	// Redelivery resolves to the document already ingested.
	require.NoError(t, handle(ctx, []byte("alice"), encode(t, event)))
	assert.Equal(t, 1, engine.CorpusStats().Documents)
}

func TestSubmitRejectsEmptyAndCleansUpOnPublishFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)

	_, err := NewSubmitter(blobs, &capturePublisher{}, 0).Submit(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewSubmitter(blobs, &capturePublisher{}, 0).Submit(ctx, "", "t", []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewSubmitter(blobs, &capturePublisher{err: errors.New("no brokers")}, 0).Submit(ctx, "alice", "t", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestHandleMessageCommitsPoisonMessages(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	blobs := newBlobs(t)
	handle := NewHandler(engine, blobs).HandleMessage()

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, encode(t, IngestEvent{OwnerID: "alice"})))
	assert.NoError(t, handle(ctx, nil, encode(t, IngestEvent{OwnerID: "alice", StorageKey: "alice/missing"})))

	require.NoError(t, blobs.Put(ctx, "alice/empty", []byte("!!!")))
	assert.NoError(t, handle(ctx, nil, encode(t, IngestEvent{OwnerID: "alice", StorageKey: "alice/empty"})))
	assert.Zero(t, engine.CorpusStats().Documents)

	// Only staged keys are cleaned up.
	_, err := blobs.Get(ctx, "alice/empty")
	assert.NoError(t, err)
}

func TestRejectedIngestDeletesStagedBytes(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	sub := NewSubmitter(blobs, &capturePublisher{}, 1024)
	engine := newEngine(t)
	handle := NewHandler(engine, blobs).HandleMessage()

	empty, err := sub.Submit(ctx, "alice", "noise", []byte("!!! ???"))
	require.NoError(t, err)
	require.NoError(t, handle(ctx, nil, encode(t, empty)))
	_, err = blobs.Get(ctx, empty.StorageKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	first, err := sub.Submit(ctx, "alice", "a", []byte("same words"))
	require.NoError(t, err)
	second, err := sub.Submit(ctx, "alice", "b", []byte("same words"))
	require.NoError(t, err)
	require.NoError(t, handle(ctx, nil, encode(t, first)))
	require.NoError(t, handle(ctx, nil, encode(t, second)))

	_, err = blobs.Get(ctx, second.StorageKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	data, err := blobs.Get(ctx, first.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "same words", string(data))

	// A redelivered event resolves to the document that owns its bytes.
	require.NoError(t, handle(ctx, nil, encode(t, first)))
	_, err = blobs.Get(ctx, first.StorageKey)
	assert.NoError(t, err)
	assert.Equal(t, 1, engine.CorpusStats().Documents)
}

func TestHandleMessageRetriesTransientFetch(t *testing.T) {
	ctx := context.Background()
	blobs := &flakyBlobs{Store: newBlobs(t), failures: 2}
	require.NoError(t, blobs.Put(ctx, "bob/doc", []byte("retry me")))

	engine := newEngine(t)
	h := NewHandler(engine, blobs)
	fastRetry(h)
	require.NoError(t, h.HandleMessage()(ctx, nil, encode(t, IngestEvent{OwnerID: "bob", StorageKey: "bob/doc"})))
	assert.Equal(t, 3, blobs.gets)
	assert.Equal(t, 1, engine.CorpusStats().Documents)
}

func TestHandleMessageLeavesUncommittedWhenStorageStaysDown(t *testing.T) {
	ctx := context.Background()
	blobs := &flakyBlobs{Store: newBlobs(t), failures: 100}
	h := NewHandler(newEngine(t), blobs)
	fastRetry(h)

	err := h.HandleMessage()(ctx, nil, encode(t, IngestEvent{OwnerID: "bob", StorageKey: "bob/doc"}))
	require.Error(t, err)
	assert.Equal(t, h.retry.MaxAttempts, blobs.gets)
}

type failingUploader struct{ err error }

func (u failingUploader) UploadDocument(context.Context, corpus.UploadRequest) (*index.Document, error) {
	return nil, u.err
}

func TestHandleMessageUploadErrors(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	require.NoError(t, blobs.Put(ctx, "a/b", []byte("words")))
	msg := encode(t, IngestEvent{OwnerID: "a", StorageKey: "a/b"})

	err := NewHandler(failingUploader{errors.New("db down")}, blobs).HandleMessage()(ctx, nil, msg)
	assert.Error(t, err)

	err = NewHandler(failingUploader{apperrors.Invariant("df drift")}, blobs).HandleMessage()(ctx, nil, msg)
	assert.NoError(t, err)
}

func TestValidateListsEveryField(t *testing.T) {
	err := IngestEvent{Title: strings.Repeat("x", 2000)}.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
	msg := apperrors.Message(err, "")
	assert.Contains(t, msg, "owner_id")
	assert.Contains(t, msg, "storage_key")
	assert.Contains(t, msg, "title")
}
