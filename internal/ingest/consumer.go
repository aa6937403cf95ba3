package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/storage"
)

// Uploader is the part of the corpus engine the consumer drives.
type Uploader interface {
	UploadDocument(ctx context.Context, req corpus.UploadRequest) (*index.Document, error)
}

// Handler turns ingest events into uploads.
type Handler struct {
	uploader Uploader
	blobs    storage.Store
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

func NewHandler(uploader Uploader, blobs storage.Store) *Handler {
	return &Handler{
		uploader: uploader,
		blobs:    blobs,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    isTransient,
		},
		logger: slog.Default().With("component", "ingest-consumer"),
	}
}

// HandleMessage is the kafka.MessageHandler for the ingest topic. Messages
// that can never succeed (undecodable, invalid, duplicate, missing bytes)
// are logged and committed, and the staged bytes of a rejected upload are
// deleted. Only transient failures are returned, which leaves the message
// uncommitted for redelivery.
func (h *Handler) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			h.logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		if event.IdempotencyKey != "" {
			ctx = logger.WithRequestID(ctx, event.IdempotencyKey)
		}
		log := logger.FromContext(ctx)
		if err := event.Validate(); err != nil {
			log.Error("rejecting ingest event", "error", err, "key", string(key))
			return nil
		}

		var data []byte
		err = resilience.Retry(ctx, "ingest-fetch", h.retry, func() error {
			var ferr error
			data, ferr = h.blobs.Get(ctx, event.StorageKey)
			return ferr
		})
		if err != nil {
			if isTransient(err) {
				return fmt.Errorf("fetching %s: %w", event.StorageKey, err)
			}
			log.Error("ingest bytes unavailable", "storage_key", event.StorageKey, "error", err)
			return nil
		}

		doc, err := h.uploader.UploadDocument(ctx, corpus.UploadRequest{
			OwnerID:    event.OwnerID,
			Title:      event.Title,
			Data:       data,
			StorageKey: event.StorageKey,
		})
		switch {
		case err == nil:
			log.Info("ingested document",
				"document_id", doc.ID,
				"owner_id", doc.OwnerID,
				"storage_key", event.StorageKey,
			)
			return nil
		case errors.Is(err, apperrors.ErrDuplicate):
			log.Info("ingest content already in corpus", "storage_key", event.StorageKey, "error", err)
			h.discardStaged(ctx, event)
			return nil
		case !isTransient(err):
			log.Error("ingest upload rejected", "storage_key", event.StorageKey, "error", err)
			h.discardStaged(ctx, event)
			return nil
		default:
			return fmt.Errorf("ingesting %s: %w", event.StorageKey, err)
		}
	}
}

// discardStaged deletes the bytes Submit parked for a rejected event. Keys
// outside the owner's pending namespace may belong to live documents and are
// left alone.
func (h *Handler) discardStaged(ctx context.Context, event IngestEvent) {
	if !strings.HasPrefix(event.StorageKey, storage.Key(event.OwnerID, pendingPrefix)) {
		return
	}
	if err := h.blobs.Delete(context.WithoutCancel(ctx), event.StorageKey); err != nil {
		logger.FromContext(ctx).Warn("failed to delete staged ingest bytes",
			"storage_key", event.StorageKey,
			"error", err,
		)
	}
}

// isTransient reports whether retrying might help. Client-side errors and
// coordination bugs never improve with another attempt.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrInvariantViolation),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
