// Package ingest feeds documents into the corpus asynchronously. A producer
// stores the raw bytes in blob storage and publishes an IngestEvent naming
// them; the consumer here fetches the bytes and runs the normal upload path.
package ingest

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

const (
	maxTitleLength          = 1024
	maxIdempotencyKeyLength = 255
)

// IngestEvent is the payload of the document-ingest topic.
type IngestEvent struct {
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	StorageKey     string    `json:"storage_key"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// FieldErrors lists every invalid field of an event.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, field := range slices.Sorted(maps.Keys(e)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return strings.Join(parts, "; ")
}

// Validate returns an ErrValidation wrapping FieldErrors when the event
// cannot be processed.
func (e IngestEvent) Validate() error {
	errs := FieldErrors{}
	if strings.TrimSpace(e.OwnerID) == "" {
		errs["owner_id"] = "owner id is required"
	}
	if strings.TrimSpace(e.StorageKey) == "" {
		errs["storage_key"] = "storage key is required"
	}
	if len(e.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(e.IdempotencyKey) > maxIdempotencyKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLength)
	}
	if len(errs) > 0 {
		return apperrors.Validation("%s", errs.Error())
	}
	return nil
}
