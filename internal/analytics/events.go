package analytics

import "time"

type EventType string

const (
	EventDocumentUploaded EventType = "document_uploaded"
	EventDocumentDeleted  EventType = "document_deleted"
)

// CorpusEvent describes one structural change to the corpus. Documents and
// Terms are the live document count and vocabulary size after the change.
type CorpusEvent struct {
	Type          EventType `json:"type"`
	DocumentID    string    `json:"document_id"`
	OwnerID       string    `json:"owner_id"`
	CorpusVersion uint64    `json:"corpus_version"`
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	ProcessingMs  int64     `json:"processing_ms,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id,omitempty"`
}
