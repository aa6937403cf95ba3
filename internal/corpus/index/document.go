package index

import (
	"iter"
	"maps"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

// Document is one uploaded text file. Once inserted into an Index it is
// never mutated; callers must treat Counts as read-only.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Title       string         `json:"title"`
	ContentHash string         `json:"content_hash"`
	StorageKey  string         `json:"storage_key,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	CreatedAt   time.Time      `json:"created_at"`
	TotalTerms  int            `json:"total_terms"`
	Counts      map[string]int `json:"-"`
}

// DistinctTerms yields every term of the document once.
func (d *Document) DistinctTerms() iter.Seq[string] {
	return maps.Keys(d.Counts)
}

// DistinctCount is the number of unique terms.
func (d *Document) DistinctCount() int {
	return len(d.Counts)
}

// Validate checks that the document has at least one term and that its
// occurrence counts sum to TotalTerms.
func (d *Document) Validate() error {
	if d.ID == "" {
		return apperrors.Validation("document id is required")
	}
	if len(d.Counts) == 0 || d.TotalTerms == 0 {
		return apperrors.Validation("document %s contains no terms", d.ID)
	}
	sum := 0
	for term, c := range d.Counts {
		if c < 1 {
			return apperrors.Invariant("document %s: term %q has count %d", d.ID, term, c)
		}
		sum += c
	}
	if sum != d.TotalTerms {
		return apperrors.Invariant("document %s: term counts sum to %d, total is %d", d.ID, sum, d.TotalTerms)
	}
	return nil
}

// Build tokenizes text into a new Document with the given id. Text that
// yields no terms is rejected with ErrValidation, since TF/IDF is undefined
// for an empty document.
func Build(tok *tokenizer.Tokenizer, id string, text string) (*Document, error) {
	counts, total := tok.Counts(text)
	if total == 0 {
		return nil, apperrors.Validation("document contains no terms after tokenization")
	}
	return &Document{
		ID:         id,
		Counts:     counts,
		TotalTerms: total,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
