package tfidf

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/registry"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

type TermScore struct {
	Term  string  `json:"term"`
	Count int     `json:"count"`
	TF    float64 `json:"tf"`
	IDF   float64 `json:"idf"`
	Score float64 `json:"score"`
}

// Result is the TF-IDF view of one document at one corpus version.
type Result struct {
	DocumentID string      `json:"document_id"`
	Version    uint64      `json:"corpus_version"`
	Documents  int         `json:"documents"`
	Terms      []TermScore `json:"terms"`
}

// Compute scores every term of doc against snap. Terms are ordered by
// descending score, ties broken by term. A document term with DF below one
// means the registry and the index disagree and is reported as
// ErrInvariantViolation.
func Compute(doc *index.Document, snap registry.Snapshot) (*Result, error) {
	if doc.TotalTerms <= 0 {
		return nil, apperrors.Invariant("document %s has no terms", doc.ID)
	}
	total := float64(doc.TotalTerms)
	terms := make([]TermScore, 0, len(doc.Counts))
	for term, count := range doc.Counts {
		df := snap.DocFreq(term)
		if df < 1 || df > snap.Documents {
			return nil, apperrors.Invariant("term %q of document %s has df %d with %d documents",
				term, doc.ID, df, snap.Documents)
		}
		tf := float64(count) / total
		idf := computeIDF(snap.Documents, df)
		terms = append(terms, TermScore{
			Term:  term,
			Count: count,
			TF:    tf,
			IDF:   idf,
			Score: tf * idf,
		})
	}
	rank(terms)
	return &Result{
		DocumentID: doc.ID,
		Version:    snap.Version,
		Documents:  snap.Documents,
		Terms:      terms,
	}, nil
}

// Top returns a shallow copy of r holding at most limit terms. A
// non-positive limit keeps every term.
func (r *Result) Top(limit int) *Result {
	out := *r
	if limit > 0 && len(out.Terms) > limit {
		out.Terms = out.Terms[:limit:limit]
	}
	return &out
}

// Lookup returns the score entry for term.
func (r *Result) Lookup(term string) (TermScore, bool) {
	for _, ts := range r.Terms {
		if ts.Term == term {
			return ts, true
		}
	}
	return TermScore{}, false
}

func rank(terms []TermScore) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Term < terms[j].Term
	})
}

func computeIDF(documents, docFreq int) float64 {
	if docFreq == documents {
		return 0
	}
	return math.Log(float64(documents) / float64(docFreq))
}
