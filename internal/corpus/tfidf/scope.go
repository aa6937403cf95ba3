package tfidf

import (
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/registry"
)

// ScopeSnapshot counts document frequencies over docs alone, as if they were
// the whole corpus. Compute against it scores a document within a
// collection.
func ScopeSnapshot(docs []*index.Document, version uint64) registry.Snapshot {
	df := make(map[string]int)
	for _, doc := range docs {
		for term := range doc.Counts {
			df[term]++
		}
	}
	return registry.Snapshot{DF: df, Documents: len(docs), Version: version}
}

// AggregateResult scores the combined text of a set of documents.
type AggregateResult struct {
	CollectionID string      `json:"collection_id"`
	Version      uint64      `json:"corpus_version"`
	Documents    int         `json:"documents"`
	TotalTerms   int         `json:"total_terms"`
	Terms        []TermScore `json:"terms"`
}

// Aggregate merges the term counts of docs into one virtual document and
// scores it against the DF of docs. TF is the merged count over the merged
// total; IDF is ln(N/DF) with N the number of docs. An empty set yields no
// terms. At most limit terms are kept when limit is positive.
func Aggregate(collectionID string, docs []*index.Document, version uint64, limit int) *AggregateResult {
	res := &AggregateResult{
		CollectionID: collectionID,
		Version:      version,
		Documents:    len(docs),
		Terms:        []TermScore{},
	}
	if len(docs) == 0 {
		return res
	}
	snap := ScopeSnapshot(docs, version)
	merged := make(map[string]int, len(snap.DF))
	for _, doc := range docs {
		for term, count := range doc.Counts {
			merged[term] += count
		}
		res.TotalTerms += doc.TotalTerms
	}

	total := float64(res.TotalTerms)
	terms := make([]TermScore, 0, len(merged))
	for term, count := range merged {
		tf := float64(count) / total
		idf := computeIDF(snap.Documents, snap.DocFreq(term))
		terms = append(terms, TermScore{Term: term, Count: count, TF: tf, IDF: idf, Score: tf * idf})
	}
	rank(terms)
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit:limit]
	}
	res.Terms = terms
	return res
}
