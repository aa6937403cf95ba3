// Package registry maintains corpus-wide document frequencies.
//
// For every term currently present in at least one live document the
// Registry stores how many live documents contain it (DF), together with the
// live document count (N) and a monotonically increasing corpus version.
// Mutations are serialised by a single writer lock; readers take consistent
// point-in-time snapshots and never observe a half-applied update.
package registry

import (
	"iter"
	"maps"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

// Snapshot is an immutable, consistent view of the registry. DF holds only the
// terms the snapshot was taken for (or every term for a full snapshot).
type Snapshot struct {
	DF        map[string]int
	Documents int
	Version   uint64
}

// DocFreq returns the document frequency of term in the snapshot.
func (s Snapshot) DocFreq(term string) int {
	return s.DF[term]
}

// Registry is the single shared-mutable aggregate of the corpus. It holds
// counts only, never references to documents.
type Registry struct {
	mu        sync.RWMutex
	df        map[string]int
	documents int
	version   uint64
}

// New returns an empty registry at version 0.
func New() *Registry {
	return &Registry{
		df: make(map[string]int),
	}
}

// Register records a new live document containing the given distinct terms.
// Duplicate terms in the sequence are counted once. It returns the new corpus
// version.
func (r *Registry) Register(terms iter.Seq[string]) uint64 {
	distinct := collectDistinct(terms)

	r.mu.Lock()
	defer r.mu.Unlock()
	for term := range distinct {
		r.df[term]++
	}
	r.documents++
	r.version++
	return r.version
}

// Unregister removes a live document containing the given distinct terms.
// Terms whose DF reaches zero are deleted. If N or any DF would go negative
// the call fails with ErrInvariantViolation and the registry is left
// untouched.
func (r *Registry) Unregister(terms iter.Seq[string]) (uint64, error) {
	distinct := collectDistinct(terms)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.documents == 0 {
		return r.version, apperrors.Invariant("unregister with no live documents")
	}
	for term := range distinct {
		if r.df[term] == 0 {
			return r.version, apperrors.Invariant("unregister of term %q with zero document frequency", term)
		}
	}
	for term := range distinct {
		if r.df[term] == 1 {
			delete(r.df, term)
		} else {
			r.df[term]--
		}
	}
	r.documents--
	r.version++
	return r.version, nil
}

// Snapshot returns a consistent view. With no terms it copies the full DF
// mapping; otherwise only the requested terms are copied, which keeps reads
// proportional to the size of one document rather than the vocabulary.
func (r *Registry) Snapshot(terms ...string) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(terms)
}

// SnapshotFor is Snapshot over a lazy term sequence.
func (r *Registry) SnapshotFor(terms iter.Seq[string]) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	df := make(map[string]int)
	for term := range terms {
		if n, ok := r.df[term]; ok {
			df[term] = n
		}
	}
	return Snapshot{DF: df, Documents: r.documents, Version: r.version}
}

func (r *Registry) snapshotLocked(terms []string) Snapshot {
	var df map[string]int
	if len(terms) == 0 {
		df = maps.Clone(r.df)
	} else {
		df = make(map[string]int, len(terms))
		for _, term := range terms {
			if n, ok := r.df[term]; ok {
				df[term] = n
			}
		}
	}
	return Snapshot{DF: df, Documents: r.documents, Version: r.version}
}

// Version returns the current corpus version.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Stats returns the live document count, vocabulary size and version.
func (r *Registry) Stats() (documents, terms int, version uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.documents, len(r.df), r.version
}

func collectDistinct(terms iter.Seq[string]) map[string]struct{} {
	distinct := make(map[string]struct{})
	for term := range terms {
		distinct[term] = struct{}{}
	}
	return distinct
}
