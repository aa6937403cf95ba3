// Package index owns the live document set and keeps the corpus registry in
// step with it.
//
// Every insert or removal updates the document map and the registry inside
// the same index write lock, so a reader holding the index read lock always
// sees a document set and DF table that agree with each other. The registry
// is only ever mutated from here.
package index

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/registry"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

type Index struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	byHash   map[hashKey]string
	registry *registry.Registry
	tok      *tokenizer.Tokenizer
}

type hashKey struct {
	owner string
	hash  string
}

func New(reg *registry.Registry, tok *tokenizer.Tokenizer) *Index {
	return &Index{
		docs:     make(map[string]*Document),
		byHash:   make(map[hashKey]string),
		registry: reg,
		tok:      tok,
	}
}

// Registry returns the registry this index maintains.
func (x *Index) Registry() *registry.Registry {
	return x.registry
}

// AddDocument tokenizes text, stores the resulting Document and registers
// its distinct terms.
func (x *Index) AddDocument(id string, text string) (*Document, error) {
	doc, err := Build(x.tok, id, text)
	if err != nil {
		return nil, err
	}
	if _, err := x.Insert(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Insert commits an already built document and returns the new corpus
// version. The registry is updated first; the document becomes visible only
// once that succeeded, and both happen under the same lock.
func (x *Index) Insert(doc *Document) (uint64, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.docs[doc.ID]; exists {
		return 0, apperrors.Duplicate("document %s already indexed", doc.ID)
	}
	if doc.ContentHash != "" {
		if existing, ok := x.byHash[hashKey{doc.OwnerID, doc.ContentHash}]; ok {
			return 0, apperrors.Duplicate("content already uploaded as document %s", existing)
		}
	}
	version := x.registry.Register(doc.DistinctTerms())
	x.docs[doc.ID] = doc
	if doc.ContentHash != "" {
		x.byHash[hashKey{doc.OwnerID, doc.ContentHash}] = doc.ID
	}
	return version, nil
}

// RemoveDocument unregisters and drops the document. If the registry rejects
// the update the document stays in place.
func (x *Index) RemoveDocument(id string) (*Document, uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	doc, ok := x.docs[id]
	if !ok {
		return nil, 0, apperrors.NotFound("document %s not found", id)
	}
	version, err := x.registry.Unregister(doc.DistinctTerms())
	if err != nil {
		return nil, 0, err
	}
	delete(x.docs, id)
	key := hashKey{doc.OwnerID, doc.ContentHash}
	if x.byHash[key] == id {
		delete(x.byHash, key)
	}
	return doc, version, nil
}

func (x *Index) GetDocument(id string) (*Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[id]
	if !ok {
		return nil, apperrors.NotFound("document %s not found", id)
	}
	return doc, nil
}

// Read returns the document together with a registry snapshot covering its
// terms, taken atomically with respect to inserts and removals.
func (x *Index) Read(id string) (*Document, registry.Snapshot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[id]
	if !ok {
		return nil, registry.Snapshot{}, apperrors.NotFound("document %s not found", id)
	}
	return doc, x.registry.SnapshotFor(doc.DistinctTerms()), nil
}

// Members returns the live documents among ids, in the order given, and the
// corpus version they were read at. Unknown and repeated ids are skipped.
func (x *Index) Members(ids []string) ([]*Document, uint64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	docs := make([]*Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doc, ok := x.docs[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, doc)
	}
	return docs, x.registry.Version()
}

// FindByHash returns the live document of owner with the given content hash.
func (x *Index) FindByHash(owner, hash string) (*Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byHash[hashKey{owner, hash}]
	if !ok {
		return nil, false
	}
	return x.docs[id], true
}

// List returns a page of documents newest first, together with the total
// number of matching documents. An empty owner matches every document.
func (x *Index) List(owner string, offset, limit int) ([]*Document, int) {
	x.mu.RLock()
	matched := make([]*Document, 0, len(x.docs))
	for _, doc := range x.docs {
		if owner == "" || doc.OwnerID == owner {
			matched = append(matched, doc)
		}
	}
	x.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	total := len(matched)
	offset = max(offset, 0)
	if offset >= total {
		return []*Document{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// CheckConsistency recomputes DF and N from the live documents and compares
// them with the registry. A mismatch is reported as ErrInvariantViolation.
func (x *Index) CheckConsistency() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	expected := make(map[string]int)
	for _, doc := range x.docs {
		if err := doc.Validate(); err != nil {
			return err
		}
		for term := range doc.Counts {
			expected[term]++
		}
	}
	snap := x.registry.Snapshot()
	if snap.Documents != len(x.docs) {
		return apperrors.Invariant("registry has %d documents, index has %d", snap.Documents, len(x.docs))
	}
	if len(snap.DF) != len(expected) {
		return apperrors.Invariant("registry has %d terms, documents contain %d", len(snap.DF), len(expected))
	}
	for term, df := range expected {
		if snap.DF[term] != df {
			return apperrors.Invariant("term %q: registry df %d, documents df %d", term, snap.DF[term], df)
		}
		if df > snap.Documents {
			return apperrors.Invariant("term %q: df %d exceeds document count %d", term, df, snap.Documents)
		}
	}
	return nil
}
