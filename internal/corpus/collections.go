package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tfidf"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/tracing"
)

// CollectionStore is the durable collection table. *store.Store satisfies
// it. Memberships of a deleted document must disappear with the document.
type CollectionStore interface {
	SaveCollection(ctx context.Context, c *collection.Collection) error
	DeleteCollection(ctx context.Context, id string) error
	AddMember(ctx context.Context, collectionID, documentID string) error
	RemoveMember(ctx context.Context, collectionID, documentID string) error
	LoadCollections(ctx context.Context, fn func(*collection.Collection) error) (int, error)
}

func (e *Engine) CreateCollection(ctx context.Context, ownerID, name, description string) (*collection.Collection, error) {
	c, err := collection.New(ownerID, name, description)
	if err != nil {
		return nil, err
	}
	if e.collectionStore != nil {
		if err := e.collectionStore.SaveCollection(ctx, c); err != nil {
			return nil, err
		}
	}
	if err := e.collections.Put(c); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("collection created", "collection_id", c.ID, "owner_id", c.OwnerID)
	return c, nil
}

// ListCollections returns ownerID's collections, newest first, with members
// limited to live documents.
func (e *Engine) ListCollections(ownerID string) []*collection.Collection {
	out := e.collections.List(ownerID)
	for _, c := range out {
		e.liveMembers(c)
	}
	return out
}

// GetCollection returns the collection with members limited to live
// documents.
func (e *Engine) GetCollection(_ context.Context, id string) (*collection.Collection, error) {
	c, err := e.collections.Get(id)
	if err != nil {
		return nil, err
	}
	e.liveMembers(c)
	return c, nil
}

func (e *Engine) liveMembers(c *collection.Collection) {
	docs, _ := e.index.Members(c.DocumentIDs)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	c.DocumentIDs = ids
}

// DeleteCollection removes the collection. Its documents are untouched.
func (e *Engine) DeleteCollection(ctx context.Context, id string) error {
	if _, err := e.collections.Get(id); err != nil {
		return err
	}
	if e.collectionStore != nil {
		if err := e.collectionStore.DeleteCollection(ctx, id); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}
	if err := e.collections.Delete(id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("collection deleted", "collection_id", id)
	return nil
}

// AddToCollection makes documentID a member of collectionID. Both must exist
// and belong to the same owner. Adding a member twice is a no-op.
func (e *Engine) AddToCollection(ctx context.Context, collectionID, documentID string) error {
	c, err := e.collections.Get(collectionID)
	if err != nil {
		return err
	}
	doc, err := e.index.GetDocument(documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != c.OwnerID {
		return apperrors.NotFound("document %s not found", documentID)
	}
	if e.collectionStore != nil {
		if err := e.collectionStore.AddMember(ctx, collectionID, documentID); err != nil {
			return err
		}
	}
	added, err := e.collections.Add(collectionID, documentID)
	if err != nil {
		return err
	}
	// A delete that ran between the lookup above and Add has already
	// called Forget, so the membership is dropped here instead.
	if _, err := e.index.GetDocument(documentID); err != nil {
		e.collections.Remove(collectionID, documentID)
		return err
	}
	if added {
		logger.FromContext(ctx).Info("document added to collection",
			"collection_id", collectionID,
			"document_id", documentID,
		)
	}
	return nil
}

// RemoveFromCollection drops documentID from collectionID. Removing a
// non-member is a no-op.
func (e *Engine) RemoveFromCollection(ctx context.Context, collectionID, documentID string) error {
	if _, err := e.collections.Get(collectionID); err != nil {
		return err
	}
	if e.collectionStore != nil {
		if err := e.collectionStore.RemoveMember(ctx, collectionID, documentID); err != nil {
			return err
		}
	}
	_, err := e.collections.Remove(collectionID, documentID)
	return err
}

// CollectionStatistics scores the combined text of the collection's live
// documents, with IDF taken over the collection alone. A limit of zero
// returns every term.
func (e *Engine) CollectionStatistics(ctx context.Context, collectionID string, limit int) (*tfidf.AggregateResult, error) {
	if err := e.checkLimit(limit); err != nil {
		return nil, err
	}
	_, span := tracing.StartChildSpan(ctx, "corpus.collection_statistics")
	defer span.End()

	c, err := e.collections.Get(collectionID)
	if err != nil {
		return nil, err
	}
	docs, version := e.index.Members(c.DocumentIDs)
	span.SetAttr("documents", len(docs))
	return tfidf.Aggregate(c.ID, docs, version, limit), nil
}

// CollectionTfIdf scores documentID as GetTfIdf does, but counts N and DF
// over the collection's live documents only. A document outside the
// collection is a validation error. Results are not cached.
func (e *Engine) CollectionTfIdf(ctx context.Context, collectionID, documentID string, limit int) (*tfidf.Result, error) {
	if err := e.checkLimit(limit); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartChildSpan(ctx, "corpus.collection_tfidf")
	defer span.End()

	c, err := e.collections.Get(collectionID)
	if err != nil {
		return nil, err
	}
	docs, version := e.index.Members(c.DocumentIDs)
	for _, doc := range docs {
		if doc.ID != documentID {
			continue
		}
		res, err := tfidf.Compute(doc, tfidf.ScopeSnapshot(docs, version))
		if err != nil {
			e.reportInvariant(ctx, "collection tfidf", err)
			return nil, err
		}
		return res.Top(limit), nil
	}
	if _, err := e.index.GetDocument(documentID); err != nil {
		return nil, err
	}
	return nil, apperrors.Validation("document %s is not in collection %s", documentID, collectionID)
}

func (e *Engine) checkLimit(limit int) error {
	if limit < 0 || limit > e.limits.MaxTermLimit {
		return apperrors.Validation("limit must be between 1 and %d", e.limits.MaxTermLimit)
	}
	return nil
}

func (e *Engine) rehydrateCollections(ctx context.Context) (int, error) {
	if e.collectionStore == nil {
		return 0, nil
	}
	n, err := e.collectionStore.LoadCollections(ctx, e.collections.Put)
	if err != nil {
		return n, fmt.Errorf("rehydrating collections: %w", err)
	}
	return n, nil
}
