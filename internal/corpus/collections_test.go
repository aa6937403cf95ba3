package corpus

import (
	"context"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

type memCollections struct {
	mu   sync.Mutex
	rows map[string]*collection.Collection
}

func newMemCollections() *memCollections {
	return &memCollections{rows: make(map[string]*collection.Collection)}
}

func (m *memCollections) SaveCollection(_ context.Context, c *collection.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.DocumentIDs = slices.Clone(c.DocumentIDs)
	m.rows[c.ID] = &cp
	return nil
}

func (m *memCollections) DeleteCollection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperrors.NotFound("collection %s not found", id)
	}
	delete(m.rows, id)
	return nil
}

func (m *memCollections) AddMember(_ context.Context, collectionID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[collectionID]
	if !ok {
		return apperrors.NotFound("collection %s not found", collectionID)
	}
	if !slices.Contains(c.DocumentIDs, documentID) {
		c.DocumentIDs = append(c.DocumentIDs, documentID)
	}
	return nil
}

func (m *memCollections) RemoveMember(_ context.Context, collectionID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[collectionID]; ok {
		c.DocumentIDs = slices.DeleteFunc(c.DocumentIDs, func(id string) bool { return id == documentID })
	}
	return nil
}

func (m *memCollections) LoadCollections(_ context.Context, fn func(*collection.Collection) error) (int, error) {
	m.mu.Lock()
	rows := make([]*collection.Collection, 0, len(m.rows))
	for _, c := range m.rows {
		cp := *c
		cp.DocumentIDs = slices.Clone(c.DocumentIDs)
		rows = append(rows, &cp)
	}
	m.mu.Unlock()
	for _, c := range rows {
		if err := fn(c); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (f *engineFixture) collection(t *testing.T, owner, name string, docIDs ...string) *collection.Collection {
	t.Helper()
	ctx := context.Background()
	c, err := f.engine.CreateCollection(ctx, owner, name, "")
	require.NoError(t, err)
	for _, id := range docIDs {
		require.NoError(t, f.engine.AddToCollection(ctx, c.ID, id))
	}
	return c
}

func TestCollectionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "alice", "kept words")

	_, err := f.engine.CreateCollection(ctx, "alice", "  ", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	c, err := f.engine.CreateCollection(ctx, "alice", "reading", "things to read")
	require.NoError(t, err)
	assert.Equal(t, "things to read", c.Description)

	require.NoError(t, f.engine.AddToCollection(ctx, c.ID, doc.ID))
	require.NoError(t, f.engine.AddToCollection(ctx, c.ID, doc.ID))
	got, err := f.engine.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, got.DocumentIDs)

	list := f.engine.ListCollections("alice")
	require.Len(t, list, 1)
	assert.Equal(t, "reading", list[0].Name)
	assert.Empty(t, f.engine.ListCollections("bob"))

	require.NoError(t, f.engine.RemoveFromCollection(ctx, c.ID, doc.ID))
	require.NoError(t, f.engine.RemoveFromCollection(ctx, c.ID, doc.ID))
	got, err = f.engine.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DocumentIDs)

	require.NoError(t, f.engine.DeleteCollection(ctx, c.ID))
	assert.ErrorIs(t, f.engine.DeleteCollection(ctx, c.ID), apperrors.ErrNotFound)
	_, err = f.engine.GetDocument(ctx, doc.ID)
	assert.NoError(t, err)
}

func TestAddToCollectionChecksDocumentAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.collection(t, "alice", "mine")
	bobs := f.upload(t, "bob", "not yours")

	assert.ErrorIs(t, f.engine.AddToCollection(ctx, c.ID, bobs.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, f.engine.AddToCollection(ctx, c.ID, "missing"), apperrors.ErrNotFound)
	assert.ErrorIs(t, f.engine.AddToCollection(ctx, "missing", bobs.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, f.engine.RemoveFromCollection(ctx, "missing", bobs.ID), apperrors.ErrNotFound)

	got, err := f.engine.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DocumentIDs)
}

func TestDeletedDocumentLeavesItsCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.upload(t, "alice", "first text")
	b := f.upload(t, "alice", "second text")
	c := f.collection(t, "alice", "both", a.ID, b.ID)

	require.NoError(t, f.engine.DeleteDocument(ctx, a.ID))
	got, err := f.engine.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.DocumentIDs)

	member, err := f.engine.collections.Contains(c.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestCollectionTfIdfUsesCollectionDocumentFrequencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.upload(t, "alice", "cat dog")
	b := f.upload(t, "alice", "cat fish")
	outside := f.upload(t, "alice", "cat bird")
	f.upload(t, "alice", "dog dog")
	c := f.collection(t, "alice", "pets", a.ID, b.ID)

	scoped, err := f.engine.CollectionTfIdf(ctx, c.ID, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.Documents)
	cat, ok := scoped.Lookup("cat")
	require.True(t, ok)
	assert.Zero(t, cat.IDF)
	dog, ok := scoped.Lookup("dog")
	require.True(t, ok)
	assert.InDelta(t, math.Log(2), dog.IDF, 1e-9)

	global, err := f.engine.GetTfIdf(ctx, a.ID, 0)
	require.NoError(t, err)
	cat, ok = global.Lookup("cat")
	require.True(t, ok)
	assert.InDelta(t, math.Log(4.0/3.0), cat.IDF, 1e-9)

	top, err := f.engine.CollectionTfIdf(ctx, c.ID, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, top.Terms, 1)
	assert.Equal(t, "dog", top.Terms[0].Term)

	_, err = f.engine.CollectionTfIdf(ctx, c.ID, outside.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.engine.CollectionTfIdf(ctx, c.ID, "missing", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.engine.CollectionTfIdf(ctx, "missing", a.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.engine.CollectionTfIdf(ctx, c.ID, a.ID, 11)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCollectionStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.upload(t, "alice", "cat dog")
	b := f.upload(t, "alice", "cat fish")
	c := f.collection(t, "alice", "pets", a.ID, b.ID)

	stats, err := f.engine.CollectionStatistics(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stats.CollectionID)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 4, stats.TotalTerms)
	require.Len(t, stats.Terms, 3)
	assert.Equal(t, "dog", stats.Terms[0].Term)
	assert.InDelta(t, 0.25*math.Log(2), stats.Terms[0].Score, 1e-9)
	assert.Equal(t, "fish", stats.Terms[1].Term)
	assert.Equal(t, "cat", stats.Terms[2].Term)
	assert.Equal(t, 2, stats.Terms[2].Count)
	assert.Zero(t, stats.Terms[2].Score)

	limited, err := f.engine.CollectionStatistics(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited.Terms, 2)

	empty := f.collection(t, "alice", "empty")
	stats, err = f.engine.CollectionStatistics(ctx, empty.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Empty(t, stats.Terms)

	_, err = f.engine.CollectionStatistics(ctx, "missing", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRehydrateRestoresCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs := newMemCollections()
	f.engine.collectionStore = cs
	a := f.upload(t, "alice", "alpha beta")
	b := f.upload(t, "alice", "beta gamma")
	c := f.collection(t, "alice", "greek", a.ID, b.ID)
	want, err := f.engine.CollectionStatistics(ctx, c.ID, 0)
	require.NoError(t, err)

	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	require.NoError(t, err)
	restarted, err := NewEngine(Options{Tokenizer: tok, Store: f.store, Collections: cs, Blobs: f.blobs})
	require.NoError(t, err)
	_, err = restarted.Rehydrate(ctx)
	require.NoError(t, err)

	got, err := restarted.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "greek", got.Name)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, got.DocumentIDs)

	stats, err := restarted.CollectionStatistics(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, want.Terms, stats.Terms)

	require.NoError(t, restarted.DeleteCollection(ctx, c.ID))
	_, err = cs.LoadCollections(ctx, func(*collection.Collection) error {
		t.Fatal("collection row should be gone")
		return nil
	})
	require.NoError(t, err)
}
