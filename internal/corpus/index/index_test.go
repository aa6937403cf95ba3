package index

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/registry"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	require.NoError(t, err)
	return New(registry.New(), tok)
}

func TestAddDocumentBuildsCounts(t *testing.T) {
	x := newIndex(t)

	doc, err := x.AddDocument("doc1", "the cat sat on the mat")
	require.NoError(t, err)
	assert.Equal(t, 6, doc.TotalTerms)
	assert.Equal(t, 2, doc.Counts["the"])
	assert.Equal(t, 5, doc.DistinctCount())
	require.NoError(t, doc.Validate())

	snap := x.Registry().Snapshot()
	assert.Equal(t, 1, snap.Documents)
	assert.Equal(t, 1, snap.DocFreq("the"))
	require.NoError(t, x.CheckConsistency())
}

func TestAddEmptyDocumentLeavesRegistryUnchanged(t *testing.T) {
	x := newIndex(t)
	_, err := x.AddDocument("doc1", "cat")
	require.NoError(t, err)
	before := x.Registry().Snapshot()

	for _, text := range []string{"", "   ", "... 123 !!"} {
		_, err := x.AddDocument("empty", text)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), "text %q", text)
	}

	assert.Equal(t, before, x.Registry().Snapshot())
	assert.Equal(t, 1, x.Len())
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	x := newIndex(t)
	_, err := x.AddDocument("doc1", "cat")
	require.NoError(t, err)

	_, err = x.AddDocument("doc1", "dog")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
	assert.Equal(t, 1, x.Registry().Snapshot().Documents)
}

func TestInsertRejectsInconsistentDocument(t *testing.T) {
	x := newIndex(t)
	_, err := x.Insert(&Document{ID: "bad", Counts: map[string]int{"a": 2}, TotalTerms: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))
	assert.Zero(t, x.Len())
}

func TestRemoveDocument(t *testing.T) {
	x := newIndex(t)
	_, err := x.AddDocument("doc1", "the cat sat on the mat")
	require.NoError(t, err)
	_, err = x.AddDocument("doc2", "the dog ran")
	require.NoError(t, err)

	doc, version, err := x.RemoveDocument("doc1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", doc.ID)
	assert.Equal(t, uint64(3), version)

	snap := x.Registry().Snapshot()
	assert.Equal(t, 1, snap.Documents)
	_, hasCat := snap.DF["cat"]
	assert.False(t, hasCat)

	_, err = x.GetDocument("doc1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, _, err = x.Read("doc1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, _, err = x.RemoveDocument("doc1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	require.NoError(t, x.CheckConsistency())
}

func TestReadSnapshotCoversDocumentTerms(t *testing.T) {
	x := newIndex(t)
	_, err := x.AddDocument("doc1", "alpha beta")
	require.NoError(t, err)
	_, err = x.AddDocument("doc2", "beta gamma")
	require.NoError(t, err)

	doc, snap, err := x.Read("doc1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", doc.ID)
	assert.Equal(t, map[string]int{"alpha": 1, "beta": 2}, snap.DF)
	assert.Equal(t, 2, snap.Documents)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestFindByHashIsOwnerScoped(t *testing.T) {
	x := newIndex(t)
	doc, err := Build(x.tok, "doc1", "same words")
	require.NoError(t, err)
	doc.OwnerID = "alice"
	doc.ContentHash = "h1"
	_, err = x.Insert(doc)
	require.NoError(t, err)

	found, ok := x.FindByHash("alice", "h1")
	require.True(t, ok)
	assert.Equal(t, "doc1", found.ID)

	_, ok = x.FindByHash("bob", "h1")
	assert.False(t, ok)

	again, err := Build(x.tok, "doc2", "same words")
	require.NoError(t, err)
	again.OwnerID = "alice"
	again.ContentHash = "h1"
	_, err = x.Insert(again)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	_, _, err = x.RemoveDocument("doc1")
	require.NoError(t, err)
	_, ok = x.FindByHash("alice", "h1")
	assert.False(t, ok)
}

func TestMembersSkipsUnknownAndRepeatedIDs(t *testing.T) {
	x := newIndex(t)
	_, err := x.AddDocument("doc1", "one")
	require.NoError(t, err)
	_, err = x.AddDocument("doc2", "two")
	require.NoError(t, err)

	docs, version := x.Members([]string{"doc2", "gone", "doc1", "doc2"})
	require.Len(t, docs, 2)
	assert.Equal(t, "doc2", docs[0].ID)
	assert.Equal(t, "doc1", docs[1].ID)
	assert.Equal(t, uint64(2), version)

	docs, _ = x.Members(nil)
	assert.Empty(t, docs)
}

func TestListNewestFirstWithPaging(t *testing.T) {
	x := newIndex(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		doc, err := Build(x.tok, fmt.Sprintf("doc%d", i), "word")
		require.NoError(t, err)
		doc.OwnerID = "alice"
		doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err = x.Insert(doc)
		require.NoError(t, err)
	}
	other, err := Build(x.tok, "bobdoc", "word")
	require.NoError(t, err)
	other.OwnerID = "bob"
	_, err = x.Insert(other)
	require.NoError(t, err)

	page, total := x.List("alice", 0, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "doc4", page[0].ID)
	assert.Equal(t, "doc3", page[1].ID)

	page, _ = x.List("alice", 4, 10)
	require.Len(t, page, 1)
	assert.Equal(t, "doc0", page[0].ID)

	page, total = x.List("alice", 10, 2)
	assert.Empty(t, page)
	assert.Equal(t, 5, total)

	_, total = x.List("", 0, 0)
	assert.Equal(t, 6, total)

	page, total = x.List("alice", -3, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "doc4", page[0].ID)
}

func TestCheckConsistencyDetectsDrift(t *testing.T) {
	reg := registry.New()
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	require.NoError(t, err)
	x := New(reg, tok)
	_, err = x.AddDocument("doc1", "cat")
	require.NoError(t, err)

	// A registration that bypasses the index.
	reg.Register(func(yield func(string) bool) { yield("ghost") })

	err = x.CheckConsistency()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))
}
