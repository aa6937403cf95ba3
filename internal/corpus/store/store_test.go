package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/postgres"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(postgres.NewFromDB(db)), mock
}

func sampleDoc() *index.Document {
	return &index.Document{
		ID:          "5b2f1c56-2d1a-4c38-9d55-0c7f3d1f8a10",
		OwnerID:     "alice",
		Title:       "cats.txt",
		ContentHash: "abc123",
		SizeBytes:   22,
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalTerms:  6,
		Counts:      map[string]int{"the": 2, "cat": 1, "sat": 1, "on": 1, "mat": 1},
	}
}

func TestSaveWritesDocumentAndTermsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	doc := sampleDoc()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(doc.ID, doc.OwnerID, doc.Title, doc.ContentHash, doc.SizeBytes, doc.TotalTerms, doc.StorageKey, doc.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_terms`).
		WithArgs(doc.ID, `{"cat","mat","on","sat","the"}`, `{1,1,1,1,2}`).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), doc))
}

func TestSaveRollsBackOnTermFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_terms`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSaveMapsUniqueViolationToDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := s.Save(context.Background(), sampleDoc())
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
}

func TestDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs("doc1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), "doc1"))

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLoadStreamsDocuments(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "title", "content_hash", "size_bytes", "total_terms", "storage_key", "created_at", "terms", "counts",
	}).
		AddRow("doc1", "alice", "a.txt", "h1", int64(22), 6, "alice/doc1", created, "{cat,mat,on,sat,the}", "{1,1,1,1,2}").
		AddRow("doc2", "bob", "b.txt", "h2", int64(11), 3, "bob/doc2", created.Add(time.Minute), "{dog,ran,the}", "{1,1,1}")
	mock.ExpectQuery(`SELECT d.id, d.owner_id`).WillReturnRows(rows)

	var got []*index.Document
	n, err := s.Load(context.Background(), func(doc *index.Document) error {
		got = append(got, doc)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)

	assert.Equal(t, "doc1", got[0].ID)
	assert.Equal(t, map[string]int{"cat": 1, "mat": 1, "on": 1, "sat": 1, "the": 2}, got[0].Counts)
	require.NoError(t, got[0].Validate())
	assert.Equal(t, "bob/doc2", got[1].StorageKey)
	require.NoError(t, got[1].Validate())
}

func TestLoadStopsOnCallbackError(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "title", "content_hash", "size_bytes", "total_terms", "storage_key", "created_at", "terms", "counts",
	}).
		AddRow("doc1", "alice", "a.txt", "h1", int64(3), 1, "", time.Now(), "{cat}", "{1}").
		AddRow("doc2", "alice", "b.txt", "h2", int64(3), 1, "", time.Now(), "{dog}", "{1}")
	mock.ExpectQuery(`SELECT d.id`).WillReturnRows(rows)

	stop := errors.New("stop")
	n, err := s.Load(context.Background(), func(*index.Document) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, n)
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	for range Schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	require.NoError(t, s.EnsureSchema(context.Background()))
}
