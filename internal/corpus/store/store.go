// Package store persists documents, their term counts and collections in
// PostgreSQL.
// Documents are the durable source of truth; the corpus registry is never
// stored and is rebuilt from Load on start-up.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/postgres"
)

// Schema creates the document and collection tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id           UUID PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		title        TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes   BIGINT NOT NULL,
		total_terms  INTEGER NOT NULL CHECK (total_terms > 0),
		storage_key  TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS documents_owner_created_idx ON documents (owner_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_owner_hash_idx ON documents (owner_id, content_hash)`,
	`CREATE TABLE IF NOT EXISTS document_terms (
		document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		term        TEXT NOT NULL,
		count       INTEGER NOT NULL CHECK (count > 0),
		PRIMARY KEY (document_id, term)
	)`,
	`CREATE TABLE IF NOT EXISTS collections (
		id          UUID PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS collections_owner_idx ON collections (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS collection_documents (
		collection_id UUID NOT NULL REFERENCES collections (id) ON DELETE CASCADE,
		document_id   UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		added_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection_id, document_id)
	)`,
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "document-store"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema...)
}

// Save writes the document row and all of its term counts in one
// transaction.
func (s *Store) Save(ctx context.Context, doc *index.Document) error {
	terms := make([]string, 0, len(doc.Counts))
	for term := range doc.Counts {
		terms = append(terms, term)
	}
	slices.Sort(terms)
	counts := make([]int64, len(terms))
	for i, term := range terms {
		counts[i] = int64(doc.Counts[term])
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, owner_id, title, content_hash, size_bytes, total_terms, storage_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			doc.ID, doc.OwnerID, doc.Title, doc.ContentHash, doc.SizeBytes, doc.TotalTerms, doc.StorageKey, doc.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Duplicate("document with identical content already exists")
			}
			return fmt.Errorf("inserting document: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO document_terms (document_id, term, count)
			 SELECT $1, t.term, t.count FROM unnest($2::text[], $3::int[]) AS t(term, count)`,
			doc.ID, pq.Array(terms), pq.Array(counts),
		)
		if err != nil {
			return fmt.Errorf("inserting document terms: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}
	s.logger.Debug("document saved", "doc_id", doc.ID, "terms", len(terms))
	return nil
}

// Delete removes a document; its term rows follow by cascade. A missing
// document is ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if rows == 0 {
		return apperrors.NotFound("document %s not found", id)
	}
	return nil
}

// Load streams every persisted document, with its term counts, to fn in
// creation order. It stops at the first error fn returns.
func (s *Store) Load(ctx context.Context, fn func(*index.Document) error) (int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT d.id, d.owner_id, d.title, d.content_hash, d.size_bytes, d.total_terms, d.storage_key, d.created_at,
		        array_agg(t.term ORDER BY t.term), array_agg(t.count ORDER BY t.term)
		 FROM documents d
		 JOIN document_terms t ON t.document_id = d.id
		 GROUP BY d.id
		 ORDER BY d.created_at, d.id`,
	)
	if err != nil {
		return 0, fmt.Errorf("loading documents: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var (
			doc    index.Document
			terms  []string
			counts []int64
		)
		if err := rows.Scan(
			&doc.ID, &doc.OwnerID, &doc.Title, &doc.ContentHash, &doc.SizeBytes,
			&doc.TotalTerms, &doc.StorageKey, &doc.CreatedAt,
			pq.Array(&terms), pq.Array(&counts),
		); err != nil {
			return loaded, fmt.Errorf("scanning document row: %w", err)
		}
		if len(terms) != len(counts) {
			return loaded, apperrors.Invariant("document %s: %d terms but %d counts", doc.ID, len(terms), len(counts))
		}
		doc.Counts = make(map[string]int, len(terms))
		for i, term := range terms {
			doc.Counts[term] = int(counts[i])
		}
		if err := fn(&doc); err != nil {
			return loaded, err
		}
		loaded++
	}
	if err := rows.Err(); err != nil {
		return loaded, fmt.Errorf("iterating documents: %w", err)
	}
	return loaded, nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == code
}
