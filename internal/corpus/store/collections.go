package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

// SaveCollection inserts a new, empty collection.
func (s *Store) SaveCollection(ctx context.Context, c *collection.Collection) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO collections (id, owner_id, name, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OwnerID, c.Name, c.Description, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Duplicate("collection %s already exists", c.ID)
		}
		return fmt.Errorf("saving collection %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCollection removes a collection and, by cascade, its memberships.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	result, err := s.db.DB.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", id, err)
	}
	if rows == 0 {
		return apperrors.NotFound("collection %s not found", id)
	}
	return nil
}

// AddMember records membership. Adding an existing member is a no-op; a
// missing collection or document is ErrNotFound.
func (s *Store) AddMember(ctx context.Context, collectionID, documentID string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO collection_documents (collection_id, document_id) VALUES ($1, $2)
		 ON CONFLICT (collection_id, document_id) DO NOTHING`,
		collectionID, documentID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.NotFound("collection %s or document %s not found", collectionID, documentID)
		}
		return fmt.Errorf("adding document %s to collection %s: %w", documentID, collectionID, err)
	}
	return nil
}

// RemoveMember drops membership. Removing a non-member is a no-op.
func (s *Store) RemoveMember(ctx context.Context, collectionID, documentID string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM collection_documents WHERE collection_id = $1 AND document_id = $2`,
		collectionID, documentID,
	)
	if err != nil {
		return fmt.Errorf("removing document %s from collection %s: %w", documentID, collectionID, err)
	}
	return nil
}

// LoadCollections streams every collection with its members, in the order
// they were added, to fn.
func (s *Store) LoadCollections(ctx context.Context, fn func(*collection.Collection) error) (int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT c.id, c.owner_id, c.name, c.description, c.created_at,
		        COALESCE(array_agg(m.document_id::text ORDER BY m.added_at, m.document_id)
		                 FILTER (WHERE m.document_id IS NOT NULL), '{}')
		 FROM collections c
		 LEFT JOIN collection_documents m ON m.collection_id = c.id
		 GROUP BY c.id
		 ORDER BY c.created_at, c.id`,
	)
	if err != nil {
		return 0, fmt.Errorf("loading collections: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var c collection.Collection
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.CreatedAt, pq.Array(&c.DocumentIDs)); err != nil {
			return loaded, fmt.Errorf("scanning collection row: %w", err)
		}
		if err := fn(&c); err != nil {
			return loaded, err
		}
		loaded++
	}
	if err := rows.Err(); err != nil {
		return loaded, fmt.Errorf("iterating collections: %w", err)
	}
	return loaded, nil
}
