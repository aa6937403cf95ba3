// Package storage keeps the raw bytes of uploaded documents. The corpus
// engine only needs put, get and delete by key; where the bytes live is a
// deployment choice between a local directory and an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound (from pkg/errors) for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key is the storage key of a document.
func Key(ownerID, documentID string) string {
	return ownerID + "/" + documentID
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "fs":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
