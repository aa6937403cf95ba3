// Package apikey issues and validates API keys. Only the SHA-256 digest of a
// key is stored; the raw key is shown once at creation. A key's id doubles as
// the owner identity of every document uploaded with it.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/postgres"
)

var (
	ErrInvalidKey = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid api key")
	ErrExpiredKey = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "api key expired")
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash    TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		rate_limit  INTEGER NOT NULL CHECK (rate_limit > 0),
		is_active   BOOLEAN NOT NULL DEFAULT true,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at  TIMESTAMPTZ
	)`,
}

type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OwnerID is the identity documents uploaded with this key belong to.
func (k *KeyInfo) OwnerID() string {
	return k.ID
}

type Validator struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

func (v *Validator) EnsureSchema(ctx context.Context) error {
	return v.db.Migrate(ctx, Schema...)
}

const selectColumns = `SELECT id, name, rate_limit, is_active, created_at, expires_at FROM api_keys`

// Validate resolves a raw key. Unknown, revoked and expired keys all wrap
// ErrUnauthorized.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	row := v.db.DB.QueryRowContext(ctx,
		selectColumns+` WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	info, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(v.now()) {
		return nil, ErrExpiredKey
	}
	return info, nil
}

// CreateKey stores a new key and returns it in raw form together with its
// metadata. The raw key cannot be recovered later.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error) {
	if name == "" {
		return "", nil, apperrors.Validation("key name is required")
	}
	if rateLimit < 1 {
		return "", nil, apperrors.Validation("rate limit must be >= 1, got %d", rateLimit)
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	row := v.db.DB.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)
		 RETURNING id, name, rate_limit, is_active, created_at, expires_at`,
		HashKey(rawKey), name, rateLimit, expiry,
	)
	info, err := scanKey(row)
	if err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "id", info.ID, "name", name, "rate_limit", rateLimit)
	return rawKey, info, nil
}

// RevokeKey deactivates the key with the given id.
func (v *Validator) RevokeKey(ctx context.Context, id string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1 AND is_active = true`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("api key %s not found", id)
	}
	v.logger.Info("api key revoked", "id", id)
	return nil
}

func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx, selectColumns+` WHERE is_active = true ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*KeyInfo, error) {
	var k KeyInfo
	var expiresAt sql.NullTime
	if err := s.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
