package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresStore is a KeyValueStore over the kv_store table
type PostgresStore struct {
	db     *PostgresDB
	prefix string
}

// NewPostgresStore creates a store that namespaces every key with prefix
func NewPostgresStore(db *PostgresDB, prefix string) *PostgresStore {
	return &PostgresStore{db: db, prefix: prefix}
}

// Read retrieves the payload stored under key
func (s *PostgresStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM kv_store
		WHERE key = $1
	`

	var data []byte
	err := s.db.Pool().QueryRow(ctx, query, s.prefix+key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return data, true, nil
}

// Write upserts the payload under key
func (s *PostgresStore) Write(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.Pool().Exec(ctx, query, s.prefix+key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}
