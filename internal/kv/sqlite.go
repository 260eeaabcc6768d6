package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/cartsync/internal/db"
)

// SQLite stores values in the kv_store table, every key prefixed with the
// namespace.
type SQLite struct {
	db        *db.DB
	namespace string
}

// NewSQLite returns a Storage backed by database. An empty namespace selects
// DefaultNamespace.
func NewSQLite(database *db.DB, namespace string) *SQLite {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &SQLite{db: database, namespace: namespace}
}

func (s *SQLite) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.namespace+key, string(value))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, s.namespace+key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, s.namespace+key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
