// Package sqlite persists arena sessions in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serialises them anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM arena_kv WHERE ns = ? AND name = ?`, ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, ns, key string, value []byte) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO arena_kv (ns, name, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (ns, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`,
		ns, key, value, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM arena_kv WHERE ns = ? AND name = ?`, ns, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, ns string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM arena_kv WHERE ns = ?`, ns); err != nil {
		return fmt.Errorf("delete all %s: %w", ns, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, key string) (map[string][]byte, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT ns, value FROM arena_kv WHERE name = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			ns    string
			value []byte
		)
		if err := rows.Scan(&ns, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", key, err)
		}
		out[ns] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", key, err)
	}
	return out, nil
}
