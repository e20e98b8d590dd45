// Package sqlite provides a SQLite-backed lock lease store. SQLite
// serializes writers, so the conditional upsert below is a true
// compare-and-set: a lease is granted only when no live lease exists.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/redgulch/frontier/internal/distlock/sqlite/migrations"
	sqlitemigrate "github.com/redgulch/frontier/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed lock lease persistence.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a lease SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// OpenDB wraps an already-open database handle, applying migrations. The
// simulation worker shares one SQLite file across its stores.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// TryAcquire grants the lease when the key is absent or its lease expired.
func (s *Store) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	token = strings.TrimSpace(token)
	if key == "" {
		return false, fmt.Errorf("lease key is required")
	}
	if token == "" {
		return false, fmt.Errorf("lease token is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive")
	}

	now := s.now().UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO lock_leases (key, token, expires_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
	token = excluded.token,
	expires_at = excluded.expires_at
WHERE lock_leases.expires_at <= ?
`,
		key,
		token,
		now.Add(ttl).UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease rows affected: %w", err)
	}
	return affected > 0, nil
}

// Release deletes the lease only when token still matches the stored
// holder. A stale caller whose lease was reclaimed never deletes the new
// holder's lease.
func (s *Store) Release(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	token = strings.TrimSpace(token)
	if key == "" {
		return false, fmt.Errorf("lease key is required")
	}
	if token == "" {
		return false, fmt.Errorf("lease token is required")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM lock_leases WHERE key = ? AND token = ?",
		key,
		token,
	)
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release lease rows affected: %w", err)
	}
	return affected > 0, nil
}
