// Package sqlite provides SQLite-backed animal companion persistence.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/redgulch/frontier/internal/platform/storage/sqlitemigrate"
	"github.com/redgulch/frontier/internal/services/companion/domain"
	"github.com/redgulch/frontier/internal/services/companion/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed companion persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a companion SQLite store and applies migrations.
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

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// OpenDB wraps an already-open database handle, applying migrations.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ListBondedCompanions returns companions with a bond above zero, longest
// idle first so the heaviest decay lands before any interruption.
func (s *Store) ListBondedCompanions(ctx context.Context) ([]domain.AnimalCompanion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, character_id, name, species, bond_level, last_active, updated_at
FROM animal_companions
WHERE bond_level > 0
ORDER BY last_active ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list bonded companions: %w", err)
	}
	defer rows.Close()

	var companions []domain.AnimalCompanion
	for rows.Next() {
		var (
			companion  domain.AnimalCompanion
			lastActive int64
			updatedAt  int64
		)
		if err := rows.Scan(&companion.ID, &companion.CharacterID, &companion.Name,
			&companion.Species, &companion.BondLevel, &lastActive, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan companion: %w", err)
		}
		companion.LastActive = time.UnixMilli(lastActive).UTC()
		companion.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		companions = append(companions, companion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companions: %w", err)
	}
	return companions, nil
}

// SaveCompanion upserts a companion row.
func (s *Store) SaveCompanion(ctx context.Context, companion *domain.AnimalCompanion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if companion == nil {
		return fmt.Errorf("companion is required")
	}
	if strings.TrimSpace(companion.ID) == "" {
		return fmt.Errorf("companion id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO animal_companions (id, character_id, name, species, bond_level, last_active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	character_id = excluded.character_id,
	name = excluded.name,
	species = excluded.species,
	bond_level = excluded.bond_level,
	last_active = excluded.last_active,
	updated_at = excluded.updated_at
`,
		companion.ID, companion.CharacterID, companion.Name,
		string(companion.Species), companion.BondLevel,
		companion.LastActive.UTC().UnixMilli(),
		companion.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save companion %s: %w", companion.ID, err)
	}
	return nil
}
