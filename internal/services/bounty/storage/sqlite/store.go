// Package sqlite provides SQLite-backed bounty hunt and faction bounty
// persistence.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/redgulch/frontier/internal/platform/storage/sqlitemigrate"
	"github.com/redgulch/frontier/internal/services/bounty/domain"
	"github.com/redgulch/frontier/internal/services/bounty/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed hunt and faction bounty persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a bounty SQLite store and applies migrations.
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

type encounterRow struct {
	Type        string `json:"type"`
	Location    string `json:"location"`
	Outcome     string `json:"outcome"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

type rewardsRow struct {
	Cash       float64 `json:"cash"`
	Reputation int     `json:"reputation"`
}

const huntColumns = `id, character_id, target_id, target_name, tier, status,
	started_at, expires_at, updated_at, tracking_progress, clues_found,
	energy_spent, current_location, encounters, capture_method, rewards`

// ListNonTerminalHunts returns every hunt still in a non-terminal state,
// oldest expiry first.
func (s *Store) ListNonTerminalHunts(ctx context.Context) ([]domain.BountyHunt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+huntColumns+`
FROM bounty_hunts
WHERE status IN (?, ?)
ORDER BY expires_at ASC
`, string(domain.StatusTracking), string(domain.StatusConfronted))
	if err != nil {
		return nil, fmt.Errorf("list non-terminal hunts: %w", err)
	}
	defer rows.Close()

	var hunts []domain.BountyHunt
	for rows.Next() {
		hunt, err := scanHunt(rows)
		if err != nil {
			return nil, err
		}
		hunts = append(hunts, *hunt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hunts: %w", err)
	}
	return hunts, nil
}

// GetActiveHunt returns a character's non-terminal hunt, or nil when the
// character has none.
func (s *Store) GetActiveHunt(ctx context.Context, characterID string) (*domain.BountyHunt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return nil, fmt.Errorf("character id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+huntColumns+`
FROM bounty_hunts
WHERE character_id = ? AND status IN (?, ?)
LIMIT 1
`, characterID, string(domain.StatusTracking), string(domain.StatusConfronted))

	hunt, err := scanHunt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hunt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHunt(row rowScanner) (*domain.BountyHunt, error) {
	var (
		hunt           domain.BountyHunt
		startedAt      int64
		expiresAt      int64
		updatedAt      int64
		encountersJSON string
		rewardsJSON    sql.NullString
	)
	err := row.Scan(
		&hunt.ID, &hunt.CharacterID, &hunt.TargetID, &hunt.TargetName,
		&hunt.Tier, &hunt.Status, &startedAt, &expiresAt, &updatedAt,
		&hunt.TrackingProgress, &hunt.CluesFound, &hunt.EnergySpent,
		&hunt.CurrentLocation, &encountersJSON, &hunt.CaptureMethod,
		&rewardsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan hunt: %w", err)
	}
	hunt.StartedAt = time.UnixMilli(startedAt).UTC()
	hunt.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	hunt.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	var encounters []encounterRow
	if err := json.Unmarshal([]byte(encountersJSON), &encounters); err != nil {
		return nil, fmt.Errorf("decode encounters: %w", err)
	}
	for _, enc := range encounters {
		hunt.Encounters = append(hunt.Encounters, domain.BountyEncounter{
			Type:        domain.EncounterType(enc.Type),
			Location:    enc.Location,
			Outcome:     domain.EncounterOutcome(enc.Outcome),
			Description: enc.Description,
			Timestamp:   time.UnixMilli(enc.Timestamp).UTC(),
		})
	}
	if rewardsJSON.Valid && rewardsJSON.String != "" {
		var rewards rewardsRow
		if err := json.Unmarshal([]byte(rewardsJSON.String), &rewards); err != nil {
			return nil, fmt.Errorf("decode rewards: %w", err)
		}
		hunt.Rewards = &domain.Rewards{Cash: rewards.Cash, Reputation: rewards.Reputation}
	}
	return &hunt, nil
}

// SaveHunt upserts a hunt row. Encounters and rewards are stored as JSON
// sub-documents.
func (s *Store) SaveHunt(ctx context.Context, hunt *domain.BountyHunt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if hunt == nil {
		return fmt.Errorf("hunt is required")
	}
	if strings.TrimSpace(hunt.ID) == "" {
		return fmt.Errorf("hunt id is required")
	}

	encounters := make([]encounterRow, 0, len(hunt.Encounters))
	for _, enc := range hunt.Encounters {
		encounters = append(encounters, encounterRow{
			Type:        string(enc.Type),
			Location:    enc.Location,
			Outcome:     string(enc.Outcome),
			Description: enc.Description,
			Timestamp:   enc.Timestamp.UTC().UnixMilli(),
		})
	}
	encountersJSON, err := json.Marshal(encounters)
	if err != nil {
		return fmt.Errorf("encode encounters: %w", err)
	}
	var rewardsJSON sql.NullString
	if hunt.Rewards != nil {
		encoded, err := json.Marshal(rewardsRow{
			Cash:       hunt.Rewards.Cash,
			Reputation: hunt.Rewards.Reputation,
		})
		if err != nil {
			return fmt.Errorf("encode rewards: %w", err)
		}
		rewardsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO bounty_hunts (id, character_id, target_id, target_name, tier,
	status, started_at, expires_at, updated_at, tracking_progress,
	clues_found, energy_spent, current_location, encounters,
	capture_method, rewards)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	character_id = excluded.character_id,
	target_id = excluded.target_id,
	target_name = excluded.target_name,
	tier = excluded.tier,
	status = excluded.status,
	started_at = excluded.started_at,
	expires_at = excluded.expires_at,
	updated_at = excluded.updated_at,
	tracking_progress = excluded.tracking_progress,
	clues_found = excluded.clues_found,
	energy_spent = excluded.energy_spent,
	current_location = excluded.current_location,
	encounters = excluded.encounters,
	capture_method = excluded.capture_method,
	rewards = excluded.rewards
`,
		hunt.ID, hunt.CharacterID, hunt.TargetID, hunt.TargetName,
		string(hunt.Tier), string(hunt.Status),
		hunt.StartedAt.UTC().UnixMilli(), hunt.ExpiresAt.UTC().UnixMilli(),
		hunt.UpdatedAt.UTC().UnixMilli(), hunt.TrackingProgress,
		hunt.CluesFound, hunt.EnergySpent, hunt.CurrentLocation,
		string(encountersJSON), hunt.CaptureMethod, rewardsJSON,
	)
	if err != nil {
		return fmt.Errorf("save hunt %s: %w", hunt.ID, err)
	}
	return nil
}

// ExpireHuntsBefore marks every non-terminal hunt whose window closed at or
// before now as expired, in one conditional update.
func (s *Store) ExpireHuntsBefore(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE bounty_hunts
SET status = ?, updated_at = ?
WHERE status IN (?, ?) AND expires_at <= ?
`,
		string(domain.StatusExpired), now.UTC().UnixMilli(),
		string(domain.StatusTracking), string(domain.StatusConfronted),
		now.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("expire hunts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire hunts rows affected: %w", err)
	}
	return int(affected), nil
}

// ListOutstandingBounties returns faction bounties with a positive amount,
// largest first.
func (s *Store) ListOutstandingBounties(ctx context.Context) ([]domain.FactionBounty, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, faction, target_id, amount, last_decayed_at
FROM faction_bounties
WHERE amount > 0
ORDER BY amount DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list outstanding bounties: %w", err)
	}
	defer rows.Close()

	var bounties []domain.FactionBounty
	for rows.Next() {
		var (
			bounty        domain.FactionBounty
			lastDecayedAt int64
		)
		if err := rows.Scan(&bounty.ID, &bounty.Faction, &bounty.TargetID, &bounty.Amount, &lastDecayedAt); err != nil {
			return nil, fmt.Errorf("scan faction bounty: %w", err)
		}
		bounty.LastDecayedAt = time.UnixMilli(lastDecayedAt).UTC()
		bounties = append(bounties, bounty)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faction bounties: %w", err)
	}
	return bounties, nil
}

// SaveFactionBounty upserts a faction bounty row.
func (s *Store) SaveFactionBounty(ctx context.Context, bounty *domain.FactionBounty) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if bounty == nil {
		return fmt.Errorf("faction bounty is required")
	}
	if strings.TrimSpace(bounty.ID) == "" {
		return fmt.Errorf("faction bounty id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO faction_bounties (id, faction, target_id, amount, last_decayed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	faction = excluded.faction,
	target_id = excluded.target_id,
	amount = excluded.amount,
	last_decayed_at = excluded.last_decayed_at
`,
		bounty.ID, bounty.Faction, bounty.TargetID, bounty.Amount,
		bounty.LastDecayedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save faction bounty %s: %w", bounty.ID, err)
	}
	return nil
}
