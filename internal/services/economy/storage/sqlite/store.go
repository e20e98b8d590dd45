// Package sqlite provides SQLite-backed market persistence.
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
	"github.com/redgulch/frontier/internal/services/economy/domain"
	"github.com/redgulch/frontier/internal/services/economy/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const marketStateRowID = 1

// Store provides SQLite-backed market state and event persistence.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a market SQLite store and applies migrations.
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

// OpenDB wraps an already-open database handle, applying migrations.
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

type snapshotRow struct {
	TakenAt int64                       `json:"taken_at"`
	Indexes map[domain.Category]float64 `json:"indexes"`
}

type alertRow struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
	Acknowledged bool   `json:"acknowledged"`
}

// LoadMarketState loads the singleton market aggregate, creating it lazily
// on first access.
func (s *Store) LoadMarketState(ctx context.Context) (*domain.MarketState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT active_event_ids, price_indexes, hourly_snapshots, alerts, version, updated_at
FROM market_state
WHERE id = ?
`, marketStateRowID)

	var (
		activeJSON    string
		indexesJSON   string
		snapshotsJSON string
		alertsJSON    string
		version       int64
		updatedAt     int64
	)
	err := row.Scan(&activeJSON, &indexesJSON, &snapshotsJSON, &alertsJSON, &version, &updatedAt)
	if err == sql.ErrNoRows {
		return s.createInitialState(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load market state: %w", err)
	}

	state := &domain.MarketState{
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(activeJSON), &state.ActiveEventIDs); err != nil {
		return nil, fmt.Errorf("decode active event ids: %w", err)
	}
	if err := json.Unmarshal([]byte(indexesJSON), &state.PriceIndexes); err != nil {
		return nil, fmt.Errorf("decode price indexes: %w", err)
	}
	var snapshots []snapshotRow
	if err := json.Unmarshal([]byte(snapshotsJSON), &snapshots); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	for _, snap := range snapshots {
		state.HourlySnapshots = append(state.HourlySnapshots, domain.IndexSnapshot{
			TakenAt: time.UnixMilli(snap.TakenAt).UTC(),
			Indexes: snap.Indexes,
		})
	}
	var alerts []alertRow
	if err := json.Unmarshal([]byte(alertsJSON), &alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	for _, alert := range alerts {
		state.Alerts = append(state.Alerts, domain.Alert{
			ID:           alert.ID,
			Message:      alert.Message,
			Timestamp:    time.UnixMilli(alert.Timestamp).UTC(),
			Acknowledged: alert.Acknowledged,
		})
	}
	return state, nil
}

func (s *Store) createInitialState(ctx context.Context) (*domain.MarketState, error) {
	state := domain.NewMarketState(s.now().UTC())
	indexesJSON, err := json.Marshal(state.PriceIndexes)
	if err != nil {
		return nil, fmt.Errorf("encode price indexes: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO market_state (id, active_event_ids, price_indexes, hourly_snapshots, alerts, version, updated_at)
VALUES (?, '[]', ?, '[]', '[]', 0, ?)
ON CONFLICT (id) DO NOTHING
`, marketStateRowID, string(indexesJSON), state.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create market state: %w", err)
	}
	return state, nil
}

// SaveMarketState persists the aggregate with an optimistic version check.
// It returns domain.ErrVersionConflict when a concurrent writer advanced
// the stored version since this aggregate was loaded.
func (s *Store) SaveMarketState(ctx context.Context, state *domain.MarketState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if state == nil {
		return fmt.Errorf("market state is required")
	}

	activeJSON, err := json.Marshal(emptyIfNil(state.ActiveEventIDs))
	if err != nil {
		return fmt.Errorf("encode active event ids: %w", err)
	}
	indexesJSON, err := json.Marshal(state.PriceIndexes)
	if err != nil {
		return fmt.Errorf("encode price indexes: %w", err)
	}
	snapshots := make([]snapshotRow, 0, len(state.HourlySnapshots))
	for _, snap := range state.HourlySnapshots {
		snapshots = append(snapshots, snapshotRow{
			TakenAt: snap.TakenAt.UTC().UnixMilli(),
			Indexes: snap.Indexes,
		})
	}
	snapshotsJSON, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("encode snapshots: %w", err)
	}
	alerts := make([]alertRow, 0, len(state.Alerts))
	for _, alert := range state.Alerts {
		alerts = append(alerts, alertRow{
			ID:           alert.ID,
			Message:      alert.Message,
			Timestamp:    alert.Timestamp.UTC().UnixMilli(),
			Acknowledged: alert.Acknowledged,
		})
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE market_state
SET active_event_ids = ?,
	price_indexes = ?,
	hourly_snapshots = ?,
	alerts = ?,
	version = version + 1,
	updated_at = ?
WHERE id = ? AND version = ?
`,
		string(activeJSON),
		string(indexesJSON),
		string(snapshotsJSON),
		string(alertsJSON),
		state.UpdatedAt.UTC().UnixMilli(),
		marketStateRowID,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("save market state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save market state rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	state.Version++
	return nil
}

// ListActiveEvents lists events still marked active, soonest expiry first.
func (s *Store) ListActiveEvents(ctx context.Context) ([]domain.EconomicEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, type, is_active, started_at, expires_at, effects
FROM economic_events
WHERE is_active = 1
ORDER BY expires_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	defer rows.Close()

	var events []domain.EconomicEvent
	for rows.Next() {
		var (
			event       domain.EconomicEvent
			isActive    int
			startedAt   int64
			expiresAt   int64
			effectsJSON string
		)
		if err := rows.Scan(&event.ID, &event.Type, &isActive, &startedAt, &expiresAt, &effectsJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.IsActive = isActive == 1
		event.StartedAt = time.UnixMilli(startedAt).UTC()
		event.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		if err := json.Unmarshal([]byte(effectsJSON), &event.Effects); err != nil {
			return nil, fmt.Errorf("decode event effects: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// SaveEvents upserts economic events. Deactivated events stay in the table
// for history.
func (s *Store) SaveEvents(ctx context.Context, events []domain.EconomicEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save events: %w", err)
	}
	for _, event := range events {
		if strings.TrimSpace(event.ID) == "" {
			_ = tx.Rollback()
			return fmt.Errorf("event id is required")
		}
		effectsJSON, err := json.Marshal(event.Effects)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode event effects: %w", err)
		}
		isActive := 0
		if event.IsActive {
			isActive = 1
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO economic_events (id, type, is_active, started_at, expires_at, effects)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	type = excluded.type,
	is_active = excluded.is_active,
	started_at = excluded.started_at,
	expires_at = excluded.expires_at,
	effects = excluded.effects
`,
			event.ID,
			string(event.Type),
			isActive,
			event.StartedAt.UTC().UnixMilli(),
			event.ExpiresAt.UTC().UnixMilli(),
			string(effectsJSON),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save event %s: %w", event.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save events: %w", err)
	}
	return nil
}

// AcknowledgeAlert marks one alert acknowledged inside the aggregate. It
// reports whether the alert was found.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID string) (bool, error) {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return false, fmt.Errorf("alert id is required")
	}
	state, err := s.LoadMarketState(ctx)
	if err != nil {
		return false, err
	}
	found := false
	for i := range state.Alerts {
		if state.Alerts[i].ID == alertID {
			state.Alerts[i].Acknowledged = true
			found = true
		}
	}
	if !found {
		return false, nil
	}
	if err := s.SaveMarketState(ctx, state); err != nil {
		return false, err
	}
	return true, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
