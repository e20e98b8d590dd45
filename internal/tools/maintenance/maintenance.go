// Package maintenance implements operator commands against the simulation
// database: forced event expiry, economy cleanup, market reports, and alert
// acknowledgement.
package maintenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redgulch/frontier/internal/distlock"
	locksqlite "github.com/redgulch/frontier/internal/distlock/sqlite"
	"github.com/redgulch/frontier/internal/platform/random"
	economydomain "github.com/redgulch/frontier/internal/services/economy/domain"
	economysqlite "github.com/redgulch/frontier/internal/services/economy/storage/sqlite"
	simworkerapp "github.com/redgulch/frontier/internal/services/simworker/app"
	_ "modernc.org/sqlite"
)

// maintenanceLockTTL bounds how long a mutating maintenance command may
// hold the economy tick lock.
const maintenanceLockTTL = 5 * time.Minute

// Config holds maintenance command configuration.
type Config struct {
	DBPath            string        `env:"FRONTIER_SIMWORKER_DB_PATH"`
	Timeout           time.Duration `env:"FRONTIER_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	ForceExpireEvents bool
	EconomyCleanup    bool
	MarketReport      bool
	AckAlertID        string
	JSONOutput        bool
}

type envConfig struct {
	DBPath  string        `env:"FRONTIER_SIMWORKER_DB_PATH"`
	Timeout time.Duration `env:"FRONTIER_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:  envCfg.DBPath,
		Timeout: envCfg.Timeout,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "frontier.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to simulation sqlite database (default: FRONTIER_SIMWORKER_DB_PATH or data/frontier.db)")
	fs.BoolVar(&cfg.ForceExpireEvents, "force-expire-events", false, "deactivate every active economic event and rebaseline price indexes")
	fs.BoolVar(&cfg.EconomyCleanup, "economy-cleanup", false, "remove acknowledged alerts past retention and trim excess snapshots")
	fs.BoolVar(&cfg.MarketReport, "market-report", false, "print current market state without modifying it")
	fs.StringVar(&cfg.AckAlertID, "ack-alert", "", "acknowledge the market alert with this id")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	modes := 0
	for _, enabled := range []bool{
		cfg.ForceExpireEvents,
		cfg.EconomyCleanup,
		cfg.MarketReport,
		strings.TrimSpace(cfg.AckAlertID) != "",
	} {
		if enabled {
			modes++
		}
	}
	if modes == 0 {
		return errors.New("one of -force-expire-events, -economy-cleanup, -market-report, or -ack-alert is required")
	}
	if modes > 1 {
		return errors.New("maintenance modes cannot be combined")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, locks, err := openDeps(cfg.DBPath)
	if err != nil {
		return err
	}
	return runWithDeps(ctx, cfg, store, locks, out, errOut)
}

// runWithDeps contains the core maintenance logic with injectable
// dependencies. It owns the lifecycle of the store (closing it on return).
func runWithDeps(ctx context.Context, cfg Config, store marketStore, locks *distlock.Manager, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "Error: close market store: %v\n", err)
		}
	}()

	switch {
	case cfg.ForceExpireEvents:
		return runForceExpire(ctx, store, locks, cfg.JSONOutput, out)
	case cfg.EconomyCleanup:
		return runEconomyCleanup(ctx, store, locks, cfg.JSONOutput, out)
	case cfg.MarketReport:
		return runMarketReport(ctx, store, cfg.JSONOutput, out)
	default:
		return runAckAlert(ctx, store, cfg.AckAlertID, cfg.JSONOutput, out)
	}
}

type forceExpireResult struct {
	Mode          string `json:"mode"`
	EventsExpired int    `json:"events_expired"`
}

// runForceExpire deactivates every active event under the economy tick lock
// key, so a forced expiry never races the scheduled tick over the market
// singleton.
func runForceExpire(ctx context.Context, store marketStore, locks *distlock.Manager, jsonOutput bool, out io.Writer) error {
	engine, err := buildEngine(store)
	if err != nil {
		return err
	}
	var summary economydomain.ForceExpireSummary
	err = locks.RunUnderLock(ctx, simworkerapp.JobEconomyTick, maintenanceLockTTL, func(ctx context.Context) error {
		var runErr error
		summary, runErr = engine.ForceExpireAll(ctx)
		return runErr
	})
	if errors.Is(err, distlock.ErrLockHeld) {
		return errors.New("economy tick is running on another instance; retry shortly")
	}
	if err != nil {
		return fmt.Errorf("force expire events: %w", err)
	}

	if jsonOutput {
		return outputJSON(out, forceExpireResult{Mode: "force-expire-events", EventsExpired: summary.EventsExpired})
	}
	fmt.Fprintf(out, "Force-expired events: %d\n", summary.EventsExpired)
	return nil
}

type cleanupResult struct {
	Mode             string `json:"mode"`
	AlertsRemoved    int    `json:"alerts_removed"`
	SnapshotsTrimmed int    `json:"snapshots_trimmed"`
}

func runEconomyCleanup(ctx context.Context, store marketStore, locks *distlock.Manager, jsonOutput bool, out io.Writer) error {
	engine, err := buildEngine(store)
	if err != nil {
		return err
	}
	var summary economydomain.CleanupSummary
	err = locks.RunUnderLock(ctx, simworkerapp.JobEconomyCleanup, maintenanceLockTTL, func(ctx context.Context) error {
		var runErr error
		summary, runErr = engine.Cleanup(ctx)
		return runErr
	})
	if errors.Is(err, distlock.ErrLockHeld) {
		return errors.New("economy cleanup is running on another instance; retry shortly")
	}
	if err != nil {
		return fmt.Errorf("economy cleanup: %w", err)
	}

	if jsonOutput {
		return outputJSON(out, cleanupResult{
			Mode:             "economy-cleanup",
			AlertsRemoved:    summary.AlertsRemoved,
			SnapshotsTrimmed: summary.SnapshotsTrimmed,
		})
	}
	fmt.Fprintf(out, "Economy cleanup: alerts_removed=%d snapshots_trimmed=%d\n",
		summary.AlertsRemoved, summary.SnapshotsTrimmed)
	return nil
}

type marketReport struct {
	Mode         string                             `json:"mode"`
	PriceIndexes map[economydomain.Category]float64 `json:"price_indexes"`
	ActiveEvents []marketReportEvent                `json:"active_events"`
	Snapshots    int                                `json:"snapshots"`
	OpenAlerts   []marketReportAlert                `json:"open_alerts"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

type marketReportEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type marketReportAlert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func runMarketReport(ctx context.Context, store marketStore, jsonOutput bool, out io.Writer) error {
	state, err := store.LoadMarketState(ctx)
	if err != nil {
		return fmt.Errorf("load market state: %w", err)
	}
	events, err := store.ListActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}

	report := marketReport{
		Mode:         "market-report",
		PriceIndexes: state.PriceIndexes,
		Snapshots:    len(state.HourlySnapshots),
		UpdatedAt:    state.UpdatedAt,
	}
	for _, event := range events {
		report.ActiveEvents = append(report.ActiveEvents, marketReportEvent{
			ID:        event.ID,
			Type:      string(event.Type),
			ExpiresAt: event.ExpiresAt,
		})
	}
	for _, alert := range state.Alerts {
		if alert.Acknowledged {
			continue
		}
		report.OpenAlerts = append(report.OpenAlerts, marketReportAlert{
			ID:        alert.ID,
			Message:   alert.Message,
			Timestamp: alert.Timestamp,
		})
	}

	if jsonOutput {
		return outputJSON(out, report)
	}
	fmt.Fprintf(out, "Market state as of %s (version %d)\n", state.UpdatedAt.Format(time.RFC3339), state.Version)
	for _, category := range economydomain.Categories() {
		fmt.Fprintf(out, "- %s: %.2f\n", category, state.PriceIndexes[category])
	}
	fmt.Fprintf(out, "Active events: %d\n", len(report.ActiveEvents))
	for _, event := range report.ActiveEvents {
		fmt.Fprintf(out, "- %s type=%s expires_at=%s\n", event.ID, event.Type, event.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Hourly snapshots: %d\n", report.Snapshots)
	fmt.Fprintf(out, "Open alerts: %d\n", len(report.OpenAlerts))
	for _, alert := range report.OpenAlerts {
		fmt.Fprintf(out, "- %s %s\n", alert.ID, alert.Message)
	}
	return nil
}

type ackAlertResult struct {
	Mode    string `json:"mode"`
	AlertID string `json:"alert_id"`
	Found   bool   `json:"found"`
}

func runAckAlert(ctx context.Context, store marketStore, alertID string, jsonOutput bool, out io.Writer) error {
	alertID = strings.TrimSpace(alertID)
	found, err := store.AcknowledgeAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if !found {
		return fmt.Errorf("alert %s not found", alertID)
	}

	if jsonOutput {
		return outputJSON(out, ackAlertResult{Mode: "ack-alert", AlertID: alertID, Found: true})
	}
	fmt.Fprintf(out, "Acknowledged alert: %s\n", alertID)
	return nil
}

func buildEngine(store marketStore) (*economydomain.Engine, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return nil, fmt.Errorf("draw engine seed: %w", err)
	}
	engine, err := economydomain.NewEngine(store, economydomain.DefaultCatalog(), nil, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("build economy engine: %w", err)
	}
	return engine, nil
}

func outputJSON(out io.Writer, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}

func openDeps(path string) (marketStore, *distlock.Manager, error) {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == "" {
		return nil, nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store, err := economysqlite.OpenDB(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("open market store: %w", err)
	}
	lockStore, err := locksqlite.OpenDB(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("open lock store: %w", err)
	}
	locks, err := distlock.NewManager(lockStore, nil, nil)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("build lock manager: %w", err)
	}
	return store, locks, nil
}
