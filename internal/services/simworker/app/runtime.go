// Package app wires the simulation worker runtime: shared storage, the
// distributed lock manager, the engines, and the scheduler job table.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redgulch/frontier/internal/distlock"
	locksqlite "github.com/redgulch/frontier/internal/distlock/sqlite"
	"github.com/redgulch/frontier/internal/platform/random"
	"github.com/redgulch/frontier/internal/scheduler"
	bountydomain "github.com/redgulch/frontier/internal/services/bounty/domain"
	bountysqlite "github.com/redgulch/frontier/internal/services/bounty/storage/sqlite"
	companiondomain "github.com/redgulch/frontier/internal/services/companion/domain"
	companionsqlite "github.com/redgulch/frontier/internal/services/companion/storage/sqlite"
	economydomain "github.com/redgulch/frontier/internal/services/economy/domain"
	economysqlite "github.com/redgulch/frontier/internal/services/economy/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	_ "modernc.org/sqlite"
)

// RuntimeConfig controls simworker startup, dependencies, and job behavior.
type RuntimeConfig struct {
	Port    int
	DBPath  string
	LockTTL time.Duration
	// Seed fixes the engine rngs for replayable simulation runs. Zero
	// draws a fresh seed at startup.
	Seed int64
}

const (
	defaultSimWorkerPort = 8090
	defaultSimWorkerDB   = "data/frontier.db"
	defaultLockTTL       = 5 * time.Minute
)

// Scheduled job identifiers. Each doubles as the job's lock key, so two
// instances never execute the same job concurrently.
const (
	JobEconomyTick        = "economy_tick"
	JobEconomyCleanup     = "economy_cleanup"
	JobBountyExpiration   = "bounty_expiration"
	JobBountyDecay        = "bounty_decay"
	JobHunterTracking     = "hunter_tracking"
	JobCompanionBondDecay = "companion_bond_decay"
)

// Engines groups the simulation engines the job table drives.
type Engines struct {
	Economy   *economydomain.Engine
	Bounty    *bountydomain.Engine
	Companion *companiondomain.Engine
}

// Jobs builds the declarative job table over the given engines.
func Jobs(engines Engines, lockTTL time.Duration) ([]scheduler.Job, error) {
	if engines.Economy == nil || engines.Bounty == nil || engines.Companion == nil {
		return nil, fmt.Errorf("all engines are required")
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return []scheduler.Job{
		{
			ID:      JobEconomyTick,
			Cadence: scheduler.Every(time.Hour),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Economy.Tick(ctx)
				return summary.String(), err
			},
		},
		{
			ID:      JobEconomyCleanup,
			Cadence: scheduler.DailyAt(4, 0),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Economy.Cleanup(ctx)
				return summary.String(), err
			},
		},
		{
			ID:      JobBountyExpiration,
			Cadence: scheduler.Every(15 * time.Minute),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Bounty.ExpireOldBounties(ctx)
				return summary.String(), err
			},
		},
		{
			ID:      JobBountyDecay,
			Cadence: scheduler.Every(time.Hour),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Bounty.DecayBounties(ctx)
				return summary.String(), err
			},
		},
		{
			ID:      JobHunterTracking,
			Cadence: scheduler.Every(15 * time.Minute),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Bounty.UpdateHunterPositions(ctx)
				return summary.String(), err
			},
		},
		{
			ID:      JobCompanionBondDecay,
			Cadence: scheduler.Every(6 * time.Hour),
			LockTTL: lockTTL,
			Run: func(ctx context.Context) (string, error) {
				summary, err := engines.Companion.ProcessNeglectDecay(ctx)
				return summary.String(), err
			},
		},
	}, nil
}

// Run starts simworker runtime dependencies and the scheduler, then blocks
// until ctx is canceled. In-flight job handlers finish before it returns.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSimWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultSimWorkerDB
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create simworker storage dir: %w", err)
		}
	}

	dsn := filepath.Clean(cfg.DBPath) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open simworker sqlite db: %w", err)
	}
	defer func() {
		if closeErr := sqlDB.Close(); closeErr != nil {
			log.Printf("close simworker sqlite db: %v", closeErr)
		}
	}()
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping simworker sqlite db: %w", err)
	}

	lockStore, err := locksqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open lock store: %w", err)
	}
	economyStore, err := economysqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open economy store: %w", err)
	}
	bountyStore, err := bountysqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open bounty store: %w", err)
	}
	companionStore, err := companionsqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open companion store: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed, err = random.NewSeed()
		if err != nil {
			return fmt.Errorf("draw engine seed: %w", err)
		}
	}

	economyEngine, err := economydomain.NewEngine(economyStore, economydomain.DefaultCatalog(), nil, rand.New(rand.NewSource(seed)))
	if err != nil {
		return fmt.Errorf("build economy engine: %w", err)
	}
	bountyEngine, err := bountydomain.NewEngine(bountyStore, nil, rand.New(rand.NewSource(seed+1)))
	if err != nil {
		return fmt.Errorf("build bounty engine: %w", err)
	}
	companionEngine, err := companiondomain.NewEngine(companionStore, nil)
	if err != nil {
		return fmt.Errorf("build companion engine: %w", err)
	}

	lockManager, err := distlock.NewManager(lockStore, nil, nil)
	if err != nil {
		return fmt.Errorf("build lock manager: %w", err)
	}
	jobs, err := Jobs(Engines{
		Economy:   economyEngine,
		Bounty:    bountyEngine,
		Companion: companionEngine,
	}, cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("build job table: %w", err)
	}
	sched, err := scheduler.New(lockManager, jobs, nil, nil)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on simworker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("simworker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	log.Printf("simworker server listening at %v seed=%d", listener.Addr(), seed)
	<-ctx.Done()
	return nil
}
