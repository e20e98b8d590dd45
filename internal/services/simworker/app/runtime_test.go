package app

import (
	"context"
	"database/sql"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	bountydomain "github.com/redgulch/frontier/internal/services/bounty/domain"
	bountysqlite "github.com/redgulch/frontier/internal/services/bounty/storage/sqlite"
	companiondomain "github.com/redgulch/frontier/internal/services/companion/domain"
	companionsqlite "github.com/redgulch/frontier/internal/services/companion/storage/sqlite"
	economydomain "github.com/redgulch/frontier/internal/services/economy/domain"
	economysqlite "github.com/redgulch/frontier/internal/services/economy/storage/sqlite"
	_ "modernc.org/sqlite"
)

func testEngines(t *testing.T) Engines {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "frontier.db") + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close sqlite db: %v", err)
		}
	})

	economyStore, err := economysqlite.OpenDB(sqlDB)
	if err != nil {
		t.Fatalf("open economy store: %v", err)
	}
	bountyStore, err := bountysqlite.OpenDB(sqlDB)
	if err != nil {
		t.Fatalf("open bounty store: %v", err)
	}
	companionStore, err := companionsqlite.OpenDB(sqlDB)
	if err != nil {
		t.Fatalf("open companion store: %v", err)
	}

	economyEngine, err := economydomain.NewEngine(economyStore, economydomain.DefaultCatalog(), nil, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build economy engine: %v", err)
	}
	bountyEngine, err := bountydomain.NewEngine(bountyStore, nil, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("build bounty engine: %v", err)
	}
	companionEngine, err := companiondomain.NewEngine(companionStore, nil)
	if err != nil {
		t.Fatalf("build companion engine: %v", err)
	}
	return Engines{Economy: economyEngine, Bounty: bountyEngine, Companion: companionEngine}
}

func TestJobsCoversEverySimulationJob(t *testing.T) {
	jobs, err := Jobs(testEngines(t), time.Minute)
	if err != nil {
		t.Fatalf("build jobs: %v", err)
	}

	want := map[string]bool{
		JobEconomyTick:        false,
		JobEconomyCleanup:     false,
		JobBountyExpiration:   false,
		JobBountyDecay:        false,
		JobHunterTracking:     false,
		JobCompanionBondDecay: false,
	}
	for _, job := range jobs {
		seen, ok := want[job.ID]
		if !ok {
			t.Fatalf("unexpected job %s", job.ID)
		}
		if seen {
			t.Fatalf("duplicate job %s", job.ID)
		}
		want[job.ID] = true
		if job.Cadence == nil || job.Run == nil {
			t.Fatalf("job %s is incomplete", job.ID)
		}
		if job.LockTTL != time.Minute {
			t.Fatalf("job %s lock ttl = %s, want 1m", job.ID, job.LockTTL)
		}
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("missing job %s", id)
		}
	}
}

func TestJobHandlersRunAgainstEmptyWorld(t *testing.T) {
	jobs, err := Jobs(testEngines(t), time.Minute)
	if err != nil {
		t.Fatalf("build jobs: %v", err)
	}

	// Every handler must tolerate an empty world: fresh deployments start
	// with no hunts, no bounties, and no companions.
	for _, job := range jobs {
		if _, err := job.Run(context.Background()); err != nil {
			t.Fatalf("job %s: %v", job.ID, err)
		}
	}
}

func TestJobsRequiresEngines(t *testing.T) {
	if _, err := Jobs(Engines{}, time.Minute); err == nil {
		t.Fatal("expected error for missing engines")
	}
}
