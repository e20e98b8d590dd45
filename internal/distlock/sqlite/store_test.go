package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "locks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestTryAcquireGrantsSingleLease(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	acquired, err := store.TryAcquire(context.Background(), "economy_tick", "token-a", time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	acquired, err = store.TryAcquire(context.Background(), "economy_tick", "token-b", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Fatal("expected second acquire to fail while lease is live")
	}
}

func TestTryAcquireReclaimsExpiredLease(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if _, err := store.TryAcquire(context.Background(), "economy_tick", "token-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	now = now.Add(time.Minute)
	acquired, err := store.TryAcquire(context.Background(), "economy_tick", "token-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !acquired {
		t.Fatal("expected expired lease to be reclaimed")
	}
}

func TestReleaseRequiresMatchingToken(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if _, err := store.TryAcquire(context.Background(), "bounty_decay", "token-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	released, err := store.Release(context.Background(), "bounty_decay", "token-b")
	if err != nil {
		t.Fatalf("release wrong token: %v", err)
	}
	if released {
		t.Fatal("expected release with stale token to be a no-op")
	}

	// The original holder's lease must remain intact.
	acquired, err := store.TryAcquire(context.Background(), "bounty_decay", "token-c", time.Minute)
	if err != nil {
		t.Fatalf("acquire after stale release: %v", err)
	}
	if acquired {
		t.Fatal("expected lease to survive stale release")
	}

	released, err = store.Release(context.Background(), "bounty_decay", "token-a")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released {
		t.Fatal("expected matching-token release to delete the lease")
	}
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for _, key := range []string{"economy_tick", "bounty_decay", "hunter_tracking"} {
		acquired, err := store.TryAcquire(context.Background(), key, "token-"+key, time.Minute)
		if err != nil {
			t.Fatalf("acquire %s: %v", key, err)
		}
		if !acquired {
			t.Fatalf("expected acquire for %s to succeed", key)
		}
	}
}

func TestTryAcquireValidation(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.TryAcquire(context.Background(), "", "token", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := store.TryAcquire(context.Background(), "key", "", time.Minute); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := store.TryAcquire(context.Background(), "key", "token", 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}
