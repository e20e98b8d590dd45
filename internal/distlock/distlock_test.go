package distlock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeLease struct {
	token     string
	expiresAt time.Time
}

type fakeStore struct {
	leases map[string]fakeLease
	clock  func() time.Time

	acquireErr error
	releaseErr error
	released   []string
}

func newFakeStore(clock func() time.Time) *fakeStore {
	return &fakeStore{leases: make(map[string]fakeLease), clock: clock}
}

func (s *fakeStore) TryAcquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	now := s.clock()
	if current, ok := s.leases[key]; ok && current.expiresAt.After(now) {
		return false, nil
	}
	s.leases[key] = fakeLease{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *fakeStore) Release(_ context.Context, key, token string) (bool, error) {
	if s.releaseErr != nil {
		return false, s.releaseErr
	}
	current, ok := s.leases[key]
	if !ok || current.token != token {
		return false, nil
	}
	delete(s.leases, key)
	s.released = append(s.released, key)
	return true, nil
}

func TestTryAcquireContention(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newFakeStore(clock)
	manager, err := NewManager(store, clock, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	first, err := manager.TryAcquire(context.Background(), "economy_tick", time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if first.Token == "" {
		t.Fatal("expected opaque lease token")
	}

	_, err = manager.TryAcquire(context.Background(), "economy_tick", time.Minute)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire = %v, want ErrLockHeld", err)
	}
}

func TestTryAcquireSucceedsAfterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newFakeStore(func() time.Time { return now })
	manager, err := NewManager(store, clock, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.TryAcquire(context.Background(), "economy_tick", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	now = now.Add(time.Minute + time.Second)
	if _, err := manager.TryAcquire(context.Background(), "economy_tick", time.Minute); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestReleaseSkippedAfterTTLElapsed(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newFakeStore(clock)
	manager, err := NewManager(store, clock, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	lease, err := manager.TryAcquire(context.Background(), "bounty_decay", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	now = now.Add(2 * time.Minute)
	released, err := lease.Release(context.Background())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Fatal("expected release to be skipped after ttl elapsed")
	}
	if len(store.released) != 0 {
		t.Fatalf("expected no store deletes, got %v", store.released)
	}
}

func TestRunUnderLockReleasesOnSuccessAndFailure(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newFakeStore(clock)
	manager, err := NewManager(store, clock, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := manager.RunUnderLock(context.Background(), "hunter_tracking", time.Minute, func(context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("run under lock: %v", err)
	}
	if len(store.released) != 1 {
		t.Fatalf("expected one release, got %d", len(store.released))
	}

	handlerErr := fmt.Errorf("store unavailable")
	err = manager.RunUnderLock(context.Background(), "hunter_tracking", time.Minute, func(context.Context) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("run under lock error = %v, want handler error", err)
	}
	if len(store.released) != 2 {
		t.Fatalf("expected release after handler failure, got %d releases", len(store.released))
	}
}

func TestRunUnderLockContentionSkips(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newFakeStore(clock)
	manager, err := NewManager(store, clock, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.TryAcquire(context.Background(), "economy_tick", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ran := false
	err = manager.RunUnderLock(context.Background(), "economy_tick", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("run under lock = %v, want ErrLockHeld", err)
	}
	if ran {
		t.Fatal("expected handler to be skipped under contention")
	}
}

func TestNewManagerRequiresStore(t *testing.T) {
	if _, err := NewManager(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}
