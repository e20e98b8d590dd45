// Package distlock provides a time-bounded mutual-exclusion lease over a
// shared linearizable store. At most one holder owns a key at any instant;
// a crashed holder's lease self-heals once its TTL passes.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld reports that another holder owns the lease. It is an expected
// outcome for periodic jobs running on multiple instances, not an
// operational error.
var ErrLockHeld = errors.New("lock held by another owner")

// Store is the narrow contract a linearizable key-value backend must
// satisfy: an atomic create-if-absent-or-expired and an atomic
// delete-if-token-matches.
type Store interface {
	// TryAcquire atomically writes a lease for key when no live lease
	// exists. It reports whether the lease was granted.
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes the lease for key only when the stored token matches.
	// It reports whether a lease was deleted.
	Release(ctx context.Context, key, token string) (bool, error)
}

// Manager issues and releases lock leases against a Store.
type Manager struct {
	store Store
	clock func() time.Time
	logf  func(format string, args ...any)
}

// NewManager creates a lock manager. A nil clock defaults to time.Now and a
// nil logf defaults to log.Printf.
func NewManager(store Store, clock func() time.Time, logf func(format string, args ...any)) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("lock store is required")
	}
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Manager{store: store, clock: clock, logf: logf}, nil
}

// Lease is a granted lock. It is valid until ExpiresAt and must be released
// by the holder that acquired it.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time

	manager *Manager
}

// TryAcquire makes a single acquisition attempt for key. It returns
// ErrLockHeld when another holder owns a live lease. Periodic jobs use zero
// retries: contention means another instance already runs this job.
func (m *Manager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if key == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	token := uuid.NewString()
	acquired, err := m.store.TryAcquire(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return &Lease{
		Key:       key,
		Token:     token,
		ExpiresAt: m.clock().Add(ttl),
		manager:   m,
	}, nil
}

// Release deletes the lease unless its TTL has already elapsed, in which
// case the store has reclaimed it and deleting could remove a lease granted
// to a newer holder of the same key. It reports whether the store deleted
// the lease.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	if l == nil || l.manager == nil {
		return false, nil
	}
	if !l.manager.clock().Before(l.ExpiresAt) {
		return false, nil
	}
	released, err := l.manager.store.Release(ctx, l.Key, l.Token)
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", l.Key, err)
	}
	return released, nil
}

// RunUnderLock runs fn while holding the lease for key, releasing it on
// every exit path. Contention surfaces as ErrLockHeld; callers must treat
// it as a skip, not a failure.
func (m *Manager) RunUnderLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := m.TryAcquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// Release uses a fresh context so shutdown cancellation does not
		// strand a live lease until its TTL expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := lease.Release(releaseCtx); err != nil {
			m.logf("release lock %s: %v", key, err)
		}
	}()
	return fn(ctx)
}
