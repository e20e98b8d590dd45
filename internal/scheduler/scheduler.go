// Package scheduler fires periodic simulation jobs from a declarative job
// table. Every process in the fleet runs an identical scheduler; each
// firing is wrapped in a distributed lock lease so only one instance
// executes a given job per cadence window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/redgulch/frontier/internal/distlock"
)

// Job is one scheduled simulation task. Run returns a short human-readable
// summary for the completion log. LockTTL must exceed the worst-case run
// duration so near-simultaneous firings across instances collapse to one
// executor while a crashed holder's lease still self-heals.
type Job struct {
	ID      string
	Cadence Cadence
	LockTTL time.Duration
	Run     func(ctx context.Context) (string, error)
}

// Scheduler owns the job table and one timer loop per job.
type Scheduler struct {
	locks  *distlock.Manager
	jobs   []Job
	clock  func() time.Time
	logf   func(format string, args ...any)
	tracer trace.Tracer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler over the given job table. A nil clock defaults to
// time.Now and a nil logf defaults to log.Printf.
func New(locks *distlock.Manager, jobs []Job, clock func() time.Time, logf func(format string, args ...any)) (*Scheduler, error) {
	if locks == nil {
		return nil, fmt.Errorf("lock manager is required")
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one job is required")
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			return nil, fmt.Errorf("job id is required")
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("duplicate job id %q", job.ID)
		}
		seen[job.ID] = true
		if job.Cadence == nil {
			return nil, fmt.Errorf("job %s: cadence is required", job.ID)
		}
		if job.LockTTL <= 0 {
			return nil, fmt.Errorf("job %s: lock ttl must be positive", job.ID)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %s: run function is required", job.ID)
		}
	}
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Scheduler{
		locks:  locks,
		jobs:   jobs,
		clock:  clock,
		logf:   logf,
		tracer: otel.Tracer("github.com/redgulch/frontier/internal/scheduler"),
	}, nil
}

// Start launches one loop per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(runCtx, job)
		}(job)
	}
	return nil
}

// Stop cancels future firings and waits for in-flight handlers to return.
// It never interrupts a running handler and is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	timer := time.NewTimer(time.Until(job.Cadence.Next(s.clock())))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runJob(ctx, job)
			timer.Reset(time.Until(job.Cadence.Next(s.clock())))
		}
	}
}

// runJob executes one firing under the job's lock key. Contention means
// another instance already runs this job; it is logged and skipped, never
// treated as a failure. A handler error is contained to this firing.
// The firing runs on a context detached from the loop's cancellation: Stop
// prevents future firings only and waits for this one to return.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	jobCtx, span := s.tracer.Start(context.WithoutCancel(ctx), "job "+job.ID,
		trace.WithAttributes(attribute.String("job.id", job.ID)),
	)
	defer span.End()

	start := s.clock()
	var summary string
	err := s.locks.RunUnderLock(jobCtx, job.ID, job.LockTTL, func(ctx context.Context) error {
		var runErr error
		summary, runErr = job.Run(ctx)
		return runErr
	})
	duration := s.clock().Sub(start)

	switch {
	case errors.Is(err, distlock.ErrLockHeld):
		s.logf("job=%s skipped: lock held by another instance", job.ID)
	case err != nil:
		span.RecordError(err)
		s.logf("job=%s failed duration=%s error=%q", job.ID, duration.Round(time.Millisecond), err)
	default:
		s.logf("job=%s completed duration=%s %s", job.ID, duration.Round(time.Millisecond), summary)
	}
}
