package domain

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redgulch/frontier/internal/platform/id"
)

// Spawn policy constants. Shape matters to the engine (bounded event count,
// probabilistic spawn); exact tuning is balance policy.
const (
	maxConcurrentEvents = 3
	spawnChance         = 0.25
)

// Alert thresholds evaluated after every index recomputation.
const (
	surgeThreshold    = 2.0
	collapseThreshold = 0.5
)

// baseline drift pulls each index toward 1.0 by this fraction per tick,
// with a small random jitter on top.
const (
	driftFactor = 0.05
	jitterSpan  = 0.04
)

// Store is the persistence the economy engine needs. Implementations load
// the singleton market aggregate (creating it lazily) and enforce the
// optimistic version check on save.
type Store interface {
	LoadMarketState(ctx context.Context) (*MarketState, error)
	SaveMarketState(ctx context.Context, state *MarketState) error
	ListActiveEvents(ctx context.Context) ([]EconomicEvent, error)
	SaveEvents(ctx context.Context, events []EconomicEvent) error
}

// Engine runs the market simulation over a Store. It holds no aggregate
// state of its own: every operation is load, mutate, save.
type Engine struct {
	store   Store
	catalog []CatalogEntry
	clock   func() time.Time
	rng     *rand.Rand
}

// NewEngine creates the economy engine. A nil clock defaults to time.Now;
// a nil catalog defaults to DefaultCatalog. The rng seeds every
// probabilistic draw, so a fixed seed makes ticks reproducible.
func NewEngine(store Store, catalog []CatalogEntry, clock func() time.Time, rng *rand.Rand) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("economy store is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, catalog: catalog, clock: clock, rng: rng}, nil
}

// TickSummary reports what one economy tick changed.
type TickSummary struct {
	EventsSpawned       int
	EventsExpired       int
	PriceIndexesUpdated int
	Alerts              int
}

func (s TickSummary) String() string {
	return fmt.Sprintf("spawned=%d expired=%d indexes=%d alerts=%d",
		s.EventsSpawned, s.EventsExpired, s.PriceIndexesUpdated, s.Alerts)
}

// Tick advances the market one step: expire events, maybe spawn new ones,
// recompute indexes, snapshot, evaluate alerts, persist.
func (e *Engine) Tick(ctx context.Context) (TickSummary, error) {
	now := e.clock().UTC()
	var summary TickSummary

	state, err := e.store.LoadMarketState(ctx)
	if err != nil {
		return summary, fmt.Errorf("load market state: %w", err)
	}
	events, err := e.store.ListActiveEvents(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active events: %w", err)
	}

	var active []EconomicEvent
	var changed []EconomicEvent
	for _, event := range events {
		if event.Expired(now) {
			event.IsActive = false
			changed = append(changed, event)
			summary.EventsExpired++
			continue
		}
		active = append(active, event)
	}

	for len(active) < maxConcurrentEvents && e.rng.Float64() < spawnChance {
		entry, ok := PickWeighted(e.catalog, e.rng)
		if !ok {
			break
		}
		eventID, err := id.NewID()
		if err != nil {
			return summary, fmt.Errorf("generate event id: %w", err)
		}
		event := EconomicEvent{
			ID:        eventID,
			Type:      entry.Type,
			IsActive:  true,
			StartedAt: now,
			ExpiresAt: now.Add(entry.RollDuration(e.rng)),
			Effects:   entry.Effects,
		}
		active = append(active, event)
		changed = append(changed, event)
		summary.EventsSpawned++
	}

	e.recomputeIndexes(state, active)
	summary.PriceIndexesUpdated = len(state.PriceIndexes)
	state.AppendSnapshot(now)
	summary.Alerts = e.evaluateAlerts(state, now)

	state.ActiveEventIDs = state.ActiveEventIDs[:0]
	for _, event := range active {
		state.ActiveEventIDs = append(state.ActiveEventIDs, event.ID)
	}
	state.UpdatedAt = now

	if len(changed) > 0 {
		if err := e.store.SaveEvents(ctx, changed); err != nil {
			return summary, fmt.Errorf("save events: %w", err)
		}
	}
	if err := e.store.SaveMarketState(ctx, state); err != nil {
		return summary, fmt.Errorf("save market state: %w", err)
	}
	return summary, nil
}

// recomputeIndexes applies baseline drift toward 1.0 plus the product of
// active event effects, clamped to the permitted range.
func (e *Engine) recomputeIndexes(state *MarketState, active []EconomicEvent) {
	for _, category := range Categories() {
		current, ok := state.PriceIndexes[category]
		if !ok {
			current = 1.0
		}
		drifted := current + (1.0-current)*driftFactor
		drifted += (e.rng.Float64() - 0.5) * jitterSpan

		effect := 1.0
		for _, event := range active {
			if multiplier, ok := event.Effects[category]; ok && multiplier > 0 {
				effect *= multiplier
			}
		}
		state.PriceIndexes[category] = ClampIndex(drifted * effect)
	}
}

// evaluateAlerts appends an unacknowledged alert for every index past a
// surge or collapse threshold. Returns how many alerts were raised.
func (e *Engine) evaluateAlerts(state *MarketState, now time.Time) int {
	raised := 0
	for _, category := range Categories() {
		value := state.PriceIndexes[category]
		var message string
		switch {
		case value >= surgeThreshold:
			message = fmt.Sprintf("price surge: %s index at %.2f", category, value)
		case value <= collapseThreshold:
			message = fmt.Sprintf("price collapse: %s index at %.2f", category, value)
		default:
			continue
		}
		alertID, err := id.NewID()
		if err != nil {
			// An alert without a fresh id is still worth surfacing.
			alertID = fmt.Sprintf("%s-%d", category, now.UnixMilli())
		}
		state.Alerts = append(state.Alerts, Alert{
			ID:        alertID,
			Message:   message,
			Timestamp: now,
		})
		raised++
	}
	return raised
}

// CleanupSummary reports what the daily cleanup removed.
type CleanupSummary struct {
	AlertsRemoved    int
	SnapshotsTrimmed int
}

func (s CleanupSummary) String() string {
	return fmt.Sprintf("alerts_removed=%d snapshots_trimmed=%d", s.AlertsRemoved, s.SnapshotsTrimmed)
}

// Cleanup removes acknowledged alerts older than the retention window and
// re-trims the snapshot history to its cap.
func (e *Engine) Cleanup(ctx context.Context) (CleanupSummary, error) {
	now := e.clock().UTC()
	var summary CleanupSummary

	state, err := e.store.LoadMarketState(ctx)
	if err != nil {
		return summary, fmt.Errorf("load market state: %w", err)
	}
	summary.AlertsRemoved = state.CleanupAlerts(now)
	summary.SnapshotsTrimmed = state.TrimSnapshots()
	state.UpdatedAt = now

	if err := e.store.SaveMarketState(ctx, state); err != nil {
		return summary, fmt.Errorf("save market state: %w", err)
	}
	return summary, nil
}

// ForceExpireSummary reports an administrative force-expire.
type ForceExpireSummary struct {
	EventsExpired int
}

func (s ForceExpireSummary) String() string {
	return fmt.Sprintf("events_expired=%d", s.EventsExpired)
}

// ForceExpireAll deactivates every active event immediately and clears the
// active set. Callers must hold the economy tick lock: this mutates the
// same aggregate the scheduled tick does.
func (e *Engine) ForceExpireAll(ctx context.Context) (ForceExpireSummary, error) {
	now := e.clock().UTC()
	var summary ForceExpireSummary

	state, err := e.store.LoadMarketState(ctx)
	if err != nil {
		return summary, fmt.Errorf("load market state: %w", err)
	}
	events, err := e.store.ListActiveEvents(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active events: %w", err)
	}

	for i := range events {
		events[i].IsActive = false
	}
	summary.EventsExpired = len(events)
	state.ActiveEventIDs = nil
	state.UpdatedAt = now

	if len(events) > 0 {
		if err := e.store.SaveEvents(ctx, events); err != nil {
			return summary, fmt.Errorf("save events: %w", err)
		}
	}
	if err := e.store.SaveMarketState(ctx, state); err != nil {
		return summary, fmt.Errorf("save market state: %w", err)
	}
	return summary, nil
}
