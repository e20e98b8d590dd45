// Package domain holds the market-simulation aggregates and the economy
// tick engine that evolves them.
package domain

import (
	"errors"
	"math"
	"time"
)

// ErrVersionConflict reports that a market save lost an optimistic
// concurrency race: the stored version moved since this aggregate was
// loaded. Callers reload and retry on the next cadence.
var ErrVersionConflict = errors.New("market state version conflict")

// Category is a tradeable goods category with its own price index.
type Category string

// Goods categories tracked by the market.
const (
	CategoryProvisions Category = "provisions"
	CategoryLivestock  Category = "livestock"
	CategoryWeapons    Category = "weapons"
	CategoryMedicine   Category = "medicine"
	CategoryLuxury     Category = "luxury"
)

// Categories lists every tracked category in stable order.
func Categories() []Category {
	return []Category{
		CategoryProvisions,
		CategoryLivestock,
		CategoryWeapons,
		CategoryMedicine,
		CategoryLuxury,
	}
}

// Price index bounds. Indexes are clamped, never rejected: an engine step
// that would push an index out of range lands on the boundary instead.
const (
	MinPriceIndex = 0.1
	MaxPriceIndex = 10.0
)

// MaxHourlySnapshots bounds the rolling index history.
const MaxHourlySnapshots = 24

// AlertRetention is how long acknowledged alerts survive before daily
// cleanup removes them.
const AlertRetention = 7 * 24 * time.Hour

// EconomicEvent is a time-bounded modifier affecting category price
// indexes. Expired events are deactivated, not deleted, so history queries
// keep working.
type EconomicEvent struct {
	ID        string
	Type      EventType
	IsActive  bool
	StartedAt time.Time
	ExpiresAt time.Time
	Effects   map[Category]float64
}

// Expired reports whether the event's window has closed at now.
func (e EconomicEvent) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// IndexSnapshot is one hourly record of every category index.
type IndexSnapshot struct {
	TakenAt time.Time
	Indexes map[Category]float64
}

// Alert is a market condition notice surfaced to operators.
type Alert struct {
	ID           string
	Message      string
	Timestamp    time.Time
	Acknowledged bool
}

// MarketState is the global market aggregate. It is created lazily on
// first load and mutated by every economy tick; it is never deleted.
type MarketState struct {
	ActiveEventIDs  []string
	PriceIndexes    map[Category]float64
	HourlySnapshots []IndexSnapshot
	Alerts          []Alert

	// Version supports optimistic concurrency on save: a concurrent writer
	// that raced this load is detected instead of silently losing updates.
	Version   int64
	UpdatedAt time.Time
}

// NewMarketState returns the initial market aggregate with every index at
// baseline.
func NewMarketState(now time.Time) *MarketState {
	indexes := make(map[Category]float64, len(Categories()))
	for _, category := range Categories() {
		indexes[category] = 1.0
	}
	return &MarketState{
		PriceIndexes: indexes,
		UpdatedAt:    now,
	}
}

// ClampIndex bounds a price index to the permitted range.
func ClampIndex(value float64) float64 {
	if math.IsNaN(value) {
		return 1.0
	}
	return math.Min(MaxPriceIndex, math.Max(MinPriceIndex, value))
}

// AppendSnapshot records the current indexes and trims history to the most
// recent MaxHourlySnapshots entries. Append happens before trim so the
// newest snapshot is never the one dropped.
func (s *MarketState) AppendSnapshot(now time.Time) {
	indexes := make(map[Category]float64, len(s.PriceIndexes))
	for category, value := range s.PriceIndexes {
		indexes[category] = value
	}
	s.HourlySnapshots = append(s.HourlySnapshots, IndexSnapshot{TakenAt: now, Indexes: indexes})
	s.TrimSnapshots()
}

// TrimSnapshots drops the oldest entries beyond MaxHourlySnapshots. It
// returns how many were removed.
func (s *MarketState) TrimSnapshots() int {
	excess := len(s.HourlySnapshots) - MaxHourlySnapshots
	if excess <= 0 {
		return 0
	}
	s.HourlySnapshots = append(s.HourlySnapshots[:0], s.HourlySnapshots[excess:]...)
	return excess
}

// CleanupAlerts removes alerts that are acknowledged and older than the
// retention window. Unacknowledged alerts survive regardless of age.
func (s *MarketState) CleanupAlerts(now time.Time) int {
	cutoff := now.Add(-AlertRetention)
	kept := s.Alerts[:0]
	removed := 0
	for _, alert := range s.Alerts {
		if alert.Acknowledged && alert.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	s.Alerts = kept
	return removed
}
