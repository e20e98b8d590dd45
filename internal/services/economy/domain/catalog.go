package domain

import (
	"math/rand"
	"time"
)

// EventType identifies a kind of economic event.
type EventType string

// Economic event kinds.
const (
	EventDrought      EventType = "drought"
	EventGoldRush     EventType = "gold_rush"
	EventBanditRaid   EventType = "bandit_raid"
	EventRailroadBoom EventType = "railroad_boom"
	EventCattlePlague EventType = "cattle_plague"
	EventFestival     EventType = "festival"
)

// CatalogEntry describes how one event type spawns: its relative weight,
// duration window, and per-category price effects.
type CatalogEntry struct {
	Type        EventType
	Weight      int
	MinDuration time.Duration
	MaxDuration time.Duration
	Effects     map[Category]float64
}

// DefaultCatalog returns the weighted spawn catalog. Effect magnitudes are
// balance policy; the engine only requires they be positive multipliers.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Type:        EventDrought,
			Weight:      20,
			MinDuration: 12 * time.Hour,
			MaxDuration: 48 * time.Hour,
			Effects: map[Category]float64{
				CategoryProvisions: 1.6,
				CategoryLivestock:  1.3,
			},
		},
		{
			Type:        EventGoldRush,
			Weight:      10,
			MinDuration: 24 * time.Hour,
			MaxDuration: 72 * time.Hour,
			Effects: map[Category]float64{
				CategoryLuxury:     1.8,
				CategoryProvisions: 1.2,
			},
		},
		{
			Type:        EventBanditRaid,
			Weight:      25,
			MinDuration: 6 * time.Hour,
			MaxDuration: 24 * time.Hour,
			Effects: map[Category]float64{
				CategoryWeapons:  1.5,
				CategoryMedicine: 1.3,
			},
		},
		{
			Type:        EventRailroadBoom,
			Weight:      15,
			MinDuration: 24 * time.Hour,
			MaxDuration: 96 * time.Hour,
			Effects: map[Category]float64{
				CategoryProvisions: 0.8,
				CategoryLuxury:     1.3,
			},
		},
		{
			Type:        EventCattlePlague,
			Weight:      15,
			MinDuration: 24 * time.Hour,
			MaxDuration: 72 * time.Hour,
			Effects: map[Category]float64{
				CategoryLivestock: 2.0,
				CategoryMedicine:  1.5,
			},
		},
		{
			Type:        EventFestival,
			Weight:      15,
			MinDuration: 12 * time.Hour,
			MaxDuration: 36 * time.Hour,
			Effects: map[Category]float64{
				CategoryLuxury:     1.4,
				CategoryProvisions: 1.2,
			},
		},
	}
}

// PickWeighted selects one catalog entry by weight using draws from rng.
// Given the same catalog and rng state the pick is deterministic.
func PickWeighted(catalog []CatalogEntry, rng *rand.Rand) (CatalogEntry, bool) {
	total := 0
	for _, entry := range catalog {
		if entry.Weight > 0 {
			total += entry.Weight
		}
	}
	if total <= 0 {
		return CatalogEntry{}, false
	}
	roll := rng.Intn(total)
	for _, entry := range catalog {
		if entry.Weight <= 0 {
			continue
		}
		roll -= entry.Weight
		if roll < 0 {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}

// RollDuration draws an event duration inside the entry's window.
func (e CatalogEntry) RollDuration(rng *rand.Rand) time.Duration {
	if e.MaxDuration <= e.MinDuration {
		return e.MinDuration
	}
	return e.MinDuration + time.Duration(rng.Int63n(int64(e.MaxDuration-e.MinDuration)))
}
