// Package domain holds animal companion bonds and the neglect decay rules.
package domain

import (
	"math"
	"time"
)

// Species classifies a companion animal.
type Species string

// Companion species.
const (
	SpeciesHorse  Species = "horse"
	SpeciesDog    Species = "dog"
	SpeciesHawk   Species = "hawk"
	SpeciesCoyote Species = "coyote"
)

// Bond level bounds.
const (
	MinBond = 0
	MaxBond = 100
)

// Neglect thresholds and the decay applied past each.
const (
	neglectThreshold       = 48 * time.Hour
	severeNeglectThreshold = 96 * time.Hour
	neglectDecay           = 3
	severeNeglectDecay     = 10
)

// AnimalCompanion is a character's bonded animal. BondLevel stays within
// [MinBond, MaxBond]; LastActive is the last time the owner interacted with
// the companion.
type AnimalCompanion struct {
	ID          string
	CharacterID string
	Name        string
	Species     Species
	BondLevel   int
	LastActive  time.Time
	UpdatedAt   time.Time
}

// Neglected reports whether the companion has gone without interaction past
// the neglect threshold at now.
func (c *AnimalCompanion) Neglected(now time.Time) bool {
	return now.Sub(c.LastActive) > neglectThreshold
}

// ApplyNeglectDecay reduces the bond when the companion is neglected at
// now. Past 96 hours of neglect the heavier decay applies; past 48 hours
// the lighter one. The bond clamps at zero. It returns the points removed;
// zero means nothing changed and nothing needs persisting.
func (c *AnimalCompanion) ApplyNeglectDecay(now time.Time) int {
	if c.BondLevel <= MinBond {
		return 0
	}
	if !c.Neglected(now) {
		return 0
	}
	decay := neglectDecay
	if now.Sub(c.LastActive) > severeNeglectThreshold {
		decay = severeNeglectDecay
	}
	before := c.BondLevel
	c.BondLevel = int(math.Max(MinBond, float64(c.BondLevel-decay)))
	c.UpdatedAt = now
	return before - c.BondLevel
}

// RecordInteraction marks the companion active at now and raises the bond,
// clamped to the maximum.
func (c *AnimalCompanion) RecordInteraction(now time.Time, bondGain int) {
	if bondGain > 0 {
		c.BondLevel = int(math.Min(MaxBond, float64(c.BondLevel+bondGain)))
	}
	c.LastActive = now
	c.UpdatedAt = now
}
