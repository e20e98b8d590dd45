// Package domain holds the bounty-hunt aggregates: the per-character hunt
// state machine and outstanding faction bounties.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// HuntStatus is one state in the bounty-hunt machine.
type HuntStatus string

// Hunt states. The first two are non-terminal; the rest are terminal and
// freeze the hunt.
const (
	StatusTracking   HuntStatus = "tracking"
	StatusConfronted HuntStatus = "confronted"
	StatusCaptured   HuntStatus = "captured"
	StatusKilled     HuntStatus = "killed"
	StatusEscaped    HuntStatus = "escaped"
	StatusExpired    HuntStatus = "expired"
	StatusAbandoned  HuntStatus = "abandoned"
)

// Terminal reports whether the status freezes the hunt.
func (s HuntStatus) Terminal() bool {
	switch s {
	case StatusCaptured, StatusKilled, StatusEscaped, StatusExpired, StatusAbandoned:
		return true
	}
	return false
}

// ErrInvalidTransition reports a rejected hunt state change. Hunts in a
// terminal state are immutable.
var ErrInvalidTransition = errors.New("invalid hunt transition")

// validTransitions is the hunt state graph. Terminal states have no
// outgoing edges.
var validTransitions = map[HuntStatus]map[HuntStatus]bool{
	StatusTracking: {
		StatusConfronted: true,
		StatusCaptured:   true,
		StatusKilled:     true,
		StatusEscaped:    true,
		StatusExpired:    true,
		StatusAbandoned:  true,
	},
	StatusConfronted: {
		StatusCaptured:  true,
		StatusKilled:    true,
		StatusEscaped:   true,
		StatusExpired:   true,
		StatusAbandoned: true,
	},
}

// Tier ranks a bounty target. Higher tiers track slower and demand more
// clues before a confrontation.
type Tier string

// Bounty tiers.
const (
	TierPetty     Tier = "petty"
	TierWanted    Tier = "wanted"
	TierNotorious Tier = "notorious"
	TierLegendary Tier = "legendary"
)

type tierParams struct {
	progressPerHour float64
	cluesRequired   int
	captureReward   float64
}

var tierTable = map[Tier]tierParams{
	TierPetty:     {progressPerHour: 9, cluesRequired: 3, captureReward: 50},
	TierWanted:    {progressPerHour: 7, cluesRequired: 4, captureReward: 150},
	TierNotorious: {progressPerHour: 5, cluesRequired: 5, captureReward: 400},
	TierLegendary: {progressPerHour: 3, cluesRequired: 6, captureReward: 1000},
}

func (t Tier) params() tierParams {
	if params, ok := tierTable[t]; ok {
		return params
	}
	return tierTable[TierPetty]
}

// CluesRequired is how many clues trigger a confrontation for this tier.
func (t Tier) CluesRequired() int {
	return t.params().cluesRequired
}

// ProgressPerHour is the base tracking speed for this tier.
func (t Tier) ProgressPerHour() float64 {
	return t.params().progressPerHour
}

// EncounterType classifies a tracking encounter.
type EncounterType string

// Encounter kinds.
const (
	EncounterClue    EncounterType = "clue"
	EncounterAmbush  EncounterType = "ambush"
	EncounterWitness EncounterType = "witness"
	EncounterTrap    EncounterType = "trap"
	EncounterGang    EncounterType = "gang_encounter"
)

// EncounterOutcome is how an encounter resolved.
type EncounterOutcome string

// Encounter outcomes.
const (
	OutcomeSuccess EncounterOutcome = "success"
	OutcomePartial EncounterOutcome = "partial"
	OutcomeFailure EncounterOutcome = "failure"
)

// BountyEncounter is one event in a hunt's history.
type BountyEncounter struct {
	Type        EncounterType
	Location    string
	Outcome     EncounterOutcome
	Description string
	Timestamp   time.Time
}

// Rewards is the payout recorded when a hunt resolves as captured.
type Rewards struct {
	Cash       float64
	Reputation int
}

// Tracking progress bounds.
const (
	MinProgress = 0.0
	MaxProgress = 100.0
)

// BountyHunt is a per-character hunt session. Once the status is terminal
// the hunt is immutable.
type BountyHunt struct {
	ID               string
	CharacterID      string
	TargetID         string
	TargetName       string
	Tier             Tier
	Status           HuntStatus
	StartedAt        time.Time
	ExpiresAt        time.Time
	UpdatedAt        time.Time
	TrackingProgress float64
	CluesFound       int
	EnergySpent      int
	CurrentLocation  string
	Encounters       []BountyEncounter
	CaptureMethod    string
	Rewards          *Rewards
}

// Expired reports whether the hunt's window has closed at now.
func (h *BountyHunt) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// TransitionTo moves the hunt to status when the state graph permits it.
// Any transition out of a terminal state is rejected and the hunt is left
// unchanged.
func (h *BountyHunt) TransitionTo(status HuntStatus, now time.Time) error {
	if h.Status.Terminal() {
		return fmt.Errorf("hunt %s is %s: %w", h.ID, h.Status, ErrInvalidTransition)
	}
	allowed, ok := validTransitions[h.Status]
	if !ok || !allowed[status] {
		return fmt.Errorf("hunt %s: %s -> %s: %w", h.ID, h.Status, status, ErrInvalidTransition)
	}
	h.Status = status
	h.UpdatedAt = now
	return nil
}

// AddProgress advances tracking progress, clamped to the permitted range.
func (h *BountyHunt) AddProgress(delta float64) {
	h.TrackingProgress = math.Min(MaxProgress, math.Max(MinProgress, h.TrackingProgress+delta))
}

// ConfrontationReady reports whether accumulated progress or clues crossed
// the tier threshold.
func (h *BountyHunt) ConfrontationReady() bool {
	return h.TrackingProgress >= MaxProgress || h.CluesFound >= h.Tier.CluesRequired()
}

// Resolve ends the hunt with a terminal outcome from a resolved
// encounter: captured, killed, or escaped. Capture records the method and
// tier payout.
func (h *BountyHunt) Resolve(status HuntStatus, captureMethod string, now time.Time) error {
	switch status {
	case StatusCaptured, StatusKilled, StatusEscaped:
	default:
		return fmt.Errorf("hunt %s: %s is not a resolution: %w", h.ID, status, ErrInvalidTransition)
	}
	if err := h.TransitionTo(status, now); err != nil {
		return err
	}
	if status == StatusCaptured {
		h.CaptureMethod = captureMethod
		params := h.Tier.params()
		h.Rewards = &Rewards{
			Cash:       params.captureReward,
			Reputation: params.cluesRequired,
		}
	}
	return nil
}

// FactionBounty is an outstanding faction-posted bounty amount that decays
// toward zero over time. Amount never goes negative.
type FactionBounty struct {
	ID            string
	Faction       string
	TargetID      string
	Amount        float64
	LastDecayedAt time.Time
}

// decayRatePerHour is the fraction of the outstanding amount removed per
// elapsed hour.
const decayRatePerHour = 0.02

// Decay reduces the bounty by elapsed time since the last decay, clamping
// at zero. It returns the amount removed; a bounty already at zero decays
// by zero.
func (b *FactionBounty) Decay(now time.Time) float64 {
	if b.Amount <= 0 {
		b.Amount = 0
		b.LastDecayedAt = now
		return 0
	}
	elapsed := now.Sub(b.LastDecayedAt)
	if elapsed <= 0 {
		return 0
	}
	reduction := b.Amount * decayRatePerHour * elapsed.Hours()
	if reduction > b.Amount {
		reduction = b.Amount
	}
	b.Amount -= reduction
	b.LastDecayedAt = now
	return reduction
}
