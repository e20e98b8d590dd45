package domain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrNoActiveHunt reports that a character has no non-terminal hunt.
var ErrNoActiveHunt = errors.New("no active hunt for character")

// Store is the persistence the bounty engines need.
type Store interface {
	// ListNonTerminalHunts returns every hunt still in a non-terminal
	// state. A character has at most one such hunt; that is enforced at
	// hunt creation, not here.
	ListNonTerminalHunts(ctx context.Context) ([]BountyHunt, error)
	SaveHunt(ctx context.Context, hunt *BountyHunt) error
	GetActiveHunt(ctx context.Context, characterID string) (*BountyHunt, error)
	// ExpireHuntsBefore marks every non-terminal hunt past its expiry as
	// expired in one conditional bulk update. It returns the count changed.
	ExpireHuntsBefore(ctx context.Context, now time.Time) (int, error)
	// ListOutstandingBounties returns faction bounties with amount > 0.
	ListOutstandingBounties(ctx context.Context) ([]FactionBounty, error)
	SaveFactionBounty(ctx context.Context, bounty *FactionBounty) error
}

// Encounter roll policy.
const (
	encounterChance   = 0.35
	clueProgressBonus = 5.0
	energyPerHour     = 2.0
)

// Locations a hunt can move through. Ambushes and gang encounters push the
// trail to a new location.
var trailLocations = []string{
	"Rattlesnake Gulch",
	"Copper Junction",
	"Fort Alvarado",
	"Dry Creek",
	"San Miguel",
	"The Badlands",
}

type encounterWeight struct {
	kind   EncounterType
	weight int
}

var encounterWeights = []encounterWeight{
	{EncounterClue, 35},
	{EncounterWitness, 20},
	{EncounterAmbush, 20},
	{EncounterGang, 15},
	{EncounterTrap, 10},
}

var outcomeWeights = []struct {
	outcome EncounterOutcome
	weight  int
}{
	{OutcomeSuccess, 45},
	{OutcomePartial, 30},
	{OutcomeFailure, 25},
}

// Engine runs the bounty lifecycle and hunter tracking jobs. Encounter
// rolls come from an injected rng, so a fixed seed replays identically.
type Engine struct {
	store Store
	clock func() time.Time
	rng   *rand.Rand
}

// NewEngine creates the bounty engine. A nil clock defaults to time.Now.
func NewEngine(store Store, clock func() time.Time, rng *rand.Rand) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("bounty store is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, clock: clock, rng: rng}, nil
}

// ExpireSummary reports an expiry sweep.
type ExpireSummary struct {
	BountiesExpired int
}

func (s ExpireSummary) String() string {
	return fmt.Sprintf("bounties_expired=%d", s.BountiesExpired)
}

// ExpireOldBounties marks hunts past their expiry as expired. Already
// expired hunts are outside the scan, so re-running is a no-op.
func (e *Engine) ExpireOldBounties(ctx context.Context) (ExpireSummary, error) {
	now := e.clock().UTC()
	expired, err := e.store.ExpireHuntsBefore(ctx, now)
	if err != nil {
		return ExpireSummary{}, fmt.Errorf("expire hunts: %w", err)
	}
	return ExpireSummary{BountiesExpired: expired}, nil
}

// DecaySummary reports a faction bounty decay pass.
type DecaySummary struct {
	BountiesDecayed int
	TotalReduced    float64
}

func (s DecaySummary) String() string {
	return fmt.Sprintf("bounties_decayed=%d total_reduced=%.2f", s.BountiesDecayed, s.TotalReduced)
}

// DecayBounties reduces every outstanding faction bounty by elapsed time.
// A bounty already at zero contributes nothing and is not counted.
func (e *Engine) DecayBounties(ctx context.Context) (DecaySummary, error) {
	now := e.clock().UTC()
	var summary DecaySummary

	bounties, err := e.store.ListOutstandingBounties(ctx)
	if err != nil {
		return summary, fmt.Errorf("list outstanding bounties: %w", err)
	}
	for i := range bounties {
		bounty := bounties[i]
		reduction := bounty.Decay(now)
		if reduction <= 0 {
			continue
		}
		if err := e.store.SaveFactionBounty(ctx, &bounty); err != nil {
			return summary, fmt.Errorf("save faction bounty %s: %w", bounty.ID, err)
		}
		summary.BountiesDecayed++
		summary.TotalReduced += reduction
	}
	return summary, nil
}

// TrackingSummary reports a hunter tracking pass.
type TrackingSummary struct {
	HuntsAdvanced  int
	Encounters     int
	Confrontations int
	Expired        int
}

func (s TrackingSummary) String() string {
	return fmt.Sprintf("hunts_advanced=%d encounters=%d confrontations=%d expired=%d",
		s.HuntsAdvanced, s.Encounters, s.Confrontations, s.Expired)
}

// UpdateHunterPositions advances every non-terminal hunt. Expiry is
// evaluated before any other transition; live hunts gain progress from
// elapsed time, may roll an encounter, and confront once their threshold
// is crossed.
func (e *Engine) UpdateHunterPositions(ctx context.Context) (TrackingSummary, error) {
	now := e.clock().UTC()
	var summary TrackingSummary

	hunts, err := e.store.ListNonTerminalHunts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list non-terminal hunts: %w", err)
	}
	for i := range hunts {
		hunt := hunts[i]
		if hunt.Expired(now) {
			if err := hunt.TransitionTo(StatusExpired, now); err != nil {
				return summary, fmt.Errorf("expire hunt %s: %w", hunt.ID, err)
			}
			if err := e.store.SaveHunt(ctx, &hunt); err != nil {
				return summary, fmt.Errorf("save expired hunt %s: %w", hunt.ID, err)
			}
			summary.Expired++
			continue
		}

		e.advanceHunt(&hunt, now, &summary)
		if err := e.store.SaveHunt(ctx, &hunt); err != nil {
			return summary, fmt.Errorf("save hunt %s: %w", hunt.ID, err)
		}
		summary.HuntsAdvanced++
	}
	return summary, nil
}

func (e *Engine) advanceHunt(hunt *BountyHunt, now time.Time, summary *TrackingSummary) {
	since := hunt.UpdatedAt
	if since.IsZero() {
		since = hunt.StartedAt
	}
	hours := now.Sub(since).Hours()
	if hours < 0 {
		hours = 0
	}

	hunt.AddProgress(hunt.Tier.ProgressPerHour() * hours)
	hunt.EnergySpent += int(hours * energyPerHour)

	if e.rng.Float64() < encounterChance {
		encounter := e.rollEncounter(hunt, now)
		hunt.Encounters = append(hunt.Encounters, encounter)
		summary.Encounters++
	}

	if hunt.Status == StatusTracking && hunt.ConfrontationReady() {
		// The guard permits tracking -> confronted, so this cannot fail.
		if err := hunt.TransitionTo(StatusConfronted, now); err == nil {
			summary.Confrontations++
		}
	}
	hunt.UpdatedAt = now
}

func (e *Engine) rollEncounter(hunt *BountyHunt, now time.Time) BountyEncounter {
	kind := e.rollEncounterType()
	outcome := e.rollOutcome()

	location := hunt.CurrentLocation
	if kind == EncounterAmbush || kind == EncounterGang {
		location = e.rollLocation(hunt.CurrentLocation)
		hunt.CurrentLocation = location
	}
	if location == "" {
		location = e.rollLocation("")
		hunt.CurrentLocation = location
	}

	if kind == EncounterClue && outcome != OutcomeFailure {
		hunt.CluesFound++
		hunt.AddProgress(clueProgressBonus)
	}

	return BountyEncounter{
		Type:        kind,
		Location:    location,
		Outcome:     outcome,
		Description: fmt.Sprintf("%s at %s: %s", kind, location, outcome),
		Timestamp:   now,
	}
}

func (e *Engine) rollEncounterType() EncounterType {
	total := 0
	for _, entry := range encounterWeights {
		total += entry.weight
	}
	roll := e.rng.Intn(total)
	for _, entry := range encounterWeights {
		roll -= entry.weight
		if roll < 0 {
			return entry.kind
		}
	}
	return EncounterClue
}

func (e *Engine) rollOutcome() EncounterOutcome {
	total := 0
	for _, entry := range outcomeWeights {
		total += entry.weight
	}
	roll := e.rng.Intn(total)
	for _, entry := range outcomeWeights {
		roll -= entry.weight
		if roll < 0 {
			return entry.outcome
		}
	}
	return OutcomePartial
}

func (e *Engine) rollLocation(current string) string {
	for attempts := 0; attempts < 4; attempts++ {
		candidate := trailLocations[e.rng.Intn(len(trailLocations))]
		if candidate != current {
			return candidate
		}
	}
	return trailLocations[0]
}

// AbandonHunt ends a character's active hunt by explicit player action. It
// is never invoked by a scheduled job.
func (e *Engine) AbandonHunt(ctx context.Context, characterID string) error {
	now := e.clock().UTC()
	hunt, err := e.store.GetActiveHunt(ctx, characterID)
	if err != nil {
		return fmt.Errorf("get active hunt: %w", err)
	}
	if hunt == nil {
		return ErrNoActiveHunt
	}
	if err := hunt.TransitionTo(StatusAbandoned, now); err != nil {
		return err
	}
	if err := e.store.SaveHunt(ctx, hunt); err != nil {
		return fmt.Errorf("save abandoned hunt %s: %w", hunt.ID, err)
	}
	return nil
}
