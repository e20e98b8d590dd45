package domain

import (
	"context"
	"fmt"
	"time"
)

// Store is the persistence the companion engine needs.
type Store interface {
	// ListBondedCompanions returns companions with a bond above zero.
	// Companions already at zero cannot decay further and are skipped.
	ListBondedCompanions(ctx context.Context) ([]AnimalCompanion, error)
	SaveCompanion(ctx context.Context, companion *AnimalCompanion) error
}

// Engine runs the companion bond decay job.
type Engine struct {
	store Store
	clock func() time.Time
}

// NewEngine creates the companion engine. A nil clock defaults to time.Now.
func NewEngine(store Store, clock func() time.Time) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("companion store is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, clock: clock}, nil
}

// BondDecaySummary reports a neglect decay pass.
type BondDecaySummary struct {
	CompanionsDecayed int
	TotalDecay        int
}

func (s BondDecaySummary) String() string {
	return fmt.Sprintf("companions_decayed=%d total_decay=%d", s.CompanionsDecayed, s.TotalDecay)
}

// ProcessNeglectDecay reduces the bond of every neglected companion.
// Companions interacted with recently, or already at zero bond, are left
// untouched and never rewritten.
func (e *Engine) ProcessNeglectDecay(ctx context.Context) (BondDecaySummary, error) {
	now := e.clock().UTC()
	var summary BondDecaySummary

	companions, err := e.store.ListBondedCompanions(ctx)
	if err != nil {
		return summary, fmt.Errorf("list bonded companions: %w", err)
	}
	for i := range companions {
		companion := companions[i]
		decayed := companion.ApplyNeglectDecay(now)
		if decayed == 0 {
			continue
		}
		if err := e.store.SaveCompanion(ctx, &companion); err != nil {
			return summary, fmt.Errorf("save companion %s: %w", companion.ID, err)
		}
		summary.CompanionsDecayed++
		summary.TotalDecay += decayed
	}
	return summary, nil
}
