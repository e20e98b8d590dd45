package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redgulch/frontier/internal/services/companion/domain"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "companions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestSaveCompanionRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	companion := domain.AnimalCompanion{
		ID:          "comp-1",
		CharacterID: "char-1",
		Name:        "Whiskey",
		Species:     domain.SpeciesHorse,
		BondLevel:   62,
		LastActive:  now.Add(-6 * time.Hour),
		UpdatedAt:   now,
	}
	if err := store.SaveCompanion(context.Background(), &companion); err != nil {
		t.Fatalf("save: %v", err)
	}

	companions, err := store.ListBondedCompanions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(companions) != 1 {
		t.Fatalf("companions = %d, want 1", len(companions))
	}
	loaded := companions[0]
	if loaded.Name != "Whiskey" || loaded.Species != domain.SpeciesHorse || loaded.BondLevel != 62 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if !loaded.LastActive.Equal(now.Add(-6 * time.Hour)) {
		t.Fatalf("last active = %v", loaded.LastActive)
	}
}

func TestListBondedCompanionsExcludesZeroBond(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	bonded := domain.AnimalCompanion{
		ID: "comp-bonded", CharacterID: "char-1", Species: domain.SpeciesDog,
		BondLevel: 30, LastActive: now.Add(-72 * time.Hour), UpdatedAt: now,
	}
	drained := domain.AnimalCompanion{
		ID: "comp-drained", CharacterID: "char-2", Species: domain.SpeciesHawk,
		BondLevel: 0, LastActive: now.Add(-200 * time.Hour), UpdatedAt: now,
	}
	recent := domain.AnimalCompanion{
		ID: "comp-recent", CharacterID: "char-3", Species: domain.SpeciesHorse,
		BondLevel: 80, LastActive: now.Add(-time.Hour), UpdatedAt: now,
	}
	for _, companion := range []domain.AnimalCompanion{bonded, drained, recent} {
		companion := companion
		if err := store.SaveCompanion(context.Background(), &companion); err != nil {
			t.Fatalf("save %s: %v", companion.ID, err)
		}
	}

	companions, err := store.ListBondedCompanions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(companions) != 2 {
		t.Fatalf("companions = %d, want 2", len(companions))
	}
	// Longest idle first.
	if companions[0].ID != "comp-bonded" || companions[1].ID != "comp-recent" {
		t.Fatalf("order = %s, %s; want longest idle first", companions[0].ID, companions[1].ID)
	}
}

func TestSaveCompanionValidation(t *testing.T) {
	store := openTempStore(t)

	if err := store.SaveCompanion(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil companion")
	}
	if err := store.SaveCompanion(context.Background(), &domain.AnimalCompanion{}); err == nil {
		t.Fatal("expected error for missing companion id")
	}
}
