package domain

import (
	"math/rand"
	"testing"
	"time"
)

func TestPickWeightedCoversCatalog(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	catalog := DefaultCatalog()

	picked := make(map[EventType]int)
	for i := 0; i < 1000; i++ {
		entry, ok := PickWeighted(catalog, rng)
		if !ok {
			t.Fatal("expected a pick from non-empty catalog")
		}
		picked[entry.Type]++
	}
	for _, entry := range catalog {
		if picked[entry.Type] == 0 {
			t.Fatalf("expected %s to be picked at least once over 1000 draws", entry.Type)
		}
	}
}

func TestPickWeightedDeterministicForSeed(t *testing.T) {
	catalog := DefaultCatalog()

	first, _ := PickWeighted(catalog, rand.New(rand.NewSource(42)))
	second, _ := PickWeighted(catalog, rand.New(rand.NewSource(42)))
	if first.Type != second.Type {
		t.Fatalf("same seed picked %s then %s", first.Type, second.Type)
	}
}

func TestPickWeightedEmptyCatalog(t *testing.T) {
	if _, ok := PickWeighted(nil, rand.New(rand.NewSource(1))); ok {
		t.Fatal("expected no pick from empty catalog")
	}
}

func TestRollDurationWithinWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	entry := CatalogEntry{MinDuration: 6 * time.Hour, MaxDuration: 24 * time.Hour}

	for i := 0; i < 100; i++ {
		d := entry.RollDuration(rng)
		if d < entry.MinDuration || d >= entry.MaxDuration {
			t.Fatalf("duration %v outside [%v, %v)", d, entry.MinDuration, entry.MaxDuration)
		}
	}
}

func TestRollDurationDegenerateWindow(t *testing.T) {
	entry := CatalogEntry{MinDuration: 6 * time.Hour, MaxDuration: 6 * time.Hour}
	if d := entry.RollDuration(rand.New(rand.NewSource(1))); d != 6*time.Hour {
		t.Fatalf("duration = %v, want %v", d, 6*time.Hour)
	}
}
