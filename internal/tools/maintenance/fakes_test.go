package maintenance

import (
	"context"
	"sync"
	"time"

	economydomain "github.com/redgulch/frontier/internal/services/economy/domain"
)

// fakeMarketStore is an in-memory marketStore for command tests.
type fakeMarketStore struct {
	mu     sync.Mutex
	state  *economydomain.MarketState
	events map[string]economydomain.EconomicEvent
	closed bool

	loadErr error
}

func newFakeMarketStore(now time.Time) *fakeMarketStore {
	return &fakeMarketStore{
		state:  economydomain.NewMarketState(now),
		events: make(map[string]economydomain.EconomicEvent),
	}
}

func (s *fakeMarketStore) LoadMarketState(context.Context) (*economydomain.MarketState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	copied := *s.state
	return &copied, nil
}

func (s *fakeMarketStore) SaveMarketState(_ context.Context, state *economydomain.MarketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.state = &copied
	return nil
}

func (s *fakeMarketStore) ListActiveEvents(context.Context) ([]economydomain.EconomicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []economydomain.EconomicEvent
	for _, event := range s.events {
		if event.IsActive {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *fakeMarketStore) SaveEvents(_ context.Context, events []economydomain.EconomicEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		s.events[event.ID] = event
	}
	return nil
}

func (s *fakeMarketStore) AcknowledgeAlert(_ context.Context, alertID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Alerts {
		if s.state.Alerts[i].ID == alertID {
			s.state.Alerts[i].Acknowledged = true
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMarketStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeLockStore grants or denies every lease attempt.
type fakeLockStore struct {
	mu       sync.Mutex
	held     bool
	acquired []string
}

func (s *fakeLockStore) TryAcquire(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false, nil
	}
	s.acquired = append(s.acquired, key)
	return true, nil
}

func (s *fakeLockStore) Release(context.Context, string, string) (bool, error) {
	return true, nil
}
