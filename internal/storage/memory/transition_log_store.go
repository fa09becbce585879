package memory

import (
	"context"
	"sort"
	"sync"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// TransitionLogStore is an in-memory implementation of storage.TransitionLogStore.
type TransitionLogStore struct {
	mu     sync.RWMutex
	events []*domain.TransitionEvent
}

// NewTransitionLogStore creates a new in-memory transition log.
func NewTransitionLogStore() *TransitionLogStore {
	return &TransitionLogStore{}
}

// Append adds an event to the log.
func (s *TransitionLogStore) Append(_ context.Context, ev *domain.TransitionEvent) error {
	if ev == nil || ev.LaunchID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evCopy := *ev
	s.events = append(s.events, &evCopy)
	return nil
}

// GetByLaunchID returns events for a launch in occurrence order.
func (s *TransitionLogStore) GetByLaunchID(_ context.Context, launchID string) ([]*domain.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransitionEvent
	for _, ev := range s.events {
		if ev.LaunchID == launchID {
			evCopy := *ev
			result = append(result, &evCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt < result[j].OccurredAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TransitionLogStore = (*TransitionLogStore)(nil)
