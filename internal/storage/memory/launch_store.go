package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// LaunchStore is an in-memory implementation of storage.LaunchStore.
type LaunchStore struct {
	mu      sync.RWMutex
	data    map[string]*versionedLaunch // keyed by launch id
	byOwner map[string][]string         // owner id -> launch ids
}

type versionedLaunch struct {
	rec     domain.LaunchRecord
	version int64
}

// NewLaunchStore creates a new in-memory launch store.
func NewLaunchStore() *LaunchStore {
	return &LaunchStore{
		data:    make(map[string]*versionedLaunch),
		byOwner: make(map[string][]string),
	}
}

// Put inserts a new record. Returns ErrDuplicateKey if the id exists.
func (s *LaunchStore) Put(_ context.Context, rec *domain.LaunchRecord) error {
	if rec == nil || rec.ID == "" || rec.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recCopy := *rec
	s.data[rec.ID] = &versionedLaunch{rec: recCopy, version: 1}
	s.byOwner[rec.OwnerID] = append(s.byOwner[rec.OwnerID], rec.ID)
	return nil
}

// Get retrieves a record and its version. Returns ErrNotFound if absent.
func (s *LaunchStore) Get(_ context.Context, id string) (*domain.LaunchRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[id]
	if !exists {
		return nil, 0, storage.ErrNotFound
	}

	recCopy := v.rec
	return &recCopy, v.version, nil
}

// Update replaces the record if version still matches.
func (s *LaunchStore) Update(_ context.Context, id string, version int64, rec *domain.LaunchRecord) error {
	if rec == nil || id == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if v.version != version {
		return storage.ErrVersionConflict
	}

	recCopy := *rec
	recCopy.ID = id
	recCopy.UpdatedAt = time.Now().UnixMilli()
	s.data[id] = &versionedLaunch{rec: recCopy, version: version + 1}
	return nil
}

// ListByOwner returns all records owned by ownerID, newest first.
func (s *LaunchStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	result := make([]*domain.LaunchRecord, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.data[id]; ok {
			recCopy := v.rec
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.LaunchStore = (*LaunchStore)(nil)
