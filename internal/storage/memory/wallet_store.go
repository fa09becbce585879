package memory

import (
	"context"
	"sync"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.UserWallet // keyed by owner id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.UserWallet),
	}
}

// Put inserts a wallet. Returns ErrDuplicateKey if one exists for the owner.
func (s *WalletStore) Put(_ context.Context, w *domain.UserWallet) error {
	if w == nil || w.OwnerID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.OwnerID]; exists {
		return storage.ErrDuplicateKey
	}

	wCopy := *w
	s.data[w.OwnerID] = &wCopy
	return nil
}

// Get retrieves the wallet for ownerID. Returns ErrNotFound if absent.
func (s *WalletStore) Get(_ context.Context, ownerID string) (*domain.UserWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[ownerID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	wCopy := *w
	return &wCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.WalletStore = (*WalletStore)(nil)
