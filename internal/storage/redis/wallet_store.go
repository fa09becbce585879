package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// WalletStore is a Redis-backed implementation of storage.WalletStore.
type WalletStore struct {
	client *redis.Client
}

// NewWalletStore creates a wallet store on an existing client.
func NewWalletStore(client *redis.Client) *WalletStore {
	return &WalletStore{client: client}
}

func walletKey(ownerID string) string {
	return "owner:" + ownerID + ":wallet"
}

// Put inserts a wallet. Returns ErrDuplicateKey if one exists for the owner.
func (s *WalletStore) Put(ctx context.Context, w *domain.UserWallet) error {
	if w == nil || w.OwnerID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}

	ok, err := s.client.SetNX(ctx, walletKey(w.OwnerID), doc, 0).Result()
	if err != nil {
		return fmt.Errorf("put wallet: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get retrieves the wallet for ownerID. Returns ErrNotFound if absent.
func (s *WalletStore) Get(ctx context.Context, ownerID string) (*domain.UserWallet, error) {
	raw, err := s.client.Get(ctx, walletKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	var w domain.UserWallet
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshal wallet: %w", err)
	}
	return &w, nil
}

// Verify interface compliance at compile time.
var _ storage.WalletStore = (*WalletStore)(nil)
