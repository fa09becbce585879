package postgres

import (
	"context"
	"fmt"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Put inserts a wallet. Returns ErrDuplicateKey if one exists for the owner.
func (s *WalletStore) Put(ctx context.Context, w *domain.UserWallet) error {
	if w == nil || w.OwnerID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO user_wallets (owner_id, address, secret_enc, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, w.OwnerID, w.Address, w.SecretEnc, w.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Get retrieves the wallet for ownerID. Returns ErrNotFound if absent.
func (s *WalletStore) Get(ctx context.Context, ownerID string) (*domain.UserWallet, error) {
	query := `
		SELECT owner_id, address, secret_enc, created_at
		FROM user_wallets
		WHERE owner_id = $1
	`

	var w domain.UserWallet
	err := s.pool.QueryRow(ctx, query, ownerID).Scan(&w.OwnerID, &w.Address, &w.SecretEnc, &w.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}
