// Package storage defines the persistence interfaces for launch records,
// custodial wallets, and the transition audit log. Implementations live in
// the memory, redis, postgres, and clickhouse subpackages.
package storage

import (
	"context"

	"stealth-launch/internal/domain"
)

// LaunchStore persists launch records, one document per launch id, with an
// owner index and optimistic concurrency. Get returns the record together
// with the version to pass back to Update; Update fails with
// ErrVersionConflict if the stored version moved.
type LaunchStore interface {
	// Put inserts a new record. Returns ErrDuplicateKey if the id exists.
	Put(ctx context.Context, rec *domain.LaunchRecord) error

	// Get retrieves a record and its current version.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.LaunchRecord, int64, error)

	// Update replaces the record if the stored version still equals version.
	// UpdatedAt is rewritten by the store.
	Update(ctx context.Context, id string, version int64, rec *domain.LaunchRecord) error

	// ListByOwner returns all records owned by ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.LaunchRecord, error)
}

// WalletStore persists the per-principal custodial platform wallet.
type WalletStore interface {
	// Put inserts a wallet. Returns ErrDuplicateKey if one exists for the owner.
	Put(ctx context.Context, w *domain.UserWallet) error

	// Get retrieves the wallet for ownerID. Returns ErrNotFound if absent.
	Get(ctx context.Context, ownerID string) (*domain.UserWallet, error)
}

// TransitionLogStore is an append-only log of status transitions.
type TransitionLogStore interface {
	Append(ctx context.Context, ev *domain.TransitionEvent) error

	// GetByLaunchID returns events for a launch in occurrence order.
	GetByLaunchID(ctx context.Context, launchID string) ([]*domain.TransitionEvent, error)
}
