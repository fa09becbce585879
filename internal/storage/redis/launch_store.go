// Package redis implements the storage interfaces on Redis: one JSON document
// per launch id, a set-membership index from owner to launch ids, and
// WATCH/MULTI optimistic updates keyed on a version field.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// LaunchStore is a Redis-backed implementation of storage.LaunchStore.
type LaunchStore struct {
	client *redis.Client
}

// NewLaunchStore creates a launch store on an existing client.
func NewLaunchStore(client *redis.Client) *LaunchStore {
	return &LaunchStore{client: client}
}

func launchKey(id string) string {
	return "launch:" + id
}

func ownerLaunchesKey(ownerID string) string {
	return "owner:" + ownerID + ":launches"
}

// storedLaunch wraps the record with the optimistic-concurrency version.
type storedLaunch struct {
	Version int64               `json:"version"`
	Record  domain.LaunchRecord `json:"record"`
}

// Put inserts a new record and indexes it under its owner.
func (s *LaunchStore) Put(ctx context.Context, rec *domain.LaunchRecord) error {
	if rec == nil || rec.ID == "" || rec.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(storedLaunch{Version: 1, Record: *rec})
	if err != nil {
		return fmt.Errorf("marshal launch record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, launchKey(rec.ID), doc, 0).Result()
	if err != nil {
		return fmt.Errorf("put launch record: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}

	if err := s.client.SAdd(ctx, ownerLaunchesKey(rec.OwnerID), rec.ID).Err(); err != nil {
		return fmt.Errorf("index launch owner: %w", err)
	}
	return nil
}

// Get retrieves a record and its version.
func (s *LaunchStore) Get(ctx context.Context, id string) (*domain.LaunchRecord, int64, error) {
	raw, err := s.client.Get(ctx, launchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, storage.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get launch record: %w", err)
	}

	var doc storedLaunch
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("unmarshal launch record: %w", err)
	}
	return &doc.Record, doc.Version, nil
}

// Update replaces the record inside a WATCH transaction. The write aborts
// with ErrVersionConflict if the key changes between read and EXEC, or if the
// stored version no longer matches the one the caller read.
func (s *LaunchStore) Update(ctx context.Context, id string, version int64, rec *domain.LaunchRecord) error {
	if rec == nil || id == "" {
		return storage.ErrInvalidInput
	}

	key := launchKey(id)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read launch record: %w", err)
		}

		var current storedLaunch
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("unmarshal launch record: %w", err)
		}
		if current.Version != version {
			return storage.ErrVersionConflict
		}

		next := *rec
		next.ID = id
		next.UpdatedAt = time.Now().UnixMilli()

		doc, err := json.Marshal(storedLaunch{Version: version + 1, Record: next})
		if err != nil {
			return fmt.Errorf("marshal launch record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return storage.ErrVersionConflict
	}
	return err
}

// ListByOwner returns all records owned by ownerID, newest first.
func (s *LaunchStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.LaunchRecord, error) {
	ids, err := s.client.SMembers(ctx, ownerLaunchesKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list launches by owner: %w", err)
	}

	result := make([]*domain.LaunchRecord, 0, len(ids))
	for _, id := range ids {
		rec, _, err := s.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	// SMEMBERS order is unspecified; sort newest first.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.LaunchStore = (*LaunchStore)(nil)
