package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// LaunchStore implements storage.LaunchStore using PostgreSQL. The record is
// stored as a jsonb document next to a version column used for optimistic
// compare-and-set updates.
type LaunchStore struct {
	pool *Pool
}

// NewLaunchStore creates a new LaunchStore.
func NewLaunchStore(pool *Pool) *LaunchStore {
	return &LaunchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LaunchStore = (*LaunchStore)(nil)

// Put inserts a new record. Returns ErrDuplicateKey if the id exists.
func (s *LaunchStore) Put(ctx context.Context, rec *domain.LaunchRecord) error {
	if rec == nil || rec.ID == "" || rec.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal launch record: %w", err)
	}

	query := `
		INSERT INTO launches (id, owner_id, version, record, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query, rec.ID, rec.OwnerID, doc, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert launch record: %w", err)
	}
	return nil
}

// Get retrieves a record and its version. Returns ErrNotFound if absent.
func (s *LaunchStore) Get(ctx context.Context, id string) (*domain.LaunchRecord, int64, error) {
	query := `SELECT record, version FROM launches WHERE id = $1`

	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, query, id).Scan(&doc, &version)
	if err != nil {
		if isNotFoundError(err) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, fmt.Errorf("get launch record: %w", err)
	}

	var rec domain.LaunchRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, 0, fmt.Errorf("unmarshal launch record: %w", err)
	}
	return &rec, version, nil
}

// Update replaces the record if the stored version still matches. The WHERE
// clause on version makes the compare-and-set atomic; zero rows affected
// means either a conflict or a missing record.
func (s *LaunchStore) Update(ctx context.Context, id string, version int64, rec *domain.LaunchRecord) error {
	if rec == nil || id == "" {
		return storage.ErrInvalidInput
	}

	next := *rec
	next.ID = id
	next.UpdatedAt = time.Now().UnixMilli()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal launch record: %w", err)
	}

	query := `
		UPDATE launches
		SET record = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`

	tag, err := s.pool.Exec(ctx, query, doc, next.UpdatedAt, id, version)
	if err != nil {
		return fmt.Errorf("update launch record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a conflict from a missing record.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM launches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check launch record exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}
	return nil
}

// ListByOwner returns all records owned by ownerID, newest first.
func (s *LaunchStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.LaunchRecord, error) {
	query := `
		SELECT record FROM launches
		WHERE owner_id = $1
		ORDER BY created_at DESC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list launch records by owner: %w", err)
	}
	defer rows.Close()

	var result []*domain.LaunchRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan launch record row: %w", err)
		}
		var rec domain.LaunchRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal launch record: %w", err)
		}
		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launch record rows: %w", err)
	}

	return result, nil
}
