package clickhouse

import (
	"context"
	"fmt"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/storage"
)

// TransitionLogStore implements storage.TransitionLogStore using ClickHouse.
// The log is append-only; rows are never updated or deleted.
type TransitionLogStore struct {
	conn *Conn
}

// NewTransitionLogStore creates a new TransitionLogStore.
func NewTransitionLogStore(conn *Conn) *TransitionLogStore {
	return &TransitionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransitionLogStore = (*TransitionLogStore)(nil)

// Append adds a transition event to the log.
func (s *TransitionLogStore) Append(ctx context.Context, ev *domain.TransitionEvent) error {
	if ev == nil || ev.LaunchID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO launch_transitions (
			launch_id, owner_id, from_status, to_status, stage, note, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		ev.LaunchID, ev.OwnerID, string(ev.FromStatus), string(ev.ToStatus),
		ev.Stage, ev.Note, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition event: %w", err)
	}
	return nil
}

// GetByLaunchID returns events for a launch in occurrence order.
func (s *TransitionLogStore) GetByLaunchID(ctx context.Context, launchID string) ([]*domain.TransitionEvent, error) {
	query := `
		SELECT launch_id, owner_id, from_status, to_status, stage, note, occurred_at
		FROM launch_transitions
		WHERE launch_id = ?
		ORDER BY occurred_at ASC
	`

	rows, err := s.conn.Query(ctx, query, launchID)
	if err != nil {
		return nil, fmt.Errorf("query transition events: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransitionEvent
	for rows.Next() {
		var ev domain.TransitionEvent
		var from, to string
		err := rows.Scan(&ev.LaunchID, &ev.OwnerID, &from, &to, &ev.Stage, &ev.Note, &ev.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan transition event row: %w", err)
		}
		ev.FromStatus = domain.Status(from)
		ev.ToStatus = domain.Status(to)
		result = append(result, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition event rows: %w", err)
	}

	return result, nil
}
