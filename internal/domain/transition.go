package domain

// TransitionEvent records one persisted overall-status change, appended to an
// analytics log. Writes are best-effort; the launch record itself is the
// source of truth.
type TransitionEvent struct {
	LaunchID   string `json:"launch_id"`
	OwnerID    string `json:"owner_id"`
	FromStatus Status `json:"from_status"`
	ToStatus   Status `json:"to_status"`
	Stage      string `json:"stage"` // operation that drove the change
	Note       string `json:"note,omitempty"`
	OccurredAt int64  `json:"occurred_at"` // Unix ms
}
