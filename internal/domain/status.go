package domain

import "strings"

// Status is the overall launch status. It advances through the canonical
// forward order and never regresses except into an error variant.
type Status string

const (
	StatusDepositPending Status = "deposit_pending"
	StatusMixed          Status = "mixed"
	StatusWithdrawing    Status = "withdrawing"
	StatusWithdrawn      Status = "withdrawn"
	StatusLaunched       Status = "launched"
	StatusSold           Status = "sold"
	StatusReturned       Status = "claimed_and_returned"

	StatusDepositError  Status = "deposit_error"
	StatusWithdrawError Status = "withdraw_error"
	StatusLaunchError   Status = "launch_error"
)

// statusRank maps each forward status to its position in the canonical order.
// Error statuses have no rank; they are terminal for the phase they interrupt.
var statusRank = map[Status]int{
	StatusDepositPending: 0,
	StatusMixed:          1,
	StatusWithdrawing:    2,
	StatusWithdrawn:      3,
	StatusLaunched:       4,
	StatusSold:           5,
	StatusReturned:       5, // sold and claimed_and_returned are both terminal
}

// Rank returns the status's position in the canonical forward order. Error
// statuses have no rank.
func (s Status) Rank() (int, bool) {
	rank, ok := statusRank[s]
	return rank, ok
}

// AtLeast reports whether s has reached the rank of target. Error statuses
// never satisfy it.
func (s Status) AtLeast(target Status) bool {
	rank, ok := s.Rank()
	targetRank, okTarget := target.Rank()
	return ok && okTarget && rank >= targetRank
}

// IsError reports whether s is an error variant.
func (s Status) IsError() bool {
	return strings.HasSuffix(string(s), "_error")
}

// CanAdvance reports whether a record at status from may move to status to.
// Moving into an error variant is always allowed from an in-flight state;
// forward moves must not decrease rank. Setting the same status is a no-op
// sync and allowed.
func CanAdvance(from, to Status) bool {
	if from == to {
		return true
	}
	if to.IsError() {
		return !from.IsError()
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okTo {
		return false
	}
	if !okFrom {
		// Recovering out of an error state re-enters the canonical order.
		return from.IsError()
	}
	return toRank >= fromRank
}

// MixingStatus is the closed classification of the mixing collaborator's
// free-form status strings.
type MixingStatus string

const (
	MixingPending   MixingStatus = "deposit_pending"
	MixingReady     MixingStatus = "ready"
	MixingWithdrawn MixingStatus = "withdrawn"
	MixingFailed    MixingStatus = "failed"
	MixingUnknown   MixingStatus = "unknown"
)

// ClassifyMixingStatus maps a collaborator-reported status string onto the
// closed enumeration. The collaborator reports readiness under several names.
func ClassifyMixingStatus(raw string) MixingStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mixed", "ready", "complete", "ok":
		return MixingReady
	case "deposit_pending", "pending":
		return MixingPending
	case "withdrawn":
		return MixingWithdrawn
	case "failed", "error", "deposit_error", "withdraw_error":
		return MixingFailed
	default:
		return MixingUnknown
	}
}
