package launch

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation and authorization failures. Ownership
// mismatches surface as ErrNotFound so record existence never leaks.
var (
	ErrNotFound             = errors.New("launch not found")
	ErrAmountBelowMinimum   = errors.New("amount below minimum launch funding")
	ErrInsufficientBalance  = errors.New("platform wallet has insufficient funds")
	ErrNoLaunchWallet       = errors.New("launch wallet not set")
	ErrInvalidPercent       = errors.New("percent must be in (0, 100]")
	ErrIncompleteMetadata   = errors.New("metadata requires name, ticker, description, and image")
	ErrMintAlreadySet       = errors.New("token already created for this launch")
	ErrMintUnresolved       = errors.New("no mint address on record or override")
	ErrNotWithdrawn         = errors.New("launch wallet not funded yet")
	ErrNoTokensToSell       = errors.New("no tokens to sell")
	ErrNothingToReturn      = errors.New("no returnable balance above the fee reserve")
	ErrConcurrentTransition = errors.New("another transition is in flight for this launch")
)

// Operation stages used in StageError tags.
const (
	StageDeposit  = "deposit"
	StageWithdraw = "withdraw"
	StageCreate   = "create"
	StageSell     = "sell"
	StageClaim    = "claim"
	StageReturn   = "return"
)

// StageError tags an upstream failure with the phase that produced it, so
// multi-phase operations communicate partial progress instead of an opaque
// failure.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
