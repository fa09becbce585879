// Package executor signs, simulates, submits, and confirms serialized
// transactions. It performs no retries of its own: resubmitting a signed
// transaction risks double execution, so retry policy belongs to callers.
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"stealth-launch/internal/observability"
	"stealth-launch/internal/solana"
	"stealth-launch/internal/wallet"
)

// Default confirmation settings.
const (
	DefaultConfirmTimeout = 90 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// NoMatchingSignerError is returned when none of the candidate keypairs can
// satisfy the transaction's required-signer list.
type NoMatchingSignerError struct {
	Required   []string
	Candidates []string
}

func (e *NoMatchingSignerError) Error() string {
	return fmt.Sprintf("no matching signer: required [%s], candidates [%s]",
		strings.Join(e.Required, ", "), strings.Join(e.Candidates, ", "))
}

// SimulateFailedError carries the network's simulation verdict verbatim.
// The transaction was never submitted.
type SimulateFailedError struct {
	TxErr interface{}
	Logs  []string
}

func (e *SimulateFailedError) Error() string {
	return fmt.Sprintf("simulate failed: %v", e.TxErr)
}

// SendFailedError wraps a submission or confirmation failure, including any
// diagnostic logs that were obtainable.
type SendFailedError struct {
	Cause error
	Logs  []string
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendFailedError) Unwrap() error {
	return e.Cause
}

// RPC is the network surface the executor needs.
type RPC interface {
	SimulateTransaction(ctx context.Context, txBytes []byte, sigVerify bool) (*solana.SimulateResult, error)
	SendTransaction(ctx context.Context, txBytes []byte) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error)
}

// FinalityWaiter blocks until a signature reaches a commitment level.
// *solana.WSClient satisfies it.
type FinalityWaiter interface {
	WaitForSignature(ctx context.Context, signature, commitment string) (*solana.SignatureNotification, error)
}

// Executor runs the sign/simulate/submit/confirm pipeline.
type Executor struct {
	rpc            RPC
	waiter         FinalityWaiter
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *log.Logger
	metrics        *observability.Metrics
}

// Option configures Executor.
type Option func(*Executor)

// WithFinalityWaiter confirms signatures over WebSocket instead of polling.
func WithFinalityWaiter(w FinalityWaiter) Option {
	return func(e *Executor) {
		e.waiter = w
	}
}

// WithConfirmTimeout bounds the wait for finality.
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.confirmTimeout = d
	}
}

// WithPollInterval sets the status poll cadence when no waiter is wired.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		e.pollInterval = d
	}
}

// WithMetrics records submit-to-finalized latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor.
func New(rpc RPC, opts ...Option) *Executor {
	e := &Executor{
		rpc:            rpc,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         log.New(os.Stdout, "[executor] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute signs rawTx with the candidate keypairs that the transaction
// actually requires, simulates it, submits it, and waits for finalized
// commitment. Returns the transaction signature.
func (e *Executor) Execute(ctx context.Context, rawTx []byte, candidates []*wallet.Keypair) (string, error) {
	tx, err := solana.DeserializeTransaction(rawTx)
	if err != nil {
		return "", fmt.Errorf("parse transaction: %w", err)
	}

	required := tx.RequiredSigners()
	requiredSet := make(map[string]bool, len(required))
	for _, addr := range required {
		requiredSet[addr] = true
	}

	var matched []*wallet.Keypair
	candidateAddrs := make([]string, 0, len(candidates))
	for _, kp := range candidates {
		candidateAddrs = append(candidateAddrs, kp.Address())
		if requiredSet[kp.Address()] {
			matched = append(matched, kp)
		}
	}
	if len(matched) == 0 {
		return "", &NoMatchingSignerError{Required: required, Candidates: candidateAddrs}
	}

	for _, kp := range matched {
		if err := tx.Sign(kp); err != nil {
			return "", fmt.Errorf("sign transaction: %w", err)
		}
	}

	signed := tx.Serialize()

	sim, err := e.rpc.SimulateTransaction(ctx, signed, false)
	if err != nil {
		return "", fmt.Errorf("simulate transaction: %w", err)
	}
	if sim.Err != nil {
		e.logger.Printf("simulation rejected transaction: %v", sim.Err)
		return "", &SimulateFailedError{TxErr: sim.Err, Logs: sim.Logs}
	}

	signature, err := e.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", &SendFailedError{Cause: err, Logs: sim.Logs}
	}
	e.logger.Printf("submitted transaction %s, awaiting finality", signature)

	submitted := time.Now()
	if err := e.waitFinalized(ctx, signature); err != nil {
		return "", err
	}
	e.metrics.ObserveTxConfirm(time.Since(submitted).Seconds())
	return signature, nil
}

// waitFinalized blocks until the signature is finalized, preferring the
// WebSocket waiter and falling back to status polling.
func (e *Executor) waitFinalized(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	if e.waiter != nil {
		notif, err := e.waiter.WaitForSignature(ctx, signature, solana.CommitmentFinalized)
		if err == nil {
			if notif.Err != nil {
				return &SendFailedError{Cause: fmt.Errorf("transaction %s failed on-chain: %v", signature, notif.Err)}
			}
			return nil
		}
		e.logger.Printf("websocket confirmation failed for %s, polling instead: %v", signature, err)
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &SendFailedError{Cause: fmt.Errorf("confirmation timed out for %s: %w", signature, ctx.Err())}
		case <-ticker.C:
		}

		status, err := e.rpc.GetSignatureStatus(ctx, signature)
		if err != nil {
			e.logger.Printf("status poll for %s: %v", signature, err)
			continue
		}
		if status == nil {
			continue
		}
		if status.Err != nil {
			return &SendFailedError{Cause: fmt.Errorf("transaction %s failed on-chain: %v", signature, status.Err)}
		}
		if status.ConfirmationStatus == solana.CommitmentFinalized {
			return nil
		}
	}
}
