// Package mixer adapts the privacy-mixing collaborator: shielded deposits,
// withdrawals to a recipient address, and private balance queries, keyed by
// the depositing wallet's secret.
package mixer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout = 120 * time.Second
)

// Step-down deposit policy.
const (
	// DepositAttempts caps total deposit tries.
	DepositAttempts = 3
	// StepDownFactor shrinks the candidate amount between tries.
	StepDownFactor = 0.9
	// DepositFloorLamports aborts the policy once candidates get this small.
	DepositFloorLamports = 1_000_000
)

// DepositError is the typed failure of the step-down policy. It carries the
// last amount attempted and the wallet balance observed at that point so the
// caller can reconcile.
type DepositError struct {
	LastAttempted uint64
	Balance       uint64
	Cause         error
}

func (e *DepositError) Error() string {
	return fmt.Sprintf("deposit failed: last attempted %d lamports, balance %d: %v",
		e.LastAttempted, e.Balance, e.Cause)
}

func (e *DepositError) Unwrap() error {
	return e.Cause
}

// DepositResult is a successful deposit.
type DepositResult struct {
	DepositReference string
	DepositAddress   string
	TxSignature      string
	// DepositedLamports is the amount actually accepted, which after
	// step-down may be less than the amount originally requested.
	DepositedLamports uint64
	Status            domain.MixingStatus
	RawStatus         string
}

// WithdrawResult is a successful withdrawal from the pool.
type WithdrawResult struct {
	TxSignature string
}

// Client is the HTTP client for the mixing collaborator.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
	metrics *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithMetrics records lamports moved through the pool and deposit step-downs.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a mixing collaborator client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  log.New(os.Stdout, "[mixer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type depositRequest struct {
	OwnerSecret string `json:"ownerSecret"`
	Lamports    uint64 `json:"lamports"`
}

type depositResponse struct {
	DepositReference string `json:"depositReference"`
	DepositAddress   string `json:"depositAddress"`
	TxSignature      string `json:"txSignature"`
	Status           string `json:"status"`
}

type withdrawRequest struct {
	OwnerSecret      string `json:"ownerSecret"`
	Lamports         uint64 `json:"lamports"`
	RecipientAddress string `json:"recipientAddress"`
}

type withdrawResponse struct {
	TxSignature string `json:"txSignature"`
}

type balanceRequest struct {
	OwnerSecret string `json:"ownerSecret"`
}

type balanceResponse struct {
	Lamports uint64 `json:"lamports"`
	Status   string `json:"status"`
}

// Deposit shields lamports from the owner's wallet into the pool.
func (c *Client) Deposit(ctx context.Context, ownerSecret string, lamports uint64) (*DepositResult, error) {
	var resp depositResponse
	err := c.post(ctx, "/deposit", depositRequest{OwnerSecret: ownerSecret, Lamports: lamports}, &resp)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordDepositedLamports(lamports)
	return &DepositResult{
		DepositReference:  resp.DepositReference,
		DepositAddress:    resp.DepositAddress,
		TxSignature:       resp.TxSignature,
		DepositedLamports: lamports,
		Status:            domain.ClassifyMixingStatus(resp.Status),
		RawStatus:         resp.Status,
	}, nil
}

// Withdraw moves lamports from the owner's shielded balance to a recipient.
func (c *Client) Withdraw(ctx context.Context, ownerSecret string, lamports uint64, recipient string) (*WithdrawResult, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("withdraw amount must be positive")
	}
	var resp withdrawResponse
	err := c.post(ctx, "/withdraw", withdrawRequest{
		OwnerSecret:      ownerSecret,
		Lamports:         lamports,
		RecipientAddress: recipient,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordWithdrawnLamports(lamports)
	return &WithdrawResult{TxSignature: resp.TxSignature}, nil
}

// PrivateBalance reports the owner's shielded balance and a raw pool status.
func (c *Client) PrivateBalance(ctx context.Context, ownerSecret string) (uint64, domain.MixingStatus, error) {
	var resp balanceResponse
	err := c.post(ctx, "/balance", balanceRequest{OwnerSecret: ownerSecret}, &resp)
	if err != nil {
		return 0, domain.MixingUnknown, err
	}
	return resp.Lamports, domain.ClassifyMixingStatus(resp.Status), nil
}

// DepositWithStepDown deposits amount, shrinking the candidate by 10% after
// each rejection, up to 3 attempts, aborting once the candidate falls below
// the floor. The pool rejects deposits that leave no headroom for its own
// fees, so callers must use the returned actual amount, never the requested
// one.
func (c *Client) DepositWithStepDown(ctx context.Context, ownerSecret string, amount uint64) (*DepositResult, error) {
	candidate := amount
	var lastAttempted uint64
	var lastErr error

	for attempt := 1; attempt <= DepositAttempts; attempt++ {
		if candidate < DepositFloorLamports {
			break
		}
		lastAttempted = candidate

		result, err := c.Deposit(ctx, ownerSecret, candidate)
		if err == nil {
			if candidate != amount {
				c.logger.Printf("deposit accepted at %d lamports after step-down from %d", candidate, amount)
			}
			return result, nil
		}
		lastErr = err
		c.logger.Printf("deposit attempt %d/%d of %d lamports rejected: %v", attempt, DepositAttempts, candidate, err)

		c.metrics.RecordDepositStepDown()
		candidate = uint64(float64(candidate) * StepDownFactor)
	}

	balance, _, balErr := c.PrivateBalance(ctx, ownerSecret)
	if balErr != nil {
		balance = 0
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("candidate below %d lamport floor", uint64(DepositFloorLamports))
	}
	return nil, &DepositError{LastAttempted: lastAttempted, Balance: balance, Cause: lastErr}
}

// post issues a JSON POST and decodes the response.
func (c *Client) post(ctx context.Context, path string, reqBody, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mixer %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
