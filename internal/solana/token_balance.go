package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Token program ids scanned when aggregating balances.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// ErrNoTokenAccounts is returned when an owner holds no accounts for a mint.
var ErrNoTokenAccounts = errors.New("no token accounts for mint")

// TokenBalance is an owner's aggregated position in a single mint.
type TokenBalance struct {
	Mint     string
	Amount   decimal.Decimal // raw base units
	Decimals int
}

// UIAmount returns the balance scaled by the mint's decimals.
func (b TokenBalance) UIAmount() decimal.Decimal {
	return b.Amount.Shift(int32(-b.Decimals))
}

// GetTokenBalance sums an owner's holdings of one mint across the legacy
// Token program and Token-2022. A failure under one program is tolerated as
// long as the other yields accounts; most mints live under exactly one.
func (c *HTTPClient) GetTokenBalance(ctx context.Context, owner, mint string) (*TokenBalance, error) {
	balance := &TokenBalance{Mint: mint, Amount: decimal.Zero}
	found := false
	var lastErr error

	for _, program := range []string{TokenProgramID, Token2022ProgramID} {
		accounts, err := c.GetTokenAccountsByOwner(ctx, owner, TokenAccountFilter{ProgramID: program})
		if err != nil {
			lastErr = err
			continue
		}
		for _, acct := range accounts {
			if acct.Mint != mint {
				continue
			}
			amount, err := decimal.NewFromString(acct.Amount)
			if err != nil {
				return nil, fmt.Errorf("parse token amount %q: %w", acct.Amount, err)
			}
			balance.Amount = balance.Amount.Add(amount)
			balance.Decimals = acct.Decimals
			found = true
		}
	}

	if !found {
		if lastErr != nil {
			return nil, fmt.Errorf("fetch token accounts: %w", lastErr)
		}
		return nil, fmt.Errorf("%w: owner %s mint %s", ErrNoTokenAccounts, owner, mint)
	}
	return balance, nil
}
