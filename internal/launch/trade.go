package launch

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/wallet"
)

// TradeResult is the outcome of CreateOnVenue.
type TradeResult struct {
	TxSignature string          `json:"tx_signature"`
	MintAddress string          `json:"mint_address"`
	BuySOL      decimal.Decimal `json:"buy_sol"`
}

// SellResult is the outcome of Sell.
type SellResult struct {
	TxSignature string          `json:"tx_signature"`
	SoldTokens  decimal.Decimal `json:"sold_tokens"`
	Mint        string          `json:"mint"`
}

// ClaimAndReturnResult reports both phases. ClaimTxSignature is populated as
// soon as Phase 1 settles, so a Phase 2 failure still reports it.
type ClaimAndReturnResult struct {
	ClaimTxSignature  string `json:"claim_tx_signature"`
	ReturnedLamports  uint64 `json:"returned_lamports,omitempty"`
	ReturnTxSignature string `json:"return_tx_signature,omitempty"`
}

// CreateOnVenue creates the token from the funded launch wallet. The initial
// buy is whatever the wallet holds beyond the creation cost, the retained
// reserve, and a safety buffer; a zero remainder still creates the token
// without buying.
func (s *Service) CreateOnVenue(ctx context.Context, ownerID, launchID string) (*TradeResult, error) {
	unlock := s.locks.Lock(launchID)
	defer unlock()

	rec, version, err := s.loadOwned(ctx, ownerID, launchID)
	if err != nil {
		return nil, err
	}
	// launch_error re-enters here: a failed create left the wallet funded.
	if !rec.OverallStatus.AtLeast(domain.StatusWithdrawn) && rec.OverallStatus != domain.StatusLaunchError {
		return nil, fmt.Errorf("%w: status %s", ErrNotWithdrawn, rec.OverallStatus)
	}
	if rec.Trade.MintAddress != "" {
		return nil, fmt.Errorf("%w: mint %s", ErrMintAlreadySet, rec.Trade.MintAddress)
	}
	if !rec.Metadata.CompleteForCreate() {
		return nil, ErrIncompleteMetadata
	}

	launchKp, err := s.launchKeypair(rec)
	if err != nil {
		return nil, err
	}

	// Metadata upload is idempotent: a stored URI is reused, never re-pinned.
	if rec.Metadata.MetadataURI == "" {
		uri, err := s.venue.UploadMetadata(ctx, rec.Metadata)
		if err != nil {
			return nil, stageErr(StageCreate, err)
		}
		rec.Metadata.MetadataURI = uri
		if err := s.persist(ctx, rec, version); err != nil {
			return nil, err
		}
		version++
		s.logger.Printf("launch %s metadata pinned at %s", rec.ID, uri)
	}

	balance, err := s.chain.GetBalance(ctx, rec.LaunchAddress)
	if err != nil {
		return nil, stageErr(StageCreate, fmt.Errorf("launch wallet balance: %w", err))
	}
	buySOL := initialBuySOL(balance)

	mintKp, err := wallet.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate mint keypair: %w", err)
	}

	rawTx, err := s.venue.BuildCreateTx(ctx, rec.LaunchAddress, mintKp.Address(), rec.Metadata.MetadataURI, buySOL)
	if err != nil {
		return nil, stageErr(StageCreate, err)
	}

	sig, err := s.executor.Execute(ctx, rawTx, []*wallet.Keypair{launchKp, mintKp})
	if err != nil {
		s.metrics.RecordTxSubmission("error")
		rec.Trade.Status = string(domain.StatusLaunchError)
		if perr := s.advance(ctx, rec, version, domain.StatusLaunchError, StageCreate, err.Error()); perr != nil {
			s.logger.Printf("persist launch error for %s: %v", rec.ID, perr)
		}
		return nil, stageErr(StageCreate, err)
	}
	s.metrics.RecordTxSubmission("ok")

	rec.Trade.TxSignature = sig
	rec.Trade.MintAddress = mintKp.Address()
	rec.Trade.Status = string(domain.StatusLaunched)
	if err := s.advance(ctx, rec, version, domain.StatusLaunched, StageCreate, "token created"); err != nil {
		return nil, err
	}
	s.logger.Printf("launch %s created mint %s with %s SOL initial buy, tx %s", rec.ID, mintKp.Address(), buySOL, sig)

	return &TradeResult{TxSignature: sig, MintAddress: mintKp.Address(), BuySOL: buySOL}, nil
}

// Sell sells a percentage of the launch wallet's holdings of the launch mint
// (or an explicit override mint).
func (s *Service) Sell(ctx context.Context, ownerID, launchID string, percent float64, mintOverride string) (*SellResult, error) {
	if percent <= 0 || percent > 100 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPercent, percent)
	}

	unlock := s.locks.Lock(launchID)
	defer unlock()

	rec, version, err := s.loadOwned(ctx, ownerID, launchID)
	if err != nil {
		return nil, err
	}

	mint := rec.Trade.MintAddress
	if mintOverride != "" {
		mint = mintOverride
	}
	if mint == "" {
		return nil, ErrMintUnresolved
	}

	launchKp, err := s.launchKeypair(rec)
	if err != nil {
		return nil, err
	}

	tokenBalance, err := s.chain.GetTokenBalance(ctx, rec.LaunchAddress, mint)
	if err != nil {
		return nil, stageErr(StageSell, fmt.Errorf("token balance: %w", err))
	}

	sellAmount := sellAmountTokens(tokenBalance.UIAmount(), percent, tokenBalance.Decimals)
	if !sellAmount.IsPositive() {
		return nil, fmt.Errorf("%w: balance %s", ErrNoTokensToSell, tokenBalance.UIAmount())
	}

	rawTx, err := s.venue.BuildSellTx(ctx, rec.LaunchAddress, mint, sellAmount)
	if err != nil {
		return nil, stageErr(StageSell, err)
	}

	sig, err := s.executor.Execute(ctx, rawTx, []*wallet.Keypair{launchKp})
	if err != nil {
		s.metrics.RecordTxSubmission("error")
		return nil, stageErr(StageSell, err)
	}
	s.metrics.RecordTxSubmission("ok")

	rec.Trade.Status = string(domain.StatusSold)
	if err := s.advance(ctx, rec, version, domain.StatusSold, StageSell, "sold "+sellAmount.String()); err != nil {
		return nil, err
	}
	s.logger.Printf("launch %s sold %s of mint %s, tx %s", rec.ID, sellAmount, mint, sig)

	return &SellResult{TxSignature: sig, SoldTokens: sellAmount, Mint: mint}, nil
}

// ClaimAndReturn is two-phase: Phase 1 collects accrued creator rewards into
// the launch wallet; Phase 2 shields the wallet's balance back into the
// mixing pool and withdraws it to the custodial wallet. A Phase 1 success
// followed by a Phase 2 failure leaves funds in the launch wallet, which is
// recoverable, and the claim signature is still reported.
func (s *Service) ClaimAndReturn(ctx context.Context, ownerID, launchID string) (*ClaimAndReturnResult, error) {
	unlock := s.locks.Lock(launchID)
	defer unlock()

	rec, version, err := s.loadOwned(ctx, ownerID, launchID)
	if err != nil {
		return nil, err
	}

	launchKp, err := s.launchKeypair(rec)
	if err != nil {
		return nil, err
	}

	// Phase 1: claim.
	rawTx, err := s.venue.BuildCollectCreatorFeeTx(ctx, rec.LaunchAddress)
	if err != nil {
		return nil, stageErr(StageClaim, err)
	}
	claimSig, err := s.executor.Execute(ctx, rawTx, []*wallet.Keypair{launchKp})
	if err != nil {
		s.metrics.RecordTxSubmission("error")
		return nil, stageErr(StageClaim, err)
	}
	s.metrics.RecordTxSubmission("ok")
	s.logger.Printf("launch %s claimed creator rewards, tx %s", rec.ID, claimSig)

	result := &ClaimAndReturnResult{ClaimTxSignature: claimSig}

	// Phase 2: return. The claim already changed external state, so every
	// failure from here reports the claim signature alongside the error.
	balance, err := s.chain.GetBalance(ctx, rec.LaunchAddress)
	if err != nil {
		return result, stageErr(StageReturn, fmt.Errorf("launch wallet balance: %w", err))
	}
	if balance <= ReturnReserveLamports {
		return result, stageErr(StageReturn, fmt.Errorf("%w: balance %d", ErrNothingToReturn, balance))
	}
	depositable := balance - ReturnReserveLamports

	launchSecret, err := s.launchSecret(rec)
	if err != nil {
		return result, stageErr(StageReturn, err)
	}

	dep, err := s.mixer.DepositWithStepDown(ctx, launchSecret, depositable)
	if err != nil {
		s.metrics.RecordMixerCall("deposit", "error")
		return result, stageErr(StageReturn, err)
	}
	s.metrics.RecordMixerCall("deposit", "ok")

	// The pool may have accepted less than requested; return what it took.
	withdrawal, err := s.mixer.Withdraw(ctx, launchSecret, dep.DepositedLamports, rec.PlatformAddress)
	if err != nil {
		s.metrics.RecordMixerCall("withdraw", "error")
		return result, stageErr(StageReturn, err)
	}
	s.metrics.RecordMixerCall("withdraw", "ok")

	result.ReturnedLamports = dep.DepositedLamports
	result.ReturnTxSignature = withdrawal.TxSignature

	rec.Trade.Status = string(domain.StatusReturned)
	if err := s.advance(ctx, rec, version, domain.StatusReturned, StageReturn, "rewards returned"); err != nil {
		return result, err
	}
	s.logger.Printf("launch %s returned %d lamports to %s", rec.ID, dep.DepositedLamports, rec.PlatformAddress)

	return result, nil
}

// Complete records an externally observed token creation: callers that
// watched the create transaction settle supply its signature and mint.
func (s *Service) Complete(ctx context.Context, ownerID, launchID, txSignature, mintAddress string) error {
	if txSignature == "" && mintAddress == "" {
		return fmt.Errorf("tx signature or mint address required")
	}

	unlock := s.locks.Lock(launchID)
	defer unlock()

	rec, version, err := s.loadOwned(ctx, ownerID, launchID)
	if err != nil {
		return err
	}
	if rec.Trade.MintAddress != "" && mintAddress != "" && rec.Trade.MintAddress != mintAddress {
		return fmt.Errorf("%w: mint %s", ErrMintAlreadySet, rec.Trade.MintAddress)
	}

	if txSignature != "" {
		rec.Trade.TxSignature = txSignature
	}
	if mintAddress != "" {
		rec.Trade.MintAddress = mintAddress
	}
	rec.Trade.Status = string(domain.StatusLaunched)
	return s.advance(ctx, rec, version, domain.StatusLaunched, StageCreate, "marked launched")
}

// initialBuySOL converts the launch wallet balance into the initial buy,
// deducting creation cost, retained reserve, and safety buffer. Clamped at
// zero: creation proceeds without a buy when nothing remains.
func initialBuySOL(balanceLamports uint64) decimal.Decimal {
	deductions := uint64(CreateCostLamports + RetainedReserveLamports + SafetyBufferLamports)
	if balanceLamports <= deductions {
		return decimal.Zero
	}
	return decimal.New(int64(balanceLamports-deductions), 0).
		Div(decimal.New(LamportsPerSOL, 0))
}

// sellAmountTokens truncates balance * percent / 100 to min(6, decimals)
// places. Truncation, never rounding: the venue must not be asked for more
// than the wallet holds.
func sellAmountTokens(balance decimal.Decimal, percent float64, decimals int) decimal.Decimal {
	precision := decimals
	if precision > MaxSellPrecision {
		precision = MaxSellPrecision
	}
	return balance.
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.New(100, 0)).
		Truncate(int32(precision))
}
