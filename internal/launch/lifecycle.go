package launch

import (
	"context"
	"fmt"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/vault"
	"stealth-launch/internal/wallet"
)

// CreateResult is the outcome of Create.
type CreateResult struct {
	ID             string        `json:"id"`
	DepositAddress string        `json:"deposit_address,omitempty"`
	LaunchAddress  string        `json:"launch_address"`
	Status         domain.Status `json:"status"`
}

// WithdrawResult is the outcome of Withdraw. Performed is false on the
// no-op status-sync path, which is a success, not an error.
type WithdrawResult struct {
	Status       domain.Status       `json:"status"`
	MixingStatus domain.MixingStatus `json:"mixing_status,omitempty"`
	TxSignature  string              `json:"tx_signature,omitempty"`
	Performed    bool                `json:"performed"`
}

// Create funds a new launch: it provisions the custodial wallet if needed,
// deposits the requested amount into the mixing pool, generates the
// single-use launch keypair, persists the record, and opportunistically
// attempts the first withdraw. A non-ready pool at that point is normal.
func (s *Service) Create(ctx context.Context, ownerID string, amount uint64, meta domain.TokenMetadata) (*CreateResult, error) {
	if amount < MinLaunchLamports {
		return nil, fmt.Errorf("%w: %d < %d", ErrAmountBelowMinimum, amount, uint64(MinLaunchLamports))
	}

	platform, err := s.getOrCreatePlatformWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// Balance check is best-effort: an unreachable node must not block the
	// launch, but a definite shortfall does.
	if balance, err := s.chain.GetBalance(ctx, platform.Address); err != nil {
		s.logger.Printf("platform balance check failed for owner %s, continuing: %v", ownerID, err)
	} else if balance < amount {
		return nil, fmt.Errorf("%w: balance %d, required %d", ErrInsufficientBalance, balance, amount)
	}

	secret, err := vault.Decrypt(platform.SecretEnc, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt platform wallet secret: %w", err)
	}

	dep, err := s.mixer.Deposit(ctx, secret, amount)
	if err != nil {
		s.metrics.RecordMixerCall("deposit", "error")
		return nil, stageErr(StageDeposit, err)
	}
	s.metrics.RecordMixerCall("deposit", "ok")

	launchKp, err := wallet.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate launch keypair: %w", err)
	}
	launchSecretEnc, err := vault.Encrypt(launchKp.SecretBase58(), s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt launch wallet secret: %w", err)
	}

	now := s.now()
	rec := &domain.LaunchRecord{
		ID:                s.newID(),
		OwnerID:           ownerID,
		RequestedLamports: amount,
		PlatformAddress:   platform.Address,
		LaunchAddress:     launchKp.Address(),
		LaunchSecretEnc:   launchSecretEnc,
		Mixing: domain.MixingInfo{
			DepositReference: dep.DepositReference,
			DepositAddress:   dep.DepositAddress,
			Status:           dep.Status,
			RawStatus:        dep.RawStatus,
		},
		Metadata:      meta,
		OverallStatus: domain.StatusDepositPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.launches.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store launch %s: %w", rec.ID, err)
	}
	s.logger.Printf("launch %s created for owner %s, %d lamports deposited", rec.ID, ownerID, amount)

	// First withdraw attempt, synchronously. Failure here only means the pool
	// has not mixed the deposit yet; the caller re-polls via Withdraw.
	unlock := s.locks.Lock(rec.ID)
	result, err := s.reconcileAndWithdraw(ctx, rec, 1)
	unlock()
	if err != nil {
		s.logger.Printf("initial withdraw attempt for %s: %v", rec.ID, err)
	} else if result.Performed {
		s.logger.Printf("launch %s withdrawn immediately after create", rec.ID)
	}

	return &CreateResult{
		ID:             rec.ID,
		DepositAddress: rec.Mixing.DepositAddress,
		LaunchAddress:  rec.LaunchAddress,
		Status:         rec.OverallStatus,
	}, nil
}

// Withdraw moves the requested amount from the mixing pool into the launch
// wallet once the pool reports readiness. Idempotent: an already-withdrawn
// record is a no-op, and a not-ready pool only syncs the cached status.
func (s *Service) Withdraw(ctx context.Context, ownerID, launchID string) (*WithdrawResult, error) {
	unlock := s.locks.Lock(launchID)
	defer unlock()

	rec, version, err := s.loadOwned(ctx, ownerID, launchID)
	if err != nil {
		return nil, err
	}
	if rec.LaunchAddress == "" {
		return nil, ErrNoLaunchWallet
	}

	// Already funded or further along: nothing to do.
	if rec.OverallStatus.AtLeast(domain.StatusWithdrawn) {
		return &WithdrawResult{Status: rec.OverallStatus, MixingStatus: rec.Mixing.Status}, nil
	}

	return s.reconcileAndWithdraw(ctx, rec, version)
}

// reconcileAndWithdraw polls the pool and, when ready, performs the withdraw.
// Caller must hold the record lock.
func (s *Service) reconcileAndWithdraw(ctx context.Context, rec *domain.LaunchRecord, version int64) (*WithdrawResult, error) {
	secret, err := s.platformSecret(ctx, rec.OwnerID)
	if err != nil {
		return nil, err
	}

	_, reported, err := s.mixer.PrivateBalance(ctx, secret)
	if err != nil {
		s.metrics.RecordMixerCall("balance", "error")
		return nil, stageErr(StageWithdraw, fmt.Errorf("query mixing status: %w", err))
	}
	s.metrics.RecordMixerCall("balance", "ok")

	ready, changed := reconcileMixingStatus(rec.Mixing.Status, reported)
	if !ready {
		if changed {
			rec.Mixing.Status = reported
			rec.Mixing.RawStatus = string(reported)
			if err := s.persist(ctx, rec, version); err != nil {
				return nil, err
			}
		}
		// No-op sync: the pool is not ready, which is not an error.
		return &WithdrawResult{Status: rec.OverallStatus, MixingStatus: reported}, nil
	}

	return s.attemptWithdraw(ctx, rec, version, secret, reported)
}

// attemptWithdraw performs the pool-to-launch-wallet transfer. The advance to
// mixed before the external call is the concurrency guard: a concurrent
// attempt loses the version race and backs off.
func (s *Service) attemptWithdraw(ctx context.Context, rec *domain.LaunchRecord, version int64, secret string, reported domain.MixingStatus) (*WithdrawResult, error) {
	if err := wallet.ValidateAddress(rec.LaunchAddress); err != nil {
		return nil, fmt.Errorf("launch address check: %w", err)
	}

	rec.Mixing.Status = reported
	if err := s.advance(ctx, rec, version, domain.StatusMixed, StageWithdraw, "pool ready"); err != nil {
		return nil, err
	}
	version++

	if err := s.advance(ctx, rec, version, domain.StatusWithdrawing, StageWithdraw, "withdraw started"); err != nil {
		return nil, err
	}
	version++

	result, err := s.mixer.Withdraw(ctx, secret, rec.RequestedLamports, rec.LaunchAddress)
	if err != nil {
		s.metrics.RecordMixerCall("withdraw", "error")
		rec.Mixing.Status = domain.MixingFailed
		rec.Mixing.RawStatus = string(domain.StatusWithdrawError)
		if perr := s.advance(ctx, rec, version, domain.StatusWithdrawError, StageWithdraw, err.Error()); perr != nil {
			s.logger.Printf("persist withdraw error for %s: %v", rec.ID, perr)
		}
		return nil, stageErr(StageWithdraw, err)
	}
	s.metrics.RecordMixerCall("withdraw", "ok")

	rec.Mixing.Status = domain.MixingWithdrawn
	rec.Mixing.RawStatus = string(domain.MixingWithdrawn)
	if err := s.advance(ctx, rec, version, domain.StatusWithdrawn, StageWithdraw, "funded launch wallet"); err != nil {
		return nil, err
	}
	s.logger.Printf("launch %s funded with %d lamports, tx %s", rec.ID, rec.RequestedLamports, result.TxSignature)

	return &WithdrawResult{
		Status:       domain.StatusWithdrawn,
		MixingStatus: domain.MixingWithdrawn,
		TxSignature:  result.TxSignature,
		Performed:    true,
	}, nil
}

// reconcileMixingStatus is the pure readiness decision: given the cached and
// freshly reported pool statuses, report whether a withdraw may start and
// whether the cache needs updating.
func reconcileMixingStatus(cached, reported domain.MixingStatus) (ready, changed bool) {
	return reported == domain.MixingReady, reported != cached
}

