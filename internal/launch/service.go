// Package launch is the lifecycle orchestrator: it sequences fund movement
// through the mixing pool, token creation and trading on the venue, and
// reward settlement, reconciling collaborator status into the durable launch
// record. Every transition is driven by an explicit caller operation; there
// is no background worker.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/mixer"
	"stealth-launch/internal/observability"
	"stealth-launch/internal/solana"
	"stealth-launch/internal/storage"
	"stealth-launch/internal/vault"
	"stealth-launch/internal/wallet"
)

// Funding and deduction constants, in lamports.
const (
	// MinLaunchLamports is the smallest fundable launch (0.05 SOL).
	MinLaunchLamports = 50_000_000
	// CreateCostLamports covers token creation and rent.
	CreateCostLamports = 50_000_000
	// RetainedReserveLamports stays in the launch wallet after creation.
	RetainedReserveLamports = 5_000_000
	// SafetyBufferLamports absorbs fee estimation drift.
	SafetyBufferLamports = 1_000_000
	// ReturnReserveLamports stays behind for fees when returning funds.
	ReturnReserveLamports = 6_000_000

	// LamportsPerSOL converts between denominations.
	LamportsPerSOL = 1_000_000_000

	// MaxSellPrecision caps sell amount decimal places.
	MaxSellPrecision = 6
)

// MixingClient is the mixing collaborator surface the orchestrator consumes.
// *mixer.Client satisfies it.
type MixingClient interface {
	Deposit(ctx context.Context, ownerSecret string, lamports uint64) (*mixer.DepositResult, error)
	DepositWithStepDown(ctx context.Context, ownerSecret string, amount uint64) (*mixer.DepositResult, error)
	Withdraw(ctx context.Context, ownerSecret string, lamports uint64, recipient string) (*mixer.WithdrawResult, error)
	PrivateBalance(ctx context.Context, ownerSecret string) (uint64, domain.MixingStatus, error)
}

// VenueClient is the trade venue surface. *venue.Client satisfies it.
type VenueClient interface {
	UploadMetadata(ctx context.Context, meta domain.TokenMetadata) (string, error)
	BuildCreateTx(ctx context.Context, payer, mint, metadataURI string, buySOL decimal.Decimal) ([]byte, error)
	BuildSellTx(ctx context.Context, seller, mint string, amountTokens decimal.Decimal) ([]byte, error)
	BuildCollectCreatorFeeTx(ctx context.Context, creator string) ([]byte, error)
}

// TxExecutor runs the sign/simulate/submit/confirm pipeline.
// *executor.Executor satisfies it.
type TxExecutor interface {
	Execute(ctx context.Context, rawTx []byte, candidates []*wallet.Keypair) (string, error)
}

// ChainReader is the read-only network surface. *solana.HTTPClient
// satisfies it.
type ChainReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (*solana.TokenBalance, error)
}

// Options carries the orchestrator's collaborators. Launches, Wallets,
// Mixer, Venue, Executor, Chain, and Passphrase are required; Transitions
// and Metrics are optional.
type Options struct {
	Launches    storage.LaunchStore
	Wallets     storage.WalletStore
	Transitions storage.TransitionLogStore

	Mixer    MixingClient
	Venue    VenueClient
	Executor TxExecutor
	Chain    ChainReader

	// Passphrase is the server-wide vault passphrase for wallet secrets.
	Passphrase string

	Metrics *observability.Metrics
	Logger  *log.Logger
}

// Service is the launch lifecycle orchestrator.
type Service struct {
	launches    storage.LaunchStore
	wallets     storage.WalletStore
	transitions storage.TransitionLogStore

	mixer    MixingClient
	venue    VenueClient
	executor TxExecutor
	chain    ChainReader

	passphrase string

	metrics *observability.Metrics
	logger  *log.Logger

	locks *keyedMutex
	now   func() int64
	newID func() string
}

// NewService creates the orchestrator.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Launches == nil:
		return nil, fmt.Errorf("launch store is required")
	case opts.Wallets == nil:
		return nil, fmt.Errorf("wallet store is required")
	case opts.Mixer == nil:
		return nil, fmt.Errorf("mixing client is required")
	case opts.Venue == nil:
		return nil, fmt.Errorf("venue client is required")
	case opts.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	case opts.Chain == nil:
		return nil, fmt.Errorf("chain reader is required")
	case opts.Passphrase == "":
		return nil, fmt.Errorf("vault passphrase is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[launch] ", log.LstdFlags|log.Lshortfile)
	}

	return &Service{
		launches:    opts.Launches,
		wallets:     opts.Wallets,
		transitions: opts.Transitions,
		mixer:       opts.Mixer,
		venue:       opts.Venue,
		executor:    opts.Executor,
		chain:       opts.Chain,
		passphrase:  opts.Passphrase,
		metrics:     opts.Metrics,
		logger:      logger,
		locks:       newKeyedMutex(),
		now:         func() int64 { return time.Now().UnixMilli() },
		newID:       uuid.NewString,
	}, nil
}

// loadOwned fetches a record and checks ownership. Both a missing record and
// an ownership mismatch come back as ErrNotFound so existence never leaks.
func (s *Service) loadOwned(ctx context.Context, ownerID, launchID string) (*domain.LaunchRecord, int64, error) {
	rec, version, err := s.launches.Get(ctx, launchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("load launch %s: %w", launchID, err)
	}
	if rec.OwnerID != ownerID {
		return nil, 0, ErrNotFound
	}
	return rec, version, nil
}

// persist writes rec back under the optimistic version check. A version
// conflict means another transition won the race.
func (s *Service) persist(ctx context.Context, rec *domain.LaunchRecord, version int64) error {
	rec.UpdatedAt = s.now()
	err := s.launches.Update(ctx, rec.ID, version, rec)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return fmt.Errorf("%w: %s", ErrConcurrentTransition, rec.ID)
		}
		return fmt.Errorf("persist launch %s: %w", rec.ID, err)
	}
	return nil
}

// advance moves rec to a new overall status, validating the canonical order,
// and records the transition.
func (s *Service) advance(ctx context.Context, rec *domain.LaunchRecord, version int64, to domain.Status, stage, note string) error {
	from := rec.OverallStatus
	if !domain.CanAdvance(from, to) {
		return fmt.Errorf("illegal status transition %s -> %s for launch %s", from, to, rec.ID)
	}
	rec.OverallStatus = to
	if err := s.persist(ctx, rec, version); err != nil {
		rec.OverallStatus = from
		return err
	}

	s.metrics.RecordTransition(string(to))
	s.logTransition(ctx, rec, from, to, stage, note)
	return nil
}

// logTransition appends to the audit log. Best-effort: the log never blocks
// the operation that produced the transition.
func (s *Service) logTransition(ctx context.Context, rec *domain.LaunchRecord, from, to domain.Status, stage, note string) {
	if s.transitions == nil || from == to {
		return
	}
	ev := &domain.TransitionEvent{
		LaunchID:   rec.ID,
		OwnerID:    rec.OwnerID,
		FromStatus: from,
		ToStatus:   to,
		Stage:      stage,
		Note:       note,
		OccurredAt: s.now(),
	}
	if err := s.transitions.Append(ctx, ev); err != nil {
		s.logger.Printf("transition log append failed for %s: %v", rec.ID, err)
	}
}

// getOrCreatePlatformWallet returns the principal's custodial wallet,
// provisioning one on first use.
func (s *Service) getOrCreatePlatformWallet(ctx context.Context, ownerID string) (*domain.UserWallet, error) {
	w, err := s.wallets.Get(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load platform wallet: %w", err)
	}

	kp, err := wallet.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate platform wallet: %w", err)
	}
	enc, err := vault.Encrypt(kp.SecretBase58(), s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt platform wallet secret: %w", err)
	}

	w = &domain.UserWallet{
		OwnerID:   ownerID,
		Address:   kp.Address(),
		SecretEnc: enc,
		CreatedAt: s.now(),
	}
	if err := s.wallets.Put(ctx, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Another request provisioned it first; use theirs.
			return s.wallets.Get(ctx, ownerID)
		}
		return nil, fmt.Errorf("store platform wallet: %w", err)
	}
	s.logger.Printf("provisioned platform wallet %s for owner %s", w.Address, ownerID)
	return w, nil
}

// platformSecret decrypts the custodial wallet secret for an owner.
func (s *Service) platformSecret(ctx context.Context, ownerID string) (string, error) {
	w, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("load platform wallet: %w", err)
	}
	secret, err := vault.Decrypt(w.SecretEnc, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypt platform wallet secret: %w", err)
	}
	return secret, nil
}

// launchKeypair decrypts and reconstructs the record's launch keypair.
func (s *Service) launchKeypair(rec *domain.LaunchRecord) (*wallet.Keypair, error) {
	if rec.LaunchAddress == "" || rec.LaunchSecretEnc == "" {
		return nil, ErrNoLaunchWallet
	}
	secret, err := vault.Decrypt(rec.LaunchSecretEnc, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt launch wallet secret: %w", err)
	}
	kp, err := wallet.FromSecretBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("reconstruct launch keypair: %w", err)
	}
	return kp, nil
}

// launchSecret decrypts the record's launch wallet secret.
func (s *Service) launchSecret(rec *domain.LaunchRecord) (string, error) {
	if rec.LaunchSecretEnc == "" {
		return "", ErrNoLaunchWallet
	}
	secret, err := vault.Decrypt(rec.LaunchSecretEnc, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypt launch wallet secret: %w", err)
	}
	return secret, nil
}

// Get returns a launch record for its owner.
func (s *Service) Get(ctx context.Context, ownerID, launchID string) (*domain.LaunchRecord, error) {
	rec, _, err := s.loadOwned(ctx, ownerID, launchID)
	return rec, err
}

// List returns the owner's launches, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*domain.LaunchRecord, error) {
	recs, err := s.launches.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	return recs, nil
}

// Transitions returns the audit trail for a launch, oldest first. Returns
// empty when no transition log is configured.
func (s *Service) Transitions(ctx context.Context, ownerID, launchID string) ([]*domain.TransitionEvent, error) {
	if _, _, err := s.loadOwned(ctx, ownerID, launchID); err != nil {
		return nil, err
	}
	if s.transitions == nil {
		return nil, nil
	}
	events, err := s.transitions.GetByLaunchID(ctx, launchID)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	return events, nil
}

// PlatformWallet returns the owner's custodial wallet address and current
// balance, provisioning the wallet on first call.
func (s *Service) PlatformWallet(ctx context.Context, ownerID string) (address string, balance uint64, err error) {
	w, err := s.getOrCreatePlatformWallet(ctx, ownerID)
	if err != nil {
		return "", 0, err
	}
	balance, err = s.chain.GetBalance(ctx, w.Address)
	if err != nil {
		// Balance is advisory; the address is the payload.
		s.logger.Printf("platform wallet balance check failed for %s: %v", ownerID, err)
		return w.Address, 0, nil
	}
	return w.Address, balance, nil
}
