package domain

// LaunchRecord is the unit of orchestration state: one token launch funded
// through the mixing pool, created on the trading venue, and eventually sold
// or claimed back. Stored as a single document keyed by launch id.
type LaunchRecord struct {
	ID      string `json:"id"`       // immutable, assigned at creation
	OwnerID string `json:"owner_id"` // authenticated principal, immutable

	// RequestedLamports is the funding amount fixed at creation, in the
	// smallest currency unit.
	RequestedLamports uint64 `json:"requested_lamports"`

	// PlatformAddress is the principal's long-lived custodial wallet address
	// that funds the mixing deposit.
	PlatformAddress string `json:"platform_address"`

	// LaunchAddress / LaunchSecretEnc are the single-use launch keypair.
	// LaunchSecretEnc is present iff LaunchAddress is present.
	LaunchAddress   string `json:"launch_address,omitempty"`
	LaunchSecretEnc string `json:"launch_secret_enc,omitempty"`

	Mixing MixingInfo `json:"mixing"`
	Trade  TradeInfo  `json:"trade"`

	Metadata TokenMetadata `json:"metadata"`

	// OverallStatus mirrors the furthest-progressed sub-status. It only ever
	// advances through the canonical order, or into an error variant.
	OverallStatus Status `json:"overall_status"`

	CreatedAt int64 `json:"created_at"` // Unix ms
	UpdatedAt int64 `json:"updated_at"` // Unix ms, rewritten on every mutation
}

// MixingInfo tracks the launch's interaction with the mixing collaborator.
// DepositReference is set at most once per record.
type MixingInfo struct {
	DepositReference string       `json:"deposit_reference,omitempty"`
	DepositAddress   string       `json:"deposit_address,omitempty"`
	Status           MixingStatus `json:"status,omitempty"`
	// RawStatus keeps the collaborator's verbatim string for display.
	RawStatus string `json:"raw_status,omitempty"`
}

// TradeInfo is populated once a token exists on the venue. MintAddress is set
// at most once; after that the fund-and-create phase is closed.
type TradeInfo struct {
	TxSignature string `json:"tx_signature,omitempty"`
	MintAddress string `json:"mint_address,omitempty"`
	Status      string `json:"status,omitempty"`
}

// TokenMetadata holds user-supplied display fields. The orchestrator treats
// it as opaque except for the fields the venue adapter requires.
type TokenMetadata struct {
	Name        string `json:"name,omitempty"`
	Ticker      string `json:"ticker,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	BannerURL   string `json:"banner_url,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Website     string `json:"website,omitempty"`
	MetadataURI string `json:"metadata_uri,omitempty"`
}

// CompleteForCreate reports whether the metadata carries everything the venue
// requires to mint a token.
func (m TokenMetadata) CompleteForCreate() bool {
	return m.Name != "" && m.Ticker != "" && m.Description != "" && m.ImageURL != ""
}

// UserWallet is the principal's custodial platform wallet. The secret is
// encrypted with the server vault passphrase, never stored in the clear.
type UserWallet struct {
	OwnerID   string `json:"owner_id"`
	Address   string `json:"address"`
	SecretEnc string `json:"secret_enc"`
	CreatedAt int64  `json:"created_at"`
}
