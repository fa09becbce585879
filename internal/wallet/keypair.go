// Package wallet provides ed25519 keypair handling for launch and custodial
// wallets: generation, base58 secret encoding, signing, and address checks.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidSecret is returned when a base58 secret does not decode to a
	// 64-byte ed25519 private key.
	ErrInvalidSecret = errors.New("wallet: invalid secret key")

	// ErrInvalidAddress is returned when an address is not a valid base58
	// 32-byte ed25519 public key.
	ErrInvalidAddress = errors.New("wallet: invalid address")
)

// Keypair is an ed25519 keypair. The secret holds the standard 64-byte
// expanded form (seed || public key) used by Solana tooling.
type Keypair struct {
	priv ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// FromSecretBase58 reconstructs a keypair from a base58-encoded 64-byte
// secret key.
func FromSecretBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSecret, len(raw))
	}
	return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return base58.Encode(k.priv.Public().(ed25519.PublicKey))
}

// PublicKey returns the raw 32-byte public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// SecretBase58 returns the base58-encoded 64-byte secret key.
func (k *Keypair) SecretBase58() string {
	return base58.Encode(k.priv)
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// ValidateAddress checks that address is base58, 32 bytes, and a valid point
// on the ed25519 curve. Program-derived addresses are intentionally off-curve
// and fail this check; wallet recipients must pass it.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidAddress, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("%w: off-curve", ErrInvalidAddress)
	}
	return nil
}
