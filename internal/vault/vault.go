// Package vault provides symmetric encryption for wallet secrets at rest.
// The key is derived from a server-wide passphrase; the token format is
// base64(nonce) + "." + base64(ciphertext) with a random per-call nonce.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// nonceSize is the AES-GCM recommended nonce length.
const nonceSize = 12

var (
	// ErrInvalidToken is returned when a token does not have the expected
	// two-part base64 layout.
	ErrInvalidToken = errors.New("vault: invalid encrypted payload")

	// ErrEmptyPassphrase is returned when the passphrase is empty.
	ErrEmptyPassphrase = errors.New("vault: passphrase must not be empty")
)

// deriveKey derives the AES-256 key from the passphrase via SHA-256.
func deriveKey(passphrase string) [32]byte {
	return sha256.Sum256([]byte(passphrase))
}

func newGCM(passphrase string) (cipher.AEAD, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := deriveKey(passphrase)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext under the passphrase-derived key.
func Encrypt(plaintext, passphrase string) (string, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(nonce) + "." +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It fails if the token is malformed or the
// passphrase does not match the one used for encryption.
func Decrypt(token, passphrase string) (string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(nonce) != nonceSize {
		return "", ErrInvalidToken
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	return string(plaintext), nil
}
