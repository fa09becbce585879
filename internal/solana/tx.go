package solana

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// signatureLength is the size of an ed25519 signature.
const signatureLength = 64

// ErrTruncatedTransaction is returned when transaction bytes end before the
// structure they promise.
var ErrTruncatedTransaction = errors.New("truncated transaction")

// Transaction is a deserialized wire transaction: the signature section plus
// the raw message bytes. The message header and static account keys are
// parsed; instructions and address table lookups are carried opaquely inside
// Message and never touched.
type Transaction struct {
	// Signatures holds one 64-byte slot per required signer, in the order of
	// the static account keys. Unsigned slots are zero-filled.
	Signatures [][]byte

	// Message is the serialized message, the exact bytes that get signed.
	Message []byte

	// NumRequiredSignatures is taken from the message header.
	NumRequiredSignatures int

	// StaticAccountKeys are the base58 account keys from the message.
	StaticAccountKeys []string
}

// DeserializeTransaction parses wire bytes into a Transaction. Both legacy
// and versioned message formats are accepted.
func DeserializeTransaction(raw []byte) (*Transaction, error) {
	sigCount, offset, err := decodeCompactU16(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("read signature count: %w", err)
	}

	sigs := make([][]byte, 0, sigCount)
	for i := 0; i < sigCount; i++ {
		if offset+signatureLength > len(raw) {
			return nil, fmt.Errorf("read signature %d: %w", i, ErrTruncatedTransaction)
		}
		sig := make([]byte, signatureLength)
		copy(sig, raw[offset:offset+signatureLength])
		sigs = append(sigs, sig)
		offset += signatureLength
	}

	message := raw[offset:]
	numRequired, keys, err := parseMessageHeader(message)
	if err != nil {
		return nil, err
	}

	// The portal serializes unsigned transactions with a zero-filled slot per
	// required signer; tolerate a missing section by allocating it here.
	for len(sigs) < numRequired {
		sigs = append(sigs, make([]byte, signatureLength))
	}

	msgCopy := make([]byte, len(message))
	copy(msgCopy, message)

	return &Transaction{
		Signatures:            sigs,
		Message:               msgCopy,
		NumRequiredSignatures: numRequired,
		StaticAccountKeys:     keys,
	}, nil
}

// parseMessageHeader reads the header and static account keys from message
// bytes. A set top bit on the first byte marks a versioned message with a
// one-byte version prefix before the header.
func parseMessageHeader(message []byte) (int, []string, error) {
	offset := 0
	if len(message) == 0 {
		return 0, nil, fmt.Errorf("read message header: %w", ErrTruncatedTransaction)
	}
	if message[0]&0x80 != 0 {
		offset++ // version prefix
	}

	// Header: required signatures, readonly signed, readonly unsigned.
	if offset+3 > len(message) {
		return 0, nil, fmt.Errorf("read message header: %w", ErrTruncatedTransaction)
	}
	numRequired := int(message[offset])
	offset += 3

	keyCount, offset, err := decodeCompactU16(message, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("read account key count: %w", err)
	}

	keys := make([]string, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		if offset+32 > len(message) {
			return 0, nil, fmt.Errorf("read account key %d: %w", i, ErrTruncatedTransaction)
		}
		keys = append(keys, base58.Encode(message[offset:offset+32]))
		offset += 32
	}

	if numRequired > len(keys) {
		return 0, nil, fmt.Errorf("header requires %d signers but message has %d keys", numRequired, len(keys))
	}

	return numRequired, keys, nil
}

// RequiredSigners returns the base58 addresses that must sign, in slot order.
// The first entry is the fee payer.
func (t *Transaction) RequiredSigners() []string {
	return t.StaticAccountKeys[:t.NumRequiredSignatures]
}

// FeePayer returns the fee payer address.
func (t *Transaction) FeePayer() string {
	if t.NumRequiredSignatures == 0 {
		return ""
	}
	return t.StaticAccountKeys[0]
}

// Signer produces a signature over message bytes for a single address.
// *wallet.Keypair satisfies it.
type Signer interface {
	Address() string
	Sign(message []byte) []byte
}

// Sign places a signature over the message into the slot belonging to the
// signer's address. Returns an error if the address is not a required signer.
func (t *Transaction) Sign(signer Signer) error {
	address := signer.Address()
	for i, required := range t.RequiredSigners() {
		if required == address {
			t.Signatures[i] = signer.Sign(t.Message)
			return nil
		}
	}
	return fmt.Errorf("address %s is not a required signer", address)
}

// Serialize re-encodes the transaction into wire bytes.
func (t *Transaction) Serialize() []byte {
	out := encodeCompactU16(len(t.Signatures))
	for _, sig := range t.Signatures {
		out = append(out, sig...)
	}
	return append(out, t.Message...)
}

// decodeCompactU16 reads a compact-u16 (shortvec) length prefix.
func decodeCompactU16(data []byte, offset int) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if offset >= len(data) {
			return 0, 0, ErrTruncatedTransaction
		}
		b := uint(data[offset])
		offset++
		value |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return int(value), offset, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}

// encodeCompactU16 writes a compact-u16 (shortvec) length prefix.
func encodeCompactU16(value int) []byte {
	var out []byte
	v := uint(value)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
