package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	token, err := Encrypt("5Kb8kLf9zgWQnogidDA76MzPL6TsZZY36hWXMssSzNydYXYB9KF", "server-passphrase")
	require.NoError(t, err)

	plain, err := Decrypt(token, "server-passphrase")
	require.NoError(t, err)
	assert.Equal(t, "5Kb8kLf9zgWQnogidDA76MzPL6TsZZY36hWXMssSzNydYXYB9KF", plain)
}

func TestEncrypt_TokenLayout(t *testing.T) {
	token, err := Encrypt("secret", "pass")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	a, err := Encrypt("same plaintext", "pass")
	require.NoError(t, err)
	b, err := Encrypt("same plaintext", "pass")
	require.NoError(t, err)

	// Random nonce means two encryptions of the same input never collide.
	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	token, err := Encrypt("secret", "correct")
	require.NoError(t, err)

	_, err = Decrypt(token, "wrong")
	assert.Error(t, err)
}

func TestDecrypt_MalformedToken(t *testing.T) {
	cases := []string{
		"",
		"no-dot-here",
		".onlyciphertext",
		"onlynonce.",
		"not base64!.also not base64!",
	}
	for _, tc := range cases {
		_, err := Decrypt(tc, "pass")
		assert.Error(t, err, "token %q", tc)
	}
}

func TestEncrypt_EmptyPassphrase(t *testing.T) {
	_, err := Encrypt("secret", "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}
