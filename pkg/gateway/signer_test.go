package gateway

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func TestNewPrivateKeySigner(t *testing.T) {
	s, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)
	assert.NotNil(t, s)

	prefixed, err := NewPrivateKeySigner("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), prefixed.Address(), "0x prefix is cosmetic")
}

func TestNewPrivateKeySignerRejectsBadKeys(t *testing.T) {
	_, err := NewPrivateKeySigner("not-hex")
	assert.Error(t, err)

	_, err = NewPrivateKeySigner("abcd")
	assert.Error(t, err, "too short")

	// Error text must never echo the key material.
	_, err = NewPrivateKeySigner("zzzz")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "zzzz")
}

func TestSignObjectDeterministic(t *testing.T) {
	s, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)

	payload := map[string]any{"b": "2", "a": "1"}
	first, err := s.SignObject(payload)
	require.NoError(t, err)
	second, err := s.SignObject(map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, first, second, "key order does not change the canonical form")

	raw, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Equal(t, 65, len(raw), "compact signature is 65 bytes")
}

func TestSignObjectDifferentPayloadsDiffer(t *testing.T) {
	s, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)

	one, err := s.SignObject(map[string]any{"amount": "100"})
	require.NoError(t, err)
	two, err := s.SignObject(map[string]any{"amount": "101"})
	require.NoError(t, err)
	assert.NotEqual(t, one, two)
}

func TestVerifyWalletAddress(t *testing.T) {
	s, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)

	require.NoError(t, VerifyWalletAddress(s, s.Address()))
	require.NoError(t, VerifyWalletAddress(s, "eth|"+strings.ToUpper(s.Address()[4:])), "hex comparison ignores case")
	require.NoError(t, VerifyWalletAddress(s, "client|some-registry-id"), "client aliases are not derivable")

	err = VerifyWalletAddress(s, "eth|0000000000000000000000000000000000000000")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKeyHex)
}

func TestAddressDerivation(t *testing.T) {
	s, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)

	addr := s.Address()
	assert.True(t, strings.HasPrefix(addr, "eth|"))
	assert.Len(t, addr, 4+40, "20-byte address in hex")
	assert.Equal(t, addr, s.Address(), "derivation is stable")
}
