package gateway

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/galaswap/agent/pkg/agenterr"
)

// Signer signs swap payloads for bundler submission. The dry-run executor
// never calls it.
type Signer interface {
	// SignObject signs the canonical JSON serialization of the payload and
	// returns a base64 signature.
	SignObject(payload map[string]any) (string, error)
	// Address returns the signer's derived eth| address.
	Address() string
}

// PrivateKeySigner signs with a secp256k1 private key over the keccak256
// digest of the payload's canonical JSON form (object keys sorted, which
// encoding/json guarantees for maps).
type PrivateKeySigner struct {
	key *secp256k1.PrivateKey
}

// NewPrivateKeySigner parses a hex-encoded private key, with or without the
// 0x prefix. The key material is never logged.
func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid hex")
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	return &PrivateKeySigner{key: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// SignObject implements Signer.
func (s *PrivateKeySigner) SignObject(payload map[string]any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(canonical)
	digest := hasher.Sum(nil)

	sig := ecdsa.SignCompact(s.key, digest, false)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Address implements Signer, deriving the eth| form from the public key.
func (s *PrivateKeySigner) Address() string {
	pub := s.key.PubKey().SerializeUncompressed()

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(pub[1:]) // drop the 0x04 prefix
	digest := hasher.Sum(nil)

	return "eth|" + hex.EncodeToString(digest[12:])
}

// VerifyWalletAddress checks that an eth| wallet address belongs to the
// signer's key. A mismatch means every signed bundle would be rejected, so
// startup fails fast. client| identities are registry aliases that cannot be
// derived from the key and pass through unchecked.
func VerifyWalletAddress(s Signer, wallet string) error {
	if !strings.HasPrefix(wallet, "eth|") {
		return nil
	}
	if !strings.EqualFold(s.Address(), wallet) {
		return agenterr.ErrConfig.Wrapf("WALLET_ADDRESS %s does not belong to the configured private key", wallet)
	}
	return nil
}
