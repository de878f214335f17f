package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxSigner signs transaction and endorsement hashes for a single account.
type TxSigner interface {
	Sign(hash []byte) ([]byte, error)
	Address() string
}

// keySigner is the default TxSigner backed by an in-memory secp256k1 key.
type keySigner struct {
	priv *ecdsa.PrivateKey
}

// NewKeySigner creates a signer from a hex private key, with or without a
// 0x prefix.
func NewKeySigner(privHex string) (TxSigner, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &keySigner{priv: priv}, nil
}

// Sign signs a 32-byte hash and returns the 65-byte r||s||v signature with
// the recovery id as produced by the curve (0 or 1).
func (s *keySigner) Sign(hash []byte) ([]byte, error) {
	signature, err := crypto.Sign(hash, s.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
	}
	return signature, nil
}

// Address returns the lower-cased hex address of the signing account.
func (s *keySigner) Address() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.priv.PublicKey).Hex())
}
