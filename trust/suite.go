package trust

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KeyResolver resolves a proof's verificationMethod to public key bytes.
// Key lookup belongs to the identity layer; the pipeline only needs the
// resolved bytes.
type KeyResolver func(verificationMethod string) ([]byte, error)

// Verifier checks a signature over a signing input. Implementations are
// stateless and safe for concurrent use.
type Verifier interface {
	Verify(signingInput, signature, publicKey []byte) error
}

// Suites dispatches proof types to their verifiers. Register all suites
// before handing the set to a pipeline; registration is not synchronized.
type Suites struct {
	byType map[string]Verifier
}

// NewSuites returns a suite set with the secp256k1 suites registered under
// their W3C proof type names.
func NewSuites() *Suites {
	s := &Suites{byType: make(map[string]Verifier)}
	s.Register("EcdsaSecp256k1Signature2019", Secp256k1Suite{})
	s.Register("DataIntegrityProof", Secp256k1Suite{})
	return s
}

// Register maps a proof type to a verifier, replacing any previous mapping.
func (s *Suites) Register(proofType string, v Verifier) {
	s.byType[proofType] = v
}

// Lookup returns the verifier registered for the proof type.
func (s *Suites) Lookup(proofType string) (Verifier, bool) {
	v, ok := s.byType[proofType]
	return v, ok
}

// Secp256k1Suite verifies ECDSA signatures on the secp256k1 curve. It
// accepts compressed (33-byte) and uncompressed (65-byte) public keys and
// signatures of 64 bytes (r||s) or 65 bytes (r||s||v).
type Secp256k1Suite struct{}

// Verify checks the signature over signingInput, which is expected to be a
// 32-byte digest.
func (Secp256k1Suite) Verify(signingInput, signature, publicKey []byte) error {
	if len(signingInput) == 0 {
		return fmt.Errorf("signing input is empty")
	}

	pub, err := parseSecp256k1PublicKey(publicKey)
	if err != nil {
		return err
	}

	var rs []byte
	switch len(signature) {
	case 64:
		rs = signature
	case 65:
		rs = signature[:64]
	default:
		return fmt.Errorf("invalid signature length: got %d, want 64 or 65 bytes", len(signature))
	}

	r := new(big.Int).SetBytes(rs[:32])
	s := new(big.Int).SetBytes(rs[32:])
	if !ecdsa.Verify(pub, signingInput, r, s) {
		return fmt.Errorf("signature does not match public key")
	}
	return nil
}

// parseSecp256k1PublicKey parses a compressed or uncompressed secp256k1
// public key.
func parseSecp256k1PublicKey(publicKey []byte) (*ecdsa.PublicKey, error) {
	switch {
	case len(publicKey) == 33 && (publicKey[0] == 0x02 || publicKey[0] == 0x03):
		parsed, err := btcec.ParsePubKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse compressed public key: %w", err)
		}
		return parsed.ToECDSA(), nil
	case len(publicKey) == 65 && publicKey[0] == 0x04:
		pub, err := ethcrypto.UnmarshalPubkey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uncompressed public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported public key format")
	}
}
