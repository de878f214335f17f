package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodES256K implements ES256K (secp256k1 with SHA-256) for JWT
// encoded credentials.
type SigningMethodES256K struct{}

// ES256K is the shared signing method instance.
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}

// Alg returns the algorithm name.
func (m *SigningMethodES256K) Alg() string {
	return "ES256K"
}

// Sign signs the string with a hex-encoded secp256k1 private key and returns
// the 64-byte r||s signature.
func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	privKeyHex, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("ES256K sign expects a hex private key string, got %T", key)
	}

	privKeyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	privKey, err := crypto.ToECDSA(privKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	hash := sha256.Sum256([]byte(signingString))
	sig, err := crypto.Sign(hash[:], privKey)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}

	// Drop the recovery id; ES256K signatures are r||s.
	return sig[:64], nil
}

// Verify checks a 64-byte r||s signature against a compressed or
// uncompressed secp256k1 public key given as bytes.
func (m *SigningMethodES256K) Verify(signingString string, sig []byte, key interface{}) error {
	publicKey, ok := key.([]byte)
	if !ok {
		return fmt.Errorf("ES256K verify expects public key bytes, got %T", key)
	}
	if len(sig) != 64 {
		return fmt.Errorf("invalid signature length: got %d, want 64 bytes", len(sig))
	}

	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return fmt.Errorf("invalid signature: r overflows")
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return fmt.Errorf("invalid signature: s overflows")
	}

	hash := sha256.Sum256([]byte(signingString))
	if !dcrecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// parseJWTCredential verifies the token signature and returns the embedded
// credential document from the "vc" claim.
func parseJWTCredential(token string, resolve KeyResolver) (map[string]interface{}, error) {
	if resolve == nil {
		return nil, fmt.Errorf("key resolver is required for JWT credentials")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{ES256K.Alg()}))
	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid not found in header")
		}
		return resolve(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify JWT credential: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected JWT claims type %T", parsed.Claims)
	}
	doc, ok := claims["vc"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("JWT carries no vc claim")
	}
	return doc, nil
}
