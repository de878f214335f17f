package trust

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-trust-registry/binding"
	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/ledger"
	"github.com/pilacorp/go-trust-registry/registry/policy"
	"github.com/pilacorp/go-trust-registry/registry/revocation"
)

const issuer = dto.Controller("did:example:issuer")

func testRegistryID() dto.RegistryID {
	var id dto.RegistryID
	for i := range id {
		id[i] = 0x42
	}
	return id
}

func testCredential(credID string, reg dto.RegistryID) map[string]interface{} {
	return map[string]interface{}{
		"@context": map[string]interface{}{
			"id": "@id",
			"credentialStatus": map[string]interface{}{
				"@id":   "https://www.w3.org/2018/credentials#credentialStatus",
				"@type": "@id",
			},
			"name": "https://schema.org/name",
		},
		"id":               credID,
		"name":             "Degree credential",
		"credentialStatus": binding.DefaultQualifier + hex.EncodeToString(reg[:]),
	}
}

// signCredential adds a secp256k1 proof over the credential's signing input.
func signCredential(t *testing.T, binder *binding.Binder, doc map[string]interface{}, privHex string) {
	t.Helper()

	input, err := binder.SigningInput(doc)
	require.NoError(t, err)

	priv, err := ethcrypto.HexToECDSA(privHex)
	require.NoError(t, err)
	sig, err := ethcrypto.Sign(input, priv)
	require.NoError(t, err)

	doc["proof"] = map[string]interface{}{
		"type":               "EcdsaSecp256k1Signature2019",
		"verificationMethod": string(issuer) + "#key-1",
		"proofPurpose":       "assertionMethod",
		"proofValue":         hex.EncodeToString(sig),
	}
}

func newSignedPipeline(t *testing.T) (*Pipeline, *revocation.Store, *binding.Binder, string) {
	t.Helper()

	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	privHex := hex.EncodeToString(ethcrypto.FromECDSA(priv))
	pubCompressed := ethcrypto.CompressPubkey(&priv.PublicKey)

	store := revocation.NewStore(ledger.NewMemoryLedger())
	binder := binding.NewBinder()
	pipeline := NewPipeline(store,
		WithBinder(binder),
		WithKeyResolver(func(vm string) ([]byte, error) {
			return pubCompressed, nil
		}),
	)
	return pipeline, store, binder, privHex
}

func createRegistry(t *testing.T, store *revocation.Store, id dto.RegistryID) {
	t.Helper()
	pol, err := policy.OneOf(issuer)
	require.NoError(t, err)
	_, err = store.CreateRegistry(context.Background(), id, pol, false, issuer)
	require.NoError(t, err)
}

func TestCheckTrustRevocationRoundTrip(t *testing.T) {
	pipeline, store, binder, privHex := newSignedPipeline(t)
	reg := testRegistryID()
	createRegistry(t, store, reg)

	doc := testCredential("https://example.edu/credentials/1", reg)
	signCredential(t, binder, doc, privHex)

	// Valid signature, nothing revoked.
	res, err := pipeline.CheckTrust(doc)
	require.NoError(t, err)
	assert.True(t, res.Verified)

	// The issuer revokes the credential's id.
	bnd, err := binder.BindCredential(doc)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(context.Background(), reg, []dto.RevocationID{bnd.RevocationID}, issuer))

	res, err = pipeline.CheckTrust(doc)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.True(t, res.Revoked)
	assert.Contains(t, res.Reason, "revoked")

	// Unrevoking restores trust.
	require.NoError(t, store.Unrevoke(context.Background(), reg, []dto.RevocationID{bnd.RevocationID}, issuer))
	res, err = pipeline.CheckTrust(doc)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestCryptoFailureTakesPrecedenceOverRevocation(t *testing.T) {
	pipeline, store, binder, privHex := newSignedPipeline(t)
	reg := testRegistryID()
	createRegistry(t, store, reg)

	doc := testCredential("https://example.edu/credentials/1", reg)
	signCredential(t, binder, doc, privHex)

	bnd, err := binder.BindCredential(doc)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(context.Background(), reg, []dto.RevocationID{bnd.RevocationID}, issuer))

	// Tamper with the credential after signing.
	doc["name"] = "Forged credential"

	res, err := pipeline.CheckTrust(doc)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.False(t, res.Revoked)
	assert.Contains(t, res.Reason, "signature verification failed")
}

func TestCheckTrustWithoutStatus(t *testing.T) {
	pipeline, _, binder, privHex := newSignedPipeline(t)

	doc := map[string]interface{}{
		"@context": map[string]interface{}{
			"id":   "@id",
			"name": "https://schema.org/name",
		},
		"id":   "https://example.edu/credentials/1",
		"name": "Degree credential",
	}
	signCredential(t, binder, doc, privHex)

	res, err := pipeline.CheckTrust(doc)
	require.NoError(t, err)
	assert.True(t, res.Verified, "a credential without status is not revocable")
}

func TestCheckTrustMissingProof(t *testing.T) {
	pipeline, _, _, _ := newSignedPipeline(t)

	res, err := pipeline.CheckTrust(testCredential("https://example.edu/credentials/1", testRegistryID()))
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "no proof")
}

func TestCheckTrustUnknownSuite(t *testing.T) {
	pipeline, _, _, _ := newSignedPipeline(t)

	doc := testCredential("https://example.edu/credentials/1", testRegistryID())
	doc["proof"] = map[string]interface{}{
		"type":       "Ed25519Signature2020",
		"proofValue": "00",
	}

	_, err := pipeline.CheckTrust(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suite registered")
}

func TestCheckTrustBatch(t *testing.T) {
	pipeline, store, binder, privHex := newSignedPipeline(t)
	reg := testRegistryID()
	createRegistry(t, store, reg)

	docs := make([]map[string]interface{}, 4)
	for i := range docs {
		docs[i] = testCredential(fmt.Sprintf("https://example.edu/credentials/%d", i), reg)
		signCredential(t, binder, docs[i], privHex)
	}

	// Revoke the third credential.
	bnd, err := binder.BindCredential(docs[2])
	require.NoError(t, err)
	require.NoError(t, store.Revoke(context.Background(), reg, []dto.RevocationID{bnd.RevocationID}, issuer))

	results, err := pipeline.CheckTrustBatch(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results[0].Verified)
	assert.True(t, results[1].Verified)
	assert.False(t, results[2].Verified)
	assert.True(t, results[3].Verified)
}
