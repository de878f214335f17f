package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-trust-registry/registry/dto"
)

// Throwaway key, never used outside tests.
const testPrivKey = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"

func newTestAnchor(t *testing.T) *Anchor {
	t.Helper()

	signer, err := NewKeySigner(testPrivKey)
	require.NoError(t, err)

	anchor, err := NewAnchor(DefaultConfig(), signer)
	require.NoError(t, err)
	return anchor
}

func testID(b byte) dto.RegistryID {
	var id dto.RegistryID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestRevokeTxRoundTrip(t *testing.T) {
	anchor := newTestAnchor(t)

	members := []dto.RevocationID{dto.RevocationID(testID(0x02)), dto.RevocationID(testID(0x03))}
	result, err := anchor.RevokeTx(7, testID(0x01), members)
	require.NoError(t, err)
	require.NotEmpty(t, result.RequestID)
	require.NotEmpty(t, result.TxHash)

	tx, err := DecodeTx(result.TxHex)
	require.NoError(t, err)

	require.NotNil(t, tx.To())
	assert.Equal(t, strings.ToLower(DefaultContractAddress), strings.ToLower(tx.To().Hex()))
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, int64(DefaultChainID), tx.ChainId().Int64())
	assert.Equal(t, uint64(DefaultGasLimit), tx.Gas())
	assert.NotEmpty(t, tx.Data())

	// The signature must recover to the signing account.
	signer, err := NewKeySigner(testPrivKey)
	require.NoError(t, err)
	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(DefaultChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), strings.ToLower(sender.Hex()))
}

func TestTxMethodsProduceDistinctCalldata(t *testing.T) {
	anchor := newTestAnchor(t)
	id := testID(0x01)
	members := []dto.RevocationID{dto.RevocationID(testID(0x02))}

	create, err := anchor.CreateRegistryTx(0, id, true, []byte(`{"oneOf":["did:example:a"]}`))
	require.NoError(t, err)
	revoke, err := anchor.RevokeTx(1, id, members)
	require.NoError(t, err)
	unrevoke, err := anchor.UnrevokeTx(2, id, members)
	require.NoError(t, err)
	remove, err := anchor.RemoveRegistryTx(3, id)
	require.NoError(t, err)
	update, err := anchor.UpdateAccumulatorTx(4, dto.AccumulatorID(testID(0x04)), []byte{0x01}, []byte{0x02})
	require.NoError(t, err)

	selectors := make(map[string]struct{})
	for _, result := range []*TxResult{create, revoke, unrevoke, remove, update} {
		tx, err := DecodeTx(result.TxHex)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(tx.Data()), 4)
		selectors[string(tx.Data()[:4])] = struct{}{}
	}
	assert.Len(t, selectors, 5, "each mutation calls its own contract method")
}

func TestDecodeTxRejectsGarbage(t *testing.T) {
	_, err := DecodeTx("zz")
	assert.Error(t, err)

	_, err = DecodeTx("0xdeadbeef")
	assert.Error(t, err)
}

func TestNewAnchorValidation(t *testing.T) {
	signer, err := NewKeySigner(testPrivKey)
	require.NoError(t, err)

	_, err = NewAnchor(&Config{}, signer)
	assert.Error(t, err)

	_, err = NewAnchor(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestNewKeySigner(t *testing.T) {
	signer, err := NewKeySigner("0x" + testPrivKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signer.Address(), "0x"))
	assert.Len(t, signer.Address(), 42)

	_, err = NewKeySigner("not-hex")
	assert.Error(t, err)
}
