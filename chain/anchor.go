// Package chain builds signed transactions that anchor registry mutations on
// the trust registry smart contract.
//
// The package never broadcasts. Every method returns a raw RLP-encoded
// transaction that the caller submits through its own transaction layer;
// nonce and fee handling beyond a simple pending-nonce read stay with that
// layer.
package chain

import (
	"context"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pilacorp/go-trust-registry/registry/dto"
)

//go:embed trust_registry_smc_abi.json
var smcABIJSON []byte

var (
	parsedABI   abi.ABI
	parseOnce   sync.Once
	errParseABI error
)

// loadABI parses the embedded trust registry contract ABI exactly once.
func loadABI() (abi.ABI, error) {
	parseOnce.Do(func() {
		type hardhatArtifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		var artifact hardhatArtifact
		if err := json.Unmarshal(smcABIJSON, &artifact); err != nil {
			errParseABI = fmt.Errorf("failed to unmarshal artifact JSON: %w", err)
			return
		}
		parsedABI, errParseABI = abi.JSON(strings.NewReader(string(artifact.ABI)))
	})
	return parsedABI, errParseABI
}

// TxResult is a pre-built transaction for one registry mutation. RequestID
// is a correlation id for callers tracking asynchronous submission.
type TxResult struct {
	RequestID string
	TxHex     string
	TxHash    string
}

// Anchor builds signed trust registry transactions.
type Anchor struct {
	contractABI abi.ABI
	rpcClient   *ethclient.Client
	cfg         *Config
	signer      TxSigner
	log         *logrus.Logger
}

// NewAnchor creates an anchor client. A failed RPC connection is tolerated;
// transaction building still works, only nonce reads will fail.
func NewAnchor(cfg *Config, signer TxSigner) (*Anchor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Standardize()

	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}

	contractABI, err := loadABI()
	if err != nil {
		return nil, err
	}

	a := &Anchor{
		contractABI: contractABI,
		cfg:         cfg,
		signer:      signer,
		log:         logrus.StandardLogger(),
	}

	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		a.log.WithField("rpc", cfg.RPC).Warn("failed to init RPC client, nonce reads will not work")
	} else {
		a.rpcClient = client
	}
	return a, nil
}

// CreateRegistryTx builds the transaction creating a registry with the given
// encoded policy document.
func (a *Anchor) CreateRegistryTx(nonce uint64, id dto.RegistryID, addOnly bool, policyDoc []byte) (*TxResult, error) {
	calldata, err := a.contractABI.Pack("createRegistry", [32]byte(id), addOnly, policyDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createRegistry: %w", err)
	}
	return a.buildTx(nonce, calldata)
}

// RevokeTx builds the transaction revoking the given member ids.
func (a *Anchor) RevokeTx(nonce uint64, id dto.RegistryID, members []dto.RevocationID) (*TxResult, error) {
	return a.memberTx("revoke", nonce, id, members)
}

// UnrevokeTx builds the transaction unrevoking the given member ids.
func (a *Anchor) UnrevokeTx(nonce uint64, id dto.RegistryID, members []dto.RevocationID) (*TxResult, error) {
	return a.memberTx("unrevoke", nonce, id, members)
}

// RemoveRegistryTx builds the transaction destroying a registry.
func (a *Anchor) RemoveRegistryTx(nonce uint64, id dto.RegistryID) (*TxResult, error) {
	endorsement, err := a.endorse(id[:])
	if err != nil {
		return nil, err
	}
	calldata, err := a.contractABI.Pack("removeRegistry", [32]byte(id), endorsement)
	if err != nil {
		return nil, fmt.Errorf("failed to pack removeRegistry: %w", err)
	}
	return a.buildTx(nonce, calldata)
}

// UpdateAccumulatorTx builds the transaction recording an accumulator
// transition. delta is the encoded update shape including witness update
// info; it is carried verbatim.
func (a *Anchor) UpdateAccumulatorTx(nonce uint64, id dto.AccumulatorID, accumulated, delta []byte) (*TxResult, error) {
	endorsement, err := a.endorse(append(id[:], accumulated...))
	if err != nil {
		return nil, err
	}
	calldata, err := a.contractABI.Pack("updateAccumulator", [32]byte(id), accumulated, delta, endorsement)
	if err != nil {
		return nil, fmt.Errorf("failed to pack updateAccumulator: %w", err)
	}
	return a.buildTx(nonce, calldata)
}

// Nonce reads the pending nonce of the signer account. Requires a working
// RPC connection.
func (a *Anchor) Nonce(ctx context.Context) (uint64, error) {
	if a.rpcClient == nil {
		return 0, fmt.Errorf("RPC client is not available")
	}
	nonce, err := a.rpcClient.PendingNonceAt(ctx, common.HexToAddress(a.signer.Address()))
	if err != nil {
		return 0, fmt.Errorf("failed to read pending nonce: %w", err)
	}
	return nonce, nil
}

// DecodeTx decodes a raw hex transaction produced by this package.
func DecodeTx(rawTxHex string) (*types.Transaction, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(rawTxHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex string: %w", err)
	}
	var tx types.Transaction
	if err := rlp.DecodeBytes(b, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode RLP: %w", err)
	}
	return &tx, nil
}

func (a *Anchor) memberTx(method string, nonce uint64, id dto.RegistryID, members []dto.RevocationID) (*TxResult, error) {
	packed := make([][32]byte, len(members))
	endorsed := make([]byte, 0, (len(members)+1)*32)
	endorsed = append(endorsed, id[:]...)
	for i, m := range members {
		packed[i] = [32]byte(m)
		endorsed = append(endorsed, m[:]...)
	}

	endorsement, err := a.endorse(endorsed)
	if err != nil {
		return nil, err
	}
	calldata, err := a.contractABI.Pack(method, [32]byte(id), packed, endorsement)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return a.buildTx(nonce, calldata)
}

// endorse signs the mutation data in the EIP-191 version 0x00 format bound
// to the registry contract, with the recovery id normalized to 27/28 as the
// contract expects.
func (a *Anchor) endorse(data []byte) ([]byte, error) {
	payload := []byte{0x19, 0x00}
	payload = append(payload, common.HexToAddress(a.cfg.ContractAddress).Bytes()...)
	payload = append(payload, data...)

	hash := crypto.Keccak256Hash(payload)
	signature, err := a.signer.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign endorsement: %w", err)
	}

	if signature[64] < 27 {
		signature[64] += 27
	}
	return signature, nil
}

// buildTx wraps the calldata in a signed legacy transaction and serializes
// it to raw hex.
func (a *Anchor) buildTx(nonce uint64, calldata []byte) (*TxResult, error) {
	to := common.HexToAddress(a.cfg.ContractAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      a.cfg.GasLimit,
		GasPrice: new(big.Int).Set(a.cfg.GasPrice),
		Data:     calldata,
	})

	txSigner := types.NewEIP155Signer(big.NewInt(a.cfg.ChainID))
	hash := txSigner.Hash(tx)
	signature, err := a.signer.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	signed, err := tx.WithSignature(txSigner, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}

	raw, err := rlp.EncodeToBytes(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	result := &TxResult{
		RequestID: uuid.NewString(),
		TxHex:     hex.EncodeToString(raw),
		TxHash:    signed.Hash().Hex(),
	}
	a.log.WithFields(logrus.Fields{"request": result.RequestID, "tx": result.TxHash}).Debug("anchor transaction built")
	return result, nil
}
