package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// Default configuration for anchoring registry mutations.
const (
	// DefaultRPC is the default RPC endpoint URL for blockchain connectivity.
	DefaultRPC = "https://rpc-new.pila.vn"
	// DefaultChainID is the default chain ID for the blockchain network.
	DefaultChainID = int64(704)
	// DefaultContractAddress is the default address of the trust registry
	// smart contract.
	DefaultContractAddress = "0x41c3a8b2c9f1d07e6aa52b18a4e90f6c23d5ef01"
	// DefaultGasLimit is the default gas limit for anchor transactions.
	DefaultGasLimit = uint64(500_000)
)

// Config holds the connection and transaction parameters for the anchor
// client. The RPC URL is only needed for read operations such as nonce
// queries; transaction building works without it.
type Config struct {
	// RPC is the blockchain RPC endpoint URL.
	RPC string
	// ChainID is the blockchain network chain ID.
	ChainID int64
	// ContractAddress is the address of the trust registry smart contract.
	ContractAddress string
	// GasLimit is the gas limit applied to anchor transactions.
	GasLimit uint64
	// GasPrice is the gas price in wei. Zero is accepted by networks with
	// free gas.
	GasPrice *big.Int
}

// Validate checks that the config can produce transactions.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	return nil
}

// Standardize fills unset fields with defaults and normalizes the contract
// address.
func (c *Config) Standardize() {
	if c.RPC == "" {
		c.RPC = DefaultRPC
	}
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.GasPrice == nil {
		c.GasPrice = big.NewInt(0)
	}
	c.ContractAddress = strings.ToLower(c.ContractAddress)
}

// DefaultConfig returns a config pointing at the default network and
// contract.
func DefaultConfig() *Config {
	return &Config{
		RPC:             DefaultRPC,
		ChainID:         DefaultChainID,
		ContractAddress: DefaultContractAddress,
	}
}
