// Package chain defines the contracts the swap service consumes from
// per-chain RPC clients. Concrete clients (bitcoind, geth, electrum
// bridges) live outside the orchestrator and satisfy these interfaces.
package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors
var (
	ErrNotConnected = errors.New("chain client not connected")
	ErrTxNotFound   = errors.New("transaction not found")
)

// Account chain constants.
const (
	// PrepayMinerFeeGasLimit is the gas budget used to size the prepay
	// miner fee on account chains.
	PrepayMinerFeeGasLimit = 100_000
)

// Decimal scaling factors for account chains.
var (
	GweiDecimals  = big.NewInt(1_000_000_000)
	EtherDecimals = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// RPCError is a structured rejection from a chain daemon.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return e.Message
}

// LocktimeRejectionPrefix is the daemon message emitted when a refund
// transaction is broadcast before its locktime matured.
const LocktimeRejectionPrefix = "non-mandatory-script-verify-flag (Locktime requirement not satisfied)"

// IsPrematureRefund reports whether err is the daemon rejecting a refund
// broadcast before the HTLC timeout.
func IsPrematureRefund(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == -26 && strings.HasPrefix(rpcErr.Message, LocktimeRejectionPrefix)
}

// NetworkInfo describes a chain daemon's peer view.
type NetworkInfo struct {
	Version     int `json:"version"`
	Connections int `json:"connections"`
}

// BlockchainInfo describes a chain daemon's sync state.
type BlockchainInfo struct {
	Blocks        uint32 `json:"blocks"`
	ScannedBlocks uint32 `json:"scannedBlocks"`
}

// Client is the UTXO chain collaborator contract.
type Client interface {
	GetNetworkInfo(ctx context.Context) (*NetworkInfo, error)
	GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error)

	// EstimateFee returns the fee estimate in sat/vByte for the given
	// confirmation target.
	EstimateFee(ctx context.Context, blocks int) (uint64, error)

	GetRawTransaction(ctx context.Context, txID string) (string, error)
	SendRawTransaction(ctx context.Context, txHex string) (string, error)
}

// AccountProvider is the account chain collaborator contract.
type AccountProvider interface {
	GetBlockNumber(ctx context.Context) (uint64, error)

	// GetGasPrice returns the current gas price in wei.
	GetGasPrice(ctx context.Context) (*big.Int, error)
}

// AccountManager holds the account-chain deployment the service locks
// and claims against. Absent when no account chain is configured.
type AccountManager struct {
	Provider AccountProvider

	ChainID     uint64
	NetworkName string

	SwapContract      common.Address
	ERC20SwapContract common.Address

	// Tokens maps ERC20 symbols to their contract addresses.
	Tokens map[string]common.Address
}

// Contracts is the read-only projection returned by the orchestrator's
// contract query.
type Contracts struct {
	Network struct {
		ChainID uint64 `json:"chainId"`
		Name    string `json:"name,omitempty"`
	} `json:"network"`
	SwapContracts map[string]string `json:"swapContracts"`
	Tokens        map[string]string `json:"tokens"`
}

// Contracts returns the deployment projection.
func (m *AccountManager) Contracts() *Contracts {
	c := &Contracts{
		SwapContracts: map[string]string{
			"EtherSwap": m.SwapContract.Hex(),
			"ERC20Swap": m.ERC20SwapContract.Hex(),
		},
		Tokens: make(map[string]string, len(m.Tokens)),
	}
	c.Network.ChainID = m.ChainID
	c.Network.Name = m.NetworkName
	for symbol, addr := range m.Tokens {
		c.Tokens[symbol] = addr.Hex()
	}
	return c
}
