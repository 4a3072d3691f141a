// Package wallet provides the wallet contract consumed by the swap
// service and an HD implementation for UTXO chains. UTXO selection and
// broadcast are collaborator concerns behind the Funding interface.
package wallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Common errors
var (
	ErrNoFundingBackend = errors.New("wallet has no funding backend")
	ErrWalletLocked     = errors.New("wallet is locked")
)

// Balance of a wallet in the chain's smallest unit.
type Balance struct {
	Total       uint64 `json:"total"`
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
}

// Keys is a derived keypair.
type Keys struct {
	PublicKey  *btcec.PublicKey
	PrivateKey *btcec.PrivateKey
	Index      uint32
}

// SendResult identifies a broadcast transaction output.
type SendResult struct {
	TransactionID string `json:"transactionId"`
	Vout          uint32 `json:"vout"`
}

// Wallet is the collaborator contract the orchestrator depends on.
type Wallet interface {
	GetBalance(ctx context.Context) (*Balance, error)
	NewAddress(ctx context.Context) (string, error)

	// KeysByIndex derives the keypair at the given HD index. Indexes
	// are reserved through the persistent counter so a restart never
	// reissues one.
	KeysByIndex(index uint32) (*Keys, error)

	SendToAddress(ctx context.Context, address string, amount uint64, satPerVbyte uint64) (*SendResult, error)
	SweepWallet(ctx context.Context, address string, satPerVbyte uint64) (*SendResult, error)
}

// Funding handles coin selection, signing and broadcast for an HD
// wallet. Implemented outside the orchestrator.
type Funding interface {
	Balance(ctx context.Context) (*Balance, error)
	Send(ctx context.Context, address string, amount uint64, satPerVbyte uint64) (*SendResult, error)
	Sweep(ctx context.Context, address string, satPerVbyte uint64) (*SendResult, error)
}

// KeyIndexSource issues monotonic HD indexes. Implemented by storage so
// issuance survives restarts.
type KeyIndexSource interface {
	NextKeyIndex(symbol string) (uint32, error)
}
