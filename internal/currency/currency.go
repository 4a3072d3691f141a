// Package currency models the currencies the swap service trades and
// the pair/side arithmetic shared by forward and reverse swaps.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/lightning"
	"github.com/lightbridge-exchange/lightbridge/internal/wallet"
)

// Common errors
var (
	ErrInvalidPairID = errors.New("invalid pair id")
)

// Kind is the closed set of currency families the service understands.
// The kind decides which claim and refund credentials a swap needs.
type Kind int

const (
	KindBitcoinLike Kind = iota
	KindEther
	KindERC20
)

func (k Kind) String() string {
	switch k {
	case KindBitcoinLike:
		return "bitcoinLike"
	case KindEther:
		return "ether"
	case KindERC20:
		return "erc20"
	default:
		return "unknown"
	}
}

// IsAccountBased reports whether balances live in accounts instead of UTXOs.
func (k Kind) IsAccountBased() bool {
	return k == KindEther || k == KindERC20
}

// Currency bundles a symbol with its optional collaborator capabilities.
// A capability left nil is a known failure mode surfaced by the
// orchestrator's error catalog, not a programming error.
type Currency struct {
	Symbol string
	Kind   Kind

	// Network parameters for BitcoinLike currencies.
	Network *chaincfg.Params

	// Bip21Prefix is the URI scheme used in payment requests, e.g.
	// "bitcoin" for BTC.
	Bip21Prefix string

	// TokenDecimals for ERC20 currencies.
	TokenDecimals uint8

	Chain     chain.Client
	Lightning lightning.Client
	Provider  chain.AccountProvider
	Wallet    wallet.Wallet
}

// OrderSide of a pair trade.
type OrderSide int

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

func (s OrderSide) String() string {
	if s == OrderSideBuy {
		return "buy"
	}
	return "sell"
}

// ParseOrderSide parses a side case-insensitively.
func ParseOrderSide(side string) (OrderSide, bool) {
	switch strings.ToLower(side) {
	case "buy":
		return OrderSideBuy, true
	case "sell":
		return OrderSideSell, true
	default:
		return 0, false
	}
}

// PairID joins base and quote into the canonical pair identifier.
func PairID(base, quote string) string {
	return base + "/" + quote
}

// SplitPairID splits a pair identifier into base and quote symbols.
func SplitPairID(pairID string) (base, quote string, err error) {
	parts := strings.Split(pairID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidPairID, pairID)
	}
	return parts[0], parts[1], nil
}

// GetRate orients a pair rate for the given side and swap direction.
func GetRate(pairRate float64, side OrderSide, isReverse bool) float64 {
	if isReverse {
		if side == OrderSideBuy {
			return 1 / pairRate
		}
		return pairRate
	}
	if side == OrderSideBuy {
		return pairRate
	}
	return 1 / pairRate
}

// GetChainCurrency returns the symbol locked on-chain for a swap.
func GetChainCurrency(base, quote string, side OrderSide, isReverse bool) string {
	if side == OrderSideBuy {
		if isReverse {
			return base
		}
		return quote
	}
	if isReverse {
		return quote
	}
	return base
}

// GetLightningCurrency returns the symbol settled over Lightning.
func GetLightningCurrency(base, quote string, side OrderSide, isReverse bool) string {
	if side == OrderSideBuy {
		if isReverse {
			return quote
		}
		return base
	}
	if isReverse {
		return base
	}
	return quote
}

// GetSendingReceivingCurrency splits a pair into the symbol the service
// sends and the one it receives for the given side.
func GetSendingReceivingCurrency(base, quote string, side OrderSide) (sending, receiving string) {
	if side == OrderSideBuy {
		return base, quote
	}
	return quote, base
}
