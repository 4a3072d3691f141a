// Package rates maintains the pair table: exchange rates, swap limits,
// fee quotes and the pair hashes clients echo back on swap creation.
package rates

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// FeeType selects which swap transaction a base fee quote is for.
type FeeType int

const (
	// FeeTypeNormalClaim is the claim of a forward swap lockup.
	FeeTypeNormalClaim FeeType = iota

	// FeeTypeReverseLockup is the lockup sent for a reverse swap.
	FeeTypeReverseLockup

	// FeeTypeReverseClaim is the user's claim of a reverse lockup.
	FeeTypeReverseClaim
)

// Transaction virtual sizes on UTXO chains, in vbytes.
const (
	normalClaimVsize   = 170
	reverseLockupVsize = 153
	reverseClaimVsize  = 138
)

// Gas usage of the swap contracts on account chains.
const (
	etherLockupGas = 46_460
	etherClaimGas  = 24_924

	erc20LockupGas = 86_980
	erc20ClaimGas  = 24_522
)

// MinerFees are the base fee quotes for one chain, in the chain's
// smallest unit (satoshis, or gwei on account chains).
type MinerFees struct {
	Normal        uint64 `json:"normal"`
	ReverseLockup uint64 `json:"reverseLockup"`
	ReverseClaim  uint64 `json:"reverseClaim"`
}

// FeeProvider quotes percentage and miner fees for swaps.
type FeeProvider struct {
	log *logging.Logger

	getCurrency func(symbol string) (*currency.Currency, error)

	mu             sync.RWMutex
	percentageFees map[string]float64
	minerFees      map[string]MinerFees
}

// NewFeeProvider creates a fee provider resolving currencies through
// the given lookup.
func NewFeeProvider(getCurrency func(symbol string) (*currency.Currency, error)) *FeeProvider {
	return &FeeProvider{
		log:            logging.GetDefault().Component("fees"),
		getCurrency:    getCurrency,
		percentageFees: make(map[string]float64),
		minerFees:      make(map[string]MinerFees),
	}
}

// InitPercentageFee registers the configured percentage fee of a pair.
func (f *FeeProvider) InitPercentageFee(pairID string, feePercent float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percentageFees[pairID] = feePercent / 100
}

// GetPercentageFee returns the fee fraction of a pair, zero when the
// pair has no fee configured.
func (f *FeeProvider) GetPercentageFee(pairID string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.percentageFees[pairID]
}

// GetFees quotes the base and percentage fee of a swap. The percentage
// fee is charged on the invoice amount converted at the pair rate and
// always rounded up.
func (f *FeeProvider) GetFees(
	pairID string,
	rate float64,
	chainSymbol string,
	amount uint64,
	feeType FeeType,
) (baseFee uint64, percentageFee uint64, err error) {
	baseFee, err = f.GetBaseFee(chainSymbol, feeType)
	if err != nil {
		return 0, 0, err
	}

	percent := f.GetPercentageFee(pairID)
	percentageFee = uint64(math.Ceil(percent * float64(amount) * rate))

	return baseFee, percentageFee, nil
}

// GetBaseFee returns the miner fee quote for a transaction type on a
// chain.
func (f *FeeProvider) GetBaseFee(symbol string, feeType FeeType) (uint64, error) {
	f.mu.RLock()
	fees, ok := f.minerFees[symbol]
	f.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("no miner fees for %s", symbol)
	}

	switch feeType {
	case FeeTypeNormalClaim:
		return fees.Normal, nil
	case FeeTypeReverseLockup:
		return fees.ReverseLockup, nil
	case FeeTypeReverseClaim:
		return fees.ReverseClaim, nil
	default:
		return 0, fmt.Errorf("unknown fee type %d", feeType)
	}
}

// MinerFees returns the current quotes for a chain.
func (f *FeeProvider) MinerFees(symbol string) (MinerFees, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fees, ok := f.minerFees[symbol]
	return fees, ok
}

// SetMinerFees overrides the quotes for a chain.
func (f *FeeProvider) SetMinerFees(symbol string, fees MinerFees) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minerFees[symbol] = fees
}

// UpdateMinerFees refreshes the quotes for a chain from its fee
// estimator.
func (f *FeeProvider) UpdateMinerFees(ctx context.Context, symbol string) error {
	cur, err := f.getCurrency(symbol)
	if err != nil {
		return err
	}

	var fees MinerFees

	switch {
	case cur.Kind.IsAccountBased():
		if cur.Provider == nil {
			// Keep a seeded quote when no estimator is wired up.
			if _, ok := f.MinerFees(symbol); ok {
				return nil
			}
			return fmt.Errorf("no chain provider for %s", symbol)
		}

		gasPrice, err := cur.Provider.GetGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("failed to get gas price of %s: %w", symbol, err)
		}

		// Quote in gwei. Integer division truncates sub-gwei dust.
		gwei := gasPrice.Uint64() / chain.GweiDecimals.Uint64()
		if gwei == 0 {
			gwei = 1
		}

		lockupGas, claimGas := uint64(etherLockupGas), uint64(etherClaimGas)
		if cur.Kind == currency.KindERC20 {
			lockupGas, claimGas = erc20LockupGas, erc20ClaimGas
		}

		fees = MinerFees{
			Normal:        claimGas * gwei,
			ReverseLockup: lockupGas * gwei,
			ReverseClaim:  claimGas * gwei,
		}

	default:
		if cur.Chain == nil {
			if _, ok := f.MinerFees(symbol); ok {
				return nil
			}
			return fmt.Errorf("no chain client for %s", symbol)
		}

		satPerVbyte, err := cur.Chain.EstimateFee(ctx, 2)
		if err != nil {
			return fmt.Errorf("failed to estimate fee of %s: %w", symbol, err)
		}

		fees = MinerFees{
			Normal:        satPerVbyte * normalClaimVsize,
			ReverseLockup: satPerVbyte * reverseLockupVsize,
			ReverseClaim:  satPerVbyte * reverseClaimVsize,
		}
	}

	f.log.Debug("Updated miner fees",
		"symbol", symbol,
		"normal", fees.Normal,
		"reverseLockup", fees.ReverseLockup,
		"reverseClaim", fees.ReverseClaim,
	)

	f.SetMinerFees(symbol, fees)
	return nil
}

// feeSymbols lists the distinct chains of a pair.
func feeSymbols(base, quote string) []string {
	if strings.EqualFold(base, quote) {
		return []string{base}
	}
	return []string{base, quote}
}
