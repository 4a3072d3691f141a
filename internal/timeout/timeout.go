// Package timeout converts configured timeout durations into per-chain
// block deltas and estimates expiry dates for pending refunds.
package timeout

import (
	"fmt"
	"math"
	"sync"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// Average block times in minutes. Account chains confirm fast enough
// that a flat estimate suffices.
const (
	blockTimeBitcoin  = 10
	blockTimeLitecoin = 2.5
	blockTimeAccount  = 0.2
)

// PairDeltas holds the timeout block deltas of a pair, one per chain.
type PairDeltas struct {
	Base  uint32 `json:"base"`
	Quote uint32 `json:"quote"`
}

// DeltaProvider answers timeout queries for configured pairs.
type DeltaProvider struct {
	log   *logging.Logger
	clock clock.Clock

	mu         sync.RWMutex
	deltas     map[string]PairDeltas
	pairs      map[string]config.PairConfig
	blockTimes map[string]float64
}

// NewDeltaProvider creates a provider using the given clock.
func NewDeltaProvider(c clock.Clock) *DeltaProvider {
	return &DeltaProvider{
		log:    logging.GetDefault().Component("timeouts"),
		clock:  c,
		deltas: make(map[string]PairDeltas),
		pairs:  make(map[string]config.PairConfig),
		blockTimes: map[string]float64{
			"BTC": blockTimeBitcoin,
			"LTC": blockTimeLitecoin,
			"ETH": blockTimeAccount,
		},
	}
}

// RegisterCurrency records the block time of a currency. Account based
// currencies all share the flat account estimate.
func (p *DeltaProvider) RegisterCurrency(symbol string, kind currency.Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.blockTimes[symbol]; ok {
		return
	}
	if kind.IsAccountBased() {
		p.blockTimes[symbol] = blockTimeAccount
	}
}

// Init derives the block deltas of every configured pair from its
// timeout in minutes.
func (p *DeltaProvider) Init(pairs []config.PairConfig) error {
	for _, pair := range pairs {
		if err := p.SetTimeout(pair, pair.TimeoutDelta); err != nil {
			return err
		}
	}
	return nil
}

// SetTimeout updates the timeout of a pair to the given minutes.
func (p *DeltaProvider) SetTimeout(pair config.PairConfig, minutes uint32) error {
	baseBlocks, err := p.blocksFor(pair.Base, minutes)
	if err != nil {
		return err
	}
	quoteBlocks, err := p.blocksFor(pair.Quote, minutes)
	if err != nil {
		return err
	}

	pairID := pair.PairID()

	p.mu.Lock()
	defer p.mu.Unlock()

	pair.TimeoutDelta = minutes
	p.pairs[pairID] = pair
	p.deltas[pairID] = PairDeltas{Base: baseBlocks, Quote: quoteBlocks}

	p.log.Debug("Set timeout block delta",
		"pair", pairID,
		"minutes", minutes,
		"base", baseBlocks,
		"quote", quoteBlocks,
	)

	return nil
}

// UpdateTimeout updates the timeout of a pair by id.
func (p *DeltaProvider) UpdateTimeout(pairID string, minutes uint32) error {
	p.mu.RLock()
	pair, ok := p.pairs[pairID]
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("could not find pair: %s", pairID)
	}
	return p.SetTimeout(pair, minutes)
}

// GetTimeout returns the timeout block delta of the chain a swap locks
// coins on.
func (p *DeltaProvider) GetTimeout(pairID string, side currency.OrderSide, isReverse bool) (uint32, error) {
	base, quote, err := currency.SplitPairID(pairID)
	if err != nil {
		return 0, err
	}

	p.mu.RLock()
	deltas, ok := p.deltas[pairID]
	p.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("could not find pair: %s", pairID)
	}

	if currency.GetChainCurrency(base, quote, side, isReverse) == base {
		return deltas.Base, nil
	}
	return deltas.Quote, nil
}

// GetTimeouts returns a copy of all pair deltas.
func (p *DeltaProvider) GetTimeouts() map[string]PairDeltas {
	p.mu.RLock()
	defer p.mu.RUnlock()

	deltas := make(map[string]PairDeltas, len(p.deltas))
	for id, d := range p.deltas {
		deltas[id] = d
	}
	return deltas
}

// ConvertBlocks converts a block count between two chains, rounding up
// so a converted timeout never undercuts the original duration.
func (p *DeltaProvider) ConvertBlocks(from, to string, blocks uint32) (uint32, error) {
	fromTime, err := p.blockTime(from)
	if err != nil {
		return 0, err
	}
	toTime, err := p.blockTime(to)
	if err != nil {
		return 0, err
	}

	return uint32(math.Ceil(float64(blocks) * fromTime / toTime)), nil
}

// TimeoutDate estimates the unix time at which the given number of
// missing blocks will have been mined.
func (p *DeltaProvider) TimeoutDate(symbol string, blocksMissing uint32) (int64, error) {
	blockTime, err := p.blockTime(symbol)
	if err != nil {
		return 0, err
	}

	return p.clock.Now().Unix() + int64(float64(blocksMissing)*blockTime*60), nil
}

func (p *DeltaProvider) blocksFor(symbol string, minutes uint32) (uint32, error) {
	blockTime, err := p.blockTime(symbol)
	if err != nil {
		return 0, err
	}
	return uint32(math.Ceil(float64(minutes) / blockTime)), nil
}

func (p *DeltaProvider) blockTime(symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	blockTime, ok := p.blockTimes[symbol]
	if !ok {
		return 0, fmt.Errorf("no block time for %s", symbol)
	}
	return blockTime, nil
}
