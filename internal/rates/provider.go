package rates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// ErrPairNotFound is returned for pairs that are not configured.
var ErrPairNotFound = errors.New("pair not found")

// DataProvider resolves the exchange rate of a pair. Pairs with a
// pinned rate in the config never hit the data provider.
type DataProvider interface {
	GetRate(ctx context.Context, base, quote string) (float64, error)
}

// StaticDataProvider serves rates from a fixed table. Used for
// regtest setups and tests.
type StaticDataProvider struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewStaticDataProvider creates an empty static provider.
func NewStaticDataProvider() *StaticDataProvider {
	return &StaticDataProvider{rates: make(map[string]float64)}
}

// SetRate pins the rate of a pair.
func (p *StaticDataProvider) SetRate(base, quote string, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[base+"/"+quote] = rate
}

// GetRate implements DataProvider.
func (p *StaticDataProvider) GetRate(_ context.Context, base, quote string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[base+"/"+quote]
	if !ok {
		return 0, fmt.Errorf("no rate for %s/%s", base, quote)
	}
	return rate, nil
}

// Limits are the swap amount bounds of a pair, in base units.
type Limits struct {
	Minimal uint64 `json:"minimal"`
	Maximal uint64 `json:"maximal"`
}

// PairFees is the fee portion of a pair snapshot.
type PairFees struct {
	Percentage float64              `json:"percentage"`
	MinerFees  map[string]MinerFees `json:"minerFees"`
}

// Pair is an immutable snapshot of one pair's rate, limits and fees.
// Hash is the concurrency token clients send back on swap creation; a
// mismatch means the snapshot changed since the client fetched it.
type Pair struct {
	Rate   float64  `json:"rate"`
	Hash   string   `json:"hash"`
	Limits Limits   `json:"limits"`
	Fees   PairFees `json:"fees"`
}

// hashPair derives the concurrency token of a snapshot from everything
// a client quotes against.
func hashPair(p Pair) (string, error) {
	data, err := json.Marshal(struct {
		Rate   float64  `json:"rate"`
		Limits Limits   `json:"limits"`
		Fees   PairFees `json:"fees"`
	}{p.Rate, p.Limits, p.Fees})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// Provider keeps the pair table fresh and answers snapshot reads.
type Provider struct {
	log *logging.Logger

	fees *FeeProvider
	data DataProvider
	tick ticker.Ticker

	configPairs []config.PairConfig
	zeroConf    map[string]uint64

	mu    sync.RWMutex
	pairs map[string]Pair

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewProvider creates a rate provider. The ticker drives the refresh
// loop once Start is called.
func NewProvider(fees *FeeProvider, data DataProvider, tick ticker.Ticker) *Provider {
	return &Provider{
		log:      logging.GetDefault().Component("rates"),
		fees:     fees,
		data:     data,
		tick:     tick,
		zeroConf: make(map[string]uint64),
		pairs:    make(map[string]Pair),
		quit:     make(chan struct{}),
	}
}

// Init registers the configured pairs and currencies and performs the
// first refresh.
func (p *Provider) Init(ctx context.Context, pairs []config.PairConfig, currencies []config.CurrencyConfig) error {
	p.configPairs = pairs

	for _, pair := range pairs {
		p.fees.InitPercentageFee(pair.PairID(), pair.Fee)
	}
	for _, cur := range currencies {
		p.zeroConf[cur.Symbol] = cur.MaxZeroConfAmount
	}

	if err := p.UpdateRates(ctx); err != nil {
		return fmt.Errorf("failed to initialize pair table: %w", err)
	}

	return nil
}

// Start launches the refresh loop.
func (p *Provider) Start() {
	p.tick.Resume()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-p.tick.Ticks():
				if err := p.UpdateRates(context.Background()); err != nil {
					p.log.Warn("Failed to update pair table", "error", err)
				}
			case <-p.quit:
				return
			}
		}
	}()
}

// Stop terminates the refresh loop.
func (p *Provider) Stop() {
	close(p.quit)
	p.tick.Stop()
	p.wg.Wait()
}

// UpdateRates rebuilds the pair table: miner fees of every involved
// chain, rates of unpinned pairs, fresh hashes. Snapshots are replaced
// atomically.
func (p *Provider) UpdateRates(ctx context.Context) error {
	updated := make(map[string]struct{})
	for _, pair := range p.configPairs {
		for _, symbol := range feeSymbols(pair.Base, pair.Quote) {
			if _, done := updated[symbol]; done {
				continue
			}
			updated[symbol] = struct{}{}

			if err := p.fees.UpdateMinerFees(ctx, symbol); err != nil {
				return err
			}
		}
	}

	fresh := make(map[string]Pair, len(p.configPairs))
	for _, cfg := range p.configPairs {
		pairID := cfg.PairID()

		rate := cfg.Rate
		if rate == 0 {
			var err error
			rate, err = p.data.GetRate(ctx, cfg.Base, cfg.Quote)
			if err != nil {
				return fmt.Errorf("failed to get rate of %s: %w", pairID, err)
			}
		}

		minerFees := make(map[string]MinerFees)
		for _, symbol := range feeSymbols(cfg.Base, cfg.Quote) {
			fees, ok := p.fees.MinerFees(symbol)
			if !ok {
				return fmt.Errorf("no miner fees for %s", symbol)
			}
			minerFees[symbol] = fees
		}

		pair := Pair{
			Rate:   rate,
			Limits: Limits{Minimal: cfg.MinSwapAmount, Maximal: cfg.MaxSwapAmount},
			Fees: PairFees{
				Percentage: cfg.Fee,
				MinerFees:  minerFees,
			},
		}

		hash, err := hashPair(pair)
		if err != nil {
			return err
		}
		pair.Hash = hash

		fresh[pairID] = pair
	}

	p.mu.Lock()
	p.pairs = fresh
	p.mu.Unlock()

	return nil
}

// GetPair returns the current snapshot of a pair.
func (p *Provider) GetPair(pairID string) (Pair, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pair, ok := p.pairs[pairID]
	if !ok {
		return Pair{}, ErrPairNotFound
	}
	return pair, nil
}

// Pairs returns a copy of the whole pair table.
func (p *Provider) Pairs() map[string]Pair {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pairs := make(map[string]Pair, len(p.pairs))
	for id, pair := range p.pairs {
		pairs[id] = pair
	}
	return pairs
}

// AcceptZeroConf reports whether an unconfirmed lockup of the given
// amount is accepted as final on a chain.
func (p *Provider) AcceptZeroConf(symbol string, amount uint64) bool {
	limit, ok := p.zeroConf[symbol]
	if !ok || limit == 0 {
		return false
	}
	return amount <= limit
}
