package rates

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
)

type fakeChainClient struct {
	satPerVbyte uint64
}

func (f *fakeChainClient) GetNetworkInfo(context.Context) (*chain.NetworkInfo, error) {
	return &chain.NetworkInfo{}, nil
}

func (f *fakeChainClient) GetBlockchainInfo(context.Context) (*chain.BlockchainInfo, error) {
	return &chain.BlockchainInfo{}, nil
}

func (f *fakeChainClient) EstimateFee(context.Context, int) (uint64, error) {
	return f.satPerVbyte, nil
}

func (f *fakeChainClient) GetRawTransaction(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeChainClient) SendRawTransaction(context.Context, string) (string, error) {
	return "", nil
}

func testCurrencies() map[string]*currency.Currency {
	return map[string]*currency.Currency{
		"BTC": {
			Symbol: "BTC",
			Kind:   currency.KindBitcoinLike,
			Chain:  &fakeChainClient{satPerVbyte: 2},
		},
		"LTC": {
			Symbol: "LTC",
			Kind:   currency.KindBitcoinLike,
			Chain:  &fakeChainClient{satPerVbyte: 1},
		},
	}
}

func lookup(currencies map[string]*currency.Currency) func(string) (*currency.Currency, error) {
	return func(symbol string) (*currency.Currency, error) {
		cur, ok := currencies[symbol]
		if !ok {
			return nil, ErrPairNotFound
		}
		return cur, nil
	}
}

func TestFeeProviderPercentageFee(t *testing.T) {
	fees := NewFeeProvider(lookup(testCurrencies()))
	fees.InitPercentageFee("BTC/BTC", 2)

	if got := fees.GetPercentageFee("BTC/BTC"); got != 0.02 {
		t.Errorf("GetPercentageFee() = %v, want 0.02", got)
	}
	if got := fees.GetPercentageFee("LTC/BTC"); got != 0 {
		t.Errorf("GetPercentageFee() unconfigured = %v, want 0", got)
	}
}

func TestFeeProviderGetFees(t *testing.T) {
	fees := NewFeeProvider(lookup(testCurrencies()))
	fees.InitPercentageFee("BTC/BTC", 2)
	fees.SetMinerFees("BTC", MinerFees{Normal: 340, ReverseLockup: 306, ReverseClaim: 276})

	baseFee, percentageFee, err := fees.GetFees("BTC/BTC", 1, "BTC", 100_000, FeeTypeNormalClaim)
	if err != nil {
		t.Fatalf("GetFees() error = %v", err)
	}
	if baseFee != 340 {
		t.Errorf("baseFee = %d, want 340", baseFee)
	}
	// 2% of 100000 at rate 1, rounded up.
	if percentageFee != 2000 {
		t.Errorf("percentageFee = %d, want 2000", percentageFee)
	}
}

func TestFeeProviderBaseFeeTypes(t *testing.T) {
	fees := NewFeeProvider(lookup(testCurrencies()))
	fees.SetMinerFees("BTC", MinerFees{Normal: 1, ReverseLockup: 2, ReverseClaim: 3})

	tests := []struct {
		feeType FeeType
		want    uint64
	}{
		{FeeTypeNormalClaim, 1},
		{FeeTypeReverseLockup, 2},
		{FeeTypeReverseClaim, 3},
	}
	for _, tt := range tests {
		got, err := fees.GetBaseFee("BTC", tt.feeType)
		if err != nil {
			t.Fatalf("GetBaseFee(%d) error = %v", tt.feeType, err)
		}
		if got != tt.want {
			t.Errorf("GetBaseFee(%d) = %d, want %d", tt.feeType, got, tt.want)
		}
	}

	if _, err := fees.GetBaseFee("DOGE", FeeTypeNormalClaim); err == nil {
		t.Error("GetBaseFee() expected error for unknown symbol")
	}
}

func TestFeeProviderUpdateMinerFees(t *testing.T) {
	fees := NewFeeProvider(lookup(testCurrencies()))

	if err := fees.UpdateMinerFees(context.Background(), "BTC"); err != nil {
		t.Fatalf("UpdateMinerFees() error = %v", err)
	}

	quotes, ok := fees.MinerFees("BTC")
	if !ok {
		t.Fatal("MinerFees() missing after update")
	}
	// 2 sat/vByte times the claim/lockup virtual sizes.
	if quotes.Normal != 340 || quotes.ReverseLockup != 306 || quotes.ReverseClaim != 276 {
		t.Errorf("quotes = %+v, want {340 306 276}", quotes)
	}
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	fees := NewFeeProvider(lookup(testCurrencies()))
	provider := NewProvider(fees, NewStaticDataProvider(), ticker.NewForce(time.Hour))

	err := provider.Init(
		context.Background(),
		[]config.PairConfig{
			{Base: "BTC", Quote: "BTC", Rate: 1, Fee: 0.5, MinSwapAmount: 10_000, MaxSwapAmount: 4_294_967},
		},
		[]config.CurrencyConfig{
			{Symbol: "BTC", MaxZeroConfAmount: 200_000},
			{Symbol: "LTC", MaxZeroConfAmount: 0},
		},
	)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	return provider
}

func TestProviderGetPair(t *testing.T) {
	provider := newTestProvider(t)

	pair, err := provider.GetPair("BTC/BTC")
	if err != nil {
		t.Fatalf("GetPair() error = %v", err)
	}

	if pair.Rate != 1 {
		t.Errorf("Rate = %v, want 1", pair.Rate)
	}
	if pair.Limits.Minimal != 10_000 || pair.Limits.Maximal != 4_294_967 {
		t.Errorf("Limits = %+v", pair.Limits)
	}
	if pair.Fees.Percentage != 0.5 {
		t.Errorf("Fees.Percentage = %v, want 0.5", pair.Fees.Percentage)
	}
	if pair.Hash == "" {
		t.Error("Hash is empty")
	}

	if _, err := provider.GetPair("DOGE/BTC"); err != ErrPairNotFound {
		t.Errorf("GetPair(DOGE/BTC) error = %v, want ErrPairNotFound", err)
	}
}

func TestProviderHashStableAcrossRefreshes(t *testing.T) {
	provider := newTestProvider(t)

	before, err := provider.GetPair("BTC/BTC")
	if err != nil {
		t.Fatalf("GetPair() error = %v", err)
	}

	if err := provider.UpdateRates(context.Background()); err != nil {
		t.Fatalf("UpdateRates() error = %v", err)
	}

	after, err := provider.GetPair("BTC/BTC")
	if err != nil {
		t.Fatalf("GetPair() error = %v", err)
	}

	// Nothing changed, so the concurrency token must not change either.
	if before.Hash != after.Hash {
		t.Errorf("hash changed without snapshot change: %s != %s", before.Hash, after.Hash)
	}
}

func TestProviderHashTracksSnapshot(t *testing.T) {
	currencies := testCurrencies()
	provider := NewProvider(
		NewFeeProvider(lookup(currencies)),
		NewStaticDataProvider(),
		ticker.NewForce(time.Hour),
	)

	err := provider.Init(
		context.Background(),
		[]config.PairConfig{
			{Base: "BTC", Quote: "BTC", Rate: 1, Fee: 0.5, MinSwapAmount: 10_000, MaxSwapAmount: 4_294_967},
		},
		[]config.CurrencyConfig{
			{Symbol: "BTC", MaxZeroConfAmount: 200_000},
		},
	)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	before, err := provider.GetPair("BTC/BTC")
	if err != nil {
		t.Fatalf("GetPair() error = %v", err)
	}

	// A changed fee estimate must rotate the hash on the next refresh.
	// The refresh re-estimates miner fees, so the change has to come
	// from the chain client itself.
	currencies["BTC"].Chain.(*fakeChainClient).satPerVbyte = 5
	if err := provider.UpdateRates(context.Background()); err != nil {
		t.Fatalf("UpdateRates() error = %v", err)
	}

	after, err := provider.GetPair("BTC/BTC")
	if err != nil {
		t.Fatalf("GetPair() error = %v", err)
	}
	if before.Hash == after.Hash {
		t.Error("hash did not change with the fee snapshot")
	}
}

func TestProviderAcceptZeroConf(t *testing.T) {
	provider := newTestProvider(t)

	tests := []struct {
		symbol string
		amount uint64
		want   bool
	}{
		{"BTC", 100_002, true},
		{"BTC", 200_000, true},
		{"BTC", 200_001, false},
		{"LTC", 1, false},  // threshold zero disables zero-conf
		{"DOGE", 1, false}, // unknown symbol
	}

	for _, tt := range tests {
		if got := provider.AcceptZeroConf(tt.symbol, tt.amount); got != tt.want {
			t.Errorf("AcceptZeroConf(%s, %d) = %v, want %v", tt.symbol, tt.amount, got, tt.want)
		}
	}
}
