package timeout

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
)

func newTestProvider(t *testing.T) *DeltaProvider {
	t.Helper()

	p := NewDeltaProvider(clock.NewTestClock(time.Unix(1_000_000, 0)))
	err := p.Init([]config.PairConfig{
		{Base: "BTC", Quote: "BTC", TimeoutDelta: 1440},
		{Base: "LTC", Quote: "BTC", TimeoutDelta: 400},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	return p
}

func TestInitDerivesBlockDeltas(t *testing.T) {
	p := newTestProvider(t)

	deltas := p.GetTimeouts()

	// 1440 minutes is 144 Bitcoin blocks.
	if d := deltas["BTC/BTC"]; d.Base != 144 || d.Quote != 144 {
		t.Errorf("BTC/BTC deltas = %+v, want 144/144", d)
	}

	// 400 minutes is 160 Litecoin blocks and 40 Bitcoin blocks.
	if d := deltas["LTC/BTC"]; d.Base != 160 || d.Quote != 40 {
		t.Errorf("LTC/BTC deltas = %+v, want 160/40", d)
	}
}

func TestGetTimeoutSelectsChainCurrency(t *testing.T) {
	p := newTestProvider(t)

	// Forward buy on LTC/BTC locks on the quote chain.
	blocks, err := p.GetTimeout("LTC/BTC", currency.OrderSideBuy, false)
	if err != nil {
		t.Fatalf("GetTimeout() error = %v", err)
	}
	if blocks != 40 {
		t.Errorf("forward buy timeout = %d, want 40", blocks)
	}

	// Reverse buy locks on the base chain.
	blocks, err = p.GetTimeout("LTC/BTC", currency.OrderSideBuy, true)
	if err != nil {
		t.Fatalf("GetTimeout() error = %v", err)
	}
	if blocks != 160 {
		t.Errorf("reverse buy timeout = %d, want 160", blocks)
	}
}

func TestGetTimeoutUnknownPair(t *testing.T) {
	p := newTestProvider(t)

	if _, err := p.GetTimeout("DOGE/BTC", currency.OrderSideBuy, false); err == nil {
		t.Error("GetTimeout() expected error for unknown pair")
	}
}

func TestConvertBlocks(t *testing.T) {
	p := newTestProvider(t)

	// 10 Bitcoin blocks are 40 Litecoin blocks.
	blocks, err := p.ConvertBlocks("BTC", "LTC", 10)
	if err != nil {
		t.Fatalf("ConvertBlocks() error = %v", err)
	}
	if blocks != 40 {
		t.Errorf("ConvertBlocks(BTC, LTC, 10) = %d, want 40", blocks)
	}

	// Conversion rounds up.
	blocks, err = p.ConvertBlocks("LTC", "BTC", 10)
	if err != nil {
		t.Fatalf("ConvertBlocks() error = %v", err)
	}
	if blocks != 3 {
		t.Errorf("ConvertBlocks(LTC, BTC, 10) = %d, want 3", blocks)
	}
}

func TestTimeoutDate(t *testing.T) {
	p := newTestProvider(t)

	eta, err := p.TimeoutDate("BTC", 6)
	if err != nil {
		t.Fatalf("TimeoutDate() error = %v", err)
	}
	if want := int64(1_000_000 + 6*10*60); eta != want {
		t.Errorf("TimeoutDate(BTC, 6) = %d, want %d", eta, want)
	}

	eta, err = p.TimeoutDate("LTC", 4)
	if err != nil {
		t.Fatalf("TimeoutDate() error = %v", err)
	}
	if want := int64(1_000_000 + 4*150); eta != want {
		t.Errorf("TimeoutDate(LTC, 4) = %d, want %d", eta, want)
	}
}

func TestUpdateTimeout(t *testing.T) {
	p := newTestProvider(t)

	if err := p.UpdateTimeout("BTC/BTC", 720); err != nil {
		t.Fatalf("UpdateTimeout() error = %v", err)
	}

	deltas := p.GetTimeouts()
	if d := deltas["BTC/BTC"]; d.Base != 72 {
		t.Errorf("updated delta = %d, want 72", d.Base)
	}

	if err := p.UpdateTimeout("DOGE/BTC", 720); err == nil {
		t.Error("UpdateTimeout() expected error for unknown pair")
	}
}

func TestRegisterCurrencyAccountBased(t *testing.T) {
	p := newTestProvider(t)
	p.RegisterCurrency("USDT", currency.KindERC20)

	// Account chains use the flat 0.2 minute estimate.
	blocks, err := p.ConvertBlocks("BTC", "USDT", 1)
	if err != nil {
		t.Fatalf("ConvertBlocks() error = %v", err)
	}
	if blocks != 50 {
		t.Errorf("ConvertBlocks(BTC, USDT, 1) = %d, want 50", blocks)
	}
}
