package currency

import "testing"

func TestParseOrderSide(t *testing.T) {
	tests := []struct {
		input string
		want  OrderSide
		ok    bool
	}{
		{"buy", OrderSideBuy, true},
		{"BUY", OrderSideBuy, true},
		{"Sell", OrderSideSell, true},
		{"sell", OrderSideSell, true},
		{"hodl", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseOrderSide(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseOrderSide(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseOrderSide(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSplitPairID(t *testing.T) {
	base, quote, err := SplitPairID("LTC/BTC")
	if err != nil {
		t.Fatalf("SplitPairID() error = %v", err)
	}
	if base != "LTC" || quote != "BTC" {
		t.Errorf("SplitPairID() = %s, %s; want LTC, BTC", base, quote)
	}

	for _, invalid := range []string{"BTC", "BTC/", "/BTC", "A/B/C", ""} {
		if _, _, err := SplitPairID(invalid); err == nil {
			t.Errorf("SplitPairID(%q) expected error", invalid)
		}
	}
}

func TestGetRate(t *testing.T) {
	const pairRate = 0.004

	tests := []struct {
		side      OrderSide
		isReverse bool
		want      float64
	}{
		{OrderSideBuy, false, pairRate},
		{OrderSideSell, false, 1 / pairRate},
		{OrderSideBuy, true, 1 / pairRate},
		{OrderSideSell, true, pairRate},
	}

	for _, tt := range tests {
		got := GetRate(pairRate, tt.side, tt.isReverse)
		if got != tt.want {
			t.Errorf("GetRate(%v, %v, %v) = %v, want %v",
				pairRate, tt.side, tt.isReverse, got, tt.want)
		}
	}
}

func TestGetChainCurrency(t *testing.T) {
	tests := []struct {
		side      OrderSide
		isReverse bool
		want      string
	}{
		{OrderSideBuy, false, "BTC"},
		{OrderSideBuy, true, "LTC"},
		{OrderSideSell, false, "LTC"},
		{OrderSideSell, true, "BTC"},
	}

	for _, tt := range tests {
		got := GetChainCurrency("LTC", "BTC", tt.side, tt.isReverse)
		if got != tt.want {
			t.Errorf("GetChainCurrency(LTC, BTC, %v, %v) = %s, want %s",
				tt.side, tt.isReverse, got, tt.want)
		}
	}
}

func TestGetLightningCurrency(t *testing.T) {
	tests := []struct {
		side      OrderSide
		isReverse bool
		want      string
	}{
		{OrderSideBuy, false, "LTC"},
		{OrderSideBuy, true, "BTC"},
		{OrderSideSell, false, "BTC"},
		{OrderSideSell, true, "LTC"},
	}

	for _, tt := range tests {
		got := GetLightningCurrency("LTC", "BTC", tt.side, tt.isReverse)
		if got != tt.want {
			t.Errorf("GetLightningCurrency(LTC, BTC, %v, %v) = %s, want %s",
				tt.side, tt.isReverse, got, tt.want)
		}
	}
}

func TestGetSendingReceivingCurrency(t *testing.T) {
	sending, receiving := GetSendingReceivingCurrency("LTC", "BTC", OrderSideBuy)
	if sending != "LTC" || receiving != "BTC" {
		t.Errorf("buy = %s, %s; want LTC, BTC", sending, receiving)
	}

	sending, receiving = GetSendingReceivingCurrency("LTC", "BTC", OrderSideSell)
	if sending != "BTC" || receiving != "LTC" {
		t.Errorf("sell = %s, %s; want BTC, LTC", sending, receiving)
	}
}

func TestKind(t *testing.T) {
	if KindBitcoinLike.IsAccountBased() {
		t.Error("KindBitcoinLike.IsAccountBased() = true")
	}
	if !KindEther.IsAccountBased() {
		t.Error("KindEther.IsAccountBased() = false")
	}
	if !KindERC20.IsAccountBased() {
		t.Error("KindERC20.IsAccountBased() = false")
	}
}
