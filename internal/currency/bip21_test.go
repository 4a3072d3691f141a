package currency

import "testing"

func TestSatsToCoins(t *testing.T) {
	tests := []struct {
		sats uint64
		want string
	}{
		{100_002, "0.00100002"},
		{100_000_000, "1"},
		{150_000_000, "1.5"},
		{1, "0.00000001"},
		{0, "0"},
		{123_456_789, "1.23456789"},
	}

	for _, tt := range tests {
		if got := SatsToCoins(tt.sats); got != tt.want {
			t.Errorf("SatsToCoins(%d) = %s, want %s", tt.sats, got, tt.want)
		}
	}
}

func TestEncodeBip21(t *testing.T) {
	got := EncodeBip21("bitcoin", "bc1qtest", 100_002, "Send to BTC lightning")
	want := "bitcoin:bc1qtest?amount=0.00100002&label=Send%20to%20BTC%20lightning"
	if got != want {
		t.Errorf("EncodeBip21() = %s, want %s", got, want)
	}
}
