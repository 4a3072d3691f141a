package currency

import (
	"net/url"
	"strconv"
	"strings"
)

// CoinDecimals is the number of decimal places in UTXO amounts.
const CoinDecimals = 8

// SatsToCoins formats an amount of satoshis as a coin-denominated
// decimal string with trailing zeros trimmed.
func SatsToCoins(sats uint64) string {
	whole := sats / 1e8
	frac := sats % 1e8

	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}

	fracStr := strconv.FormatUint(frac, 10)
	for len(fracStr) < CoinDecimals {
		fracStr = "0" + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")

	return strconv.FormatUint(whole, 10) + "." + fracStr
}

// EncodeBip21 builds a BIP21 payment URI for the given address, amount
// and label.
func EncodeBip21(prefix, address string, sats uint64, label string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(address)
	b.WriteString("?amount=")
	b.WriteString(SatsToCoins(sats))
	b.WriteString("&label=")
	// QueryEscape encodes spaces as '+'; wallets expect percent encoding.
	b.WriteString(strings.ReplaceAll(url.QueryEscape(label), "+", "%20"))
	return b.String()
}
