package okx

import "strings"

// instID converts a canonical symbol ("BTC/USDT:USDT") to the OKX
// perpetual-swap instrument ID ("BTC-USDT-SWAP"). Symbols without a
// base/quote separator pass through unchanged.
func instID(symbol string) string {
	base, rest, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol
	}
	quote, _, _ := strings.Cut(rest, ":")
	return base + "-" + quote + "-SWAP"
}

// fromInstID converts an OKX swap instrument ID back to canonical form.
// Returns "" for IDs that are not perpetual swaps (spot pairs, dated
// futures, options).
func fromInstID(id string) string {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[2] != "SWAP" {
		return ""
	}
	return parts[0] + "/" + parts[1] + ":" + parts[1]
}
