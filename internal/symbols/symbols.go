// Package symbols maps externally supplied instrument identifiers
// (TradingView-style tickers) to the canonical symbols the engine trades.
package symbols

import "strings"

// Normalize converts a raw webhook ticker such as "OKX:BTCUSDT.P",
// "BTCUSDT.P" or "BTCUSDT" into a canonical symbol like "BTC/USDT:USDT".
// Matching is exact-first against the allow-list, then by base-asset
// prefix. If nothing matches, the cleaned raw string is returned as-is;
// callers must check it with Allowed before use.
func Normalize(raw string, allowed []string) string {
	if Allowed(raw, allowed) {
		return raw
	}

	s := raw
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".P", "")

	if strings.HasSuffix(s, "USDT") {
		guess := s[:len(s)-len("USDT")] + "/USDT:USDT"
		for _, sym := range allowed {
			if sym == guess {
				return guess
			}
		}
	}

	for _, sym := range allowed {
		base, _, ok := strings.Cut(sym, "/")
		if ok && base != "" && strings.HasPrefix(s, strings.ToUpper(base)) {
			return sym
		}
	}

	return s
}

// Allowed reports whether symbol is in the configured allow-list.
func Allowed(symbol string, allowed []string) bool {
	for _, sym := range allowed {
		if sym == symbol {
			return true
		}
	}
	return false
}
