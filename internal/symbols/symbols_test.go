package symbols

import "testing"

func TestNormalize(t *testing.T) {
	allowed := []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"already canonical", "BTC/USDT:USDT", "BTC/USDT:USDT"},
		{"tv prefixed perp", "OKX:BTCUSDT.P", "BTC/USDT:USDT"},
		{"perp suffix only", "ETHUSDT.P", "ETH/USDT:USDT"},
		{"plain pair", "BTCUSDT", "BTC/USDT:USDT"},
		{"lowercase", "okx:ethusdt.p", "ETH/USDT:USDT"},
		{"already canonical via prefix scan", "BTC", "BTC/USDT:USDT"},
		{"unknown passes through uppercased", "binance:dogeusdt.p", "DOGEUSDT"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw, allowed)
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeUnknownNotAllowed(t *testing.T) {
	allowed := []string{"BTC/USDT:USDT"}
	got := Normalize("OKX:SOLUSDT.P", allowed)
	if Allowed(got, allowed) {
		t.Fatalf("unknown symbol %q should not be allow-listed", got)
	}
}

func TestAllowed(t *testing.T) {
	allowed := []string{"BTC/USDT:USDT"}
	if !Allowed("BTC/USDT:USDT", allowed) {
		t.Fatal("expected canonical symbol to be allowed")
	}
	if Allowed("SOLUSDT", allowed) {
		t.Fatal("raw symbol must not be allowed")
	}
}

