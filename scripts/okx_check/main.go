package main

import (
	"context"
	"log"
	"os"
	"time"

	"okx-signal-bot/pkg/config"
	exchange "okx-signal-bot/pkg/exchanges/common"
	"okx-signal-bot/pkg/exchanges/okx"
)

// okx_check/main.go
//
// Small tool that verifies the bot's OKX API wiring end to end without
// starting the full service.
//
// Usage (demo trading strongly recommended first):
//
//   go run ./scripts/okx_check
//
// Environment (same as the main program):
//   OKX_API_KEY / OKX_API_SECRET / OKX_PASSPHRASE
//
// Behavior switches:
//   OKX_CHECK_CONFIG        (default "config.yaml")
//   OKX_CHECK_PLACE_ORDERS  (default "false")
//        - false: read-only checks only (server time, tickers, positions)
//        - true : also sets leverage and submits one market order sized
//                 from the config for the first symbol
//
// Note: with OKX_CHECK_PLACE_ORDERS=true and exchange.simulated=false the
// order is real. Keep it false until the read-only checks pass.

func main() {
	log.Println("=== OKX API check starting ===")

	cfg, err := config.Load(getenv("OKX_CHECK_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	placeOrders := getenv("OKX_CHECK_PLACE_ORDERS", "false") == "true"

	log.Printf("Config: symbols=%v simulated=%v placeOrders=%v",
		cfg.Trade.Symbols, cfg.Exchange.Simulated, placeOrders)

	client := okx.NewClient(okx.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Passphrase: cfg.Exchange.Passphrase,
		BaseURL:    cfg.Exchange.BaseURL,
		Simulated:  cfg.Exchange.Simulated,
		Timeout:    cfg.Exchange.Timeout(),
	})

	checkPublic(client, cfg.Trade.Symbols)
	checkAccount(client, cfg.Trade.Symbols)

	if placeOrders {
		checkOrderFlow(client, cfg)
	} else {
		log.Println("[ORDER] Skip leverage/order checks (OKX_CHECK_PLACE_ORDERS=false)")
	}

	log.Println("=== OKX API check finished ===")
}

func checkPublic(c *okx.Client, symbols []string) {
	log.Println("---- [PUBLIC] Checking unsigned endpoints ----")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts, err := c.ServerTime(ctx)
	if err != nil {
		log.Printf("[PUBLIC] ServerTime error: %v", err)
	} else {
		log.Printf("[PUBLIC] ServerTime=%s localDrift=%s", ts.UTC().Format(time.RFC3339), time.Since(ts).Round(time.Millisecond))
	}

	for _, symbol := range symbols {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		last, err := c.FetchTicker(ctx2, symbol)
		cancel2()
		if err != nil {
			log.Printf("[PUBLIC] FetchTicker %s error: %v", symbol, err)
			continue
		}
		log.Printf("[PUBLIC] %s last=%v", symbol, last)
	}
}

func checkAccount(c *okx.Client, symbols []string) {
	log.Println("---- [ACCOUNT] Checking signed endpoints ----")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	positions, err := c.FetchPositions(ctx, symbols)
	if err != nil {
		log.Printf("[ACCOUNT] FetchPositions error: %v", err)
		return
	}
	log.Printf("[ACCOUNT] Open swap positions=%d", len(positions))
	for _, p := range positions {
		log.Printf("[ACCOUNT] %s side=%s qty=%v entry=%v mark=%v lever=%d",
			p.Symbol, p.Side, p.Qty, p.EntryPrice, p.MarkPrice, p.Leverage)
	}
}

func checkOrderFlow(c *okx.Client, cfg *config.Config) {
	if len(cfg.Trade.Symbols) == 0 {
		log.Println("[ORDER] No symbols configured, skipping")
		return
	}
	symbol := cfg.Trade.Symbols[0]
	qty := cfg.Trade.BaseQty(symbol)
	if qty <= 0 {
		log.Printf("[ORDER] No base quantity configured for %s, skipping", symbol)
		return
	}
	log.Println("---- [ORDER] Checking trading endpoints ----")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.SetLeverage(ctx, symbol, cfg.Trade.Leverage, cfg.Trade.MarginMode); err != nil {
		log.Printf("[ORDER] SetLeverage error: %v", err)
	} else {
		log.Printf("[ORDER] SetLeverage OK %s x%d %s", symbol, cfg.Trade.Leverage, cfg.Trade.MarginMode)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	log.Printf("[ORDER] Submitting test MARKET BUY %s qty=%v", symbol, qty)
	ack, err := c.CreateOrder(ctx2, exchange.OrderRequest{
		Symbol:  symbol,
		Type:    exchange.OrderTypeMarket,
		Side:    exchange.SideBuy,
		Qty:     qty,
		TdMode:  cfg.Trade.MarginMode,
		PosSide: "long",
	})
	if err != nil {
		log.Printf("[ORDER] CreateOrder returned error (acceptable for a check, e.g. insufficient margin): %v", err)
		return
	}
	log.Printf("[ORDER] CreateOrder OK id=%s", ack.ID)

	// Market orders fill or cancel on their own; report the final state.
	time.Sleep(time.Second)
	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	order, err := c.FetchOrder(ctx3, ack.ID, symbol)
	if err != nil {
		log.Printf("[ORDER] FetchOrder error: %v", err)
		return
	}
	log.Printf("[ORDER] Order %s status=%s filled=%v avgPx=%v", order.ID, order.Status, order.Filled, order.AvgPrice)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
