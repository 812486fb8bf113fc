// Package trailing ratchets stop prices behind open positions and closes
// them through the order executor when the stop is crossed.
package trailing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/monitor"
	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/risk"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
)

// TrailUpdate is published after every sweep iteration that moved or
// confirmed a stop.
type TrailUpdate struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Stop      float64 `json:"stop"`
	TrailPct  float64 `json:"trail_pct"`
	ProfitPct float64 `json:"profit_pct"`
	Tightened bool    `json:"tightened"`
}

// TrailHit is published when a stop triggered a close.
type TrailHit struct {
	Symbol string             `json:"symbol"`
	Last   float64            `json:"last"`
	Stop   float64            `json:"stop"`
	Result *order.CloseResult `json:"result,omitempty"`
}

// Trailer sweeps open positions on the poll interval.
type Trailer struct {
	gateway  common.Gateway
	store    *state.Store
	locks    *state.Locks
	runtime  *state.Runtime
	executor *order.Executor
	cfg      *config.Store
	bus      *events.Bus
	log      *zap.Logger
}

// NewTrailer creates a trailing-stop sweeper.
func NewTrailer(gw common.Gateway, store *state.Store, locks *state.Locks, runtime *state.Runtime, ex *order.Executor, cfg *config.Store, bus *events.Bus, log *zap.Logger) *Trailer {
	return &Trailer{
		gateway:  gw,
		store:    store,
		locks:    locks,
		runtime:  runtime,
		executor: ex,
		cfg:      cfg,
		bus:      bus,
		log:      log,
	}
}

// Sweep runs one pass over all configured symbols. Per-symbol failures
// are logged and do not stop the rest of the pass.
func (t *Trailer) Sweep(ctx context.Context) {
	cfg := t.cfg.Current()
	if !cfg.Trailing.Enabled {
		return
	}
	for _, symbol := range cfg.Trade.Symbols {
		if err := t.sweepSymbol(ctx, symbol, cfg); err != nil {
			t.log.Warn("trailing sweep failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (t *Trailer) sweepSymbol(ctx context.Context, symbol string, cfg *config.Config) error {
	lk := t.locks.Get(symbol)
	lk.Lock()
	defer lk.Unlock()

	pos := t.store.Position(symbol)
	if !pos.Open() {
		return nil
	}

	last, err := common.TickerWithRetry(ctx, t.gateway, symbol)
	if err != nil {
		monitor.IncExchangeError("fetch_ticker")
		return fmt.Errorf("ticker %s: %w", symbol, err)
	}

	profit := risk.ProfitPct(string(pos.Side), pos.EntryPrice, last)
	tc := cfg.Trailing
	trailPct, tightened := risk.ActiveTrailPct(profit, pos.Tightened,
		tc.InitialTrailPct, tc.TightenTriggerProfitPct, tc.TightenedTrailPct, tc.MinTrailPct)

	candidate := risk.TrailStopPrice(string(pos.Side), last, trailPct)

	// Ratchet: a LONG stop only ever rises, a SHORT stop only ever
	// falls once set.
	var stop float64
	var hit bool
	if pos.Side == state.SideLong {
		stop = max(pos.TrailPrice, candidate)
		hit = last <= stop
	} else {
		stop = candidate
		if pos.TrailPrice > 0 {
			stop = min(pos.TrailPrice, candidate)
		}
		hit = last >= stop
	}

	if hit {
		res, err := t.executor.Close(ctx, symbol)
		if err != nil {
			return fmt.Errorf("trailing close %s: %w", symbol, err)
		}
		t.runtime.RecordAction(symbol, "TRAILING_STOP_HIT", res)
		monitor.IncTrailingStopHit()
		t.bus.Publish(events.EventTrailHit, TrailHit{
			Symbol: symbol,
			Last:   last,
			Stop:   stop,
			Result: res,
		})
		t.log.Info("trailing stop hit",
			zap.String("symbol", symbol),
			zap.Float64("last", last),
			zap.Float64("stop", stop),
			zap.Bool("closed", res.Closed))
		return nil
	}

	t.store.UpdateTrail(symbol, trailPct, stop, last, profit, tightened)
	t.bus.Publish(events.EventTrailUpdated, TrailUpdate{
		Symbol:    symbol,
		Last:      last,
		Stop:      stop,
		TrailPct:  trailPct,
		ProfitPct: profit,
		Tightened: tightened,
	})
	return nil
}

// Start blocks sweeping on the poll interval until ctx is canceled. The
// interval is re-read every cycle so config reloads take effect.
func (t *Trailer) Start(ctx context.Context) {
	timer := time.NewTimer(t.interval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			t.Sweep(ctx)
			timer.Reset(t.interval())
		case <-ctx.Done():
			return
		}
	}
}

func (t *Trailer) interval() time.Duration {
	return t.cfg.Current().App.PollInterval()
}
