package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/monitor"
	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
)

// Settle delay between the close and reopen legs of a reversal, so the
// venue never sees the two orders as an overlapping hedge pair.
const reverseSettleDelay = 300 * time.Millisecond

// Engine implements Service by composing the position store, the order
// executor and the reconciliation service.
type Engine struct {
	store     *state.Store
	locks     *state.Locks
	runtime   *state.Runtime
	executor  *order.Executor
	reconcile *reconciliation.Service
	cfg       *config.Store
	bus       *events.Bus
	log       *zap.Logger

	settle time.Duration
}

// New creates the engine.
func New(store *state.Store, locks *state.Locks, runtime *state.Runtime, ex *order.Executor, rec *reconciliation.Service, cfg *config.Store, bus *events.Bus, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		locks:     locks,
		runtime:   runtime,
		executor:  ex,
		reconcile: rec,
		cfg:       cfg,
		bus:       bus,
		log:       log,
		settle:    reverseSettleDelay,
	}
}

// OnSignal runs the decision table for one signal. The whole decision,
// including the venue calls it triggers, executes under the symbol's
// lock so concurrent signals for one symbol serialize while other
// symbols proceed in parallel.
func (e *Engine) OnSignal(ctx context.Context, sig Signal) (*Result, error) {
	cfg := e.cfg.Current()

	if cfg.Strategy.LockPerSymbol {
		lk := e.locks.Get(sig.Symbol)
		lk.Lock()
		defer lk.Unlock()
	}

	// Audit first, unconditionally, even if the signal is ignored.
	e.runtime.RecordSignal(sig.Symbol, sig.Action, sig.BarTime, sig.Timeframe, sig.Raw)

	if paused, pauseReason := e.runtime.Paused(); paused {
		return e.ignore(sig, "paused", pauseReason), nil
	}

	pos := e.store.Position(sig.Symbol)

	if cfg.Strategy.DedupSameBar && sig.BarTime != "" && sig.BarTime == pos.LastBarTime {
		return e.ignore(sig, "dedup_same_bar", ""), nil
	}

	target := state.SideLong
	if sig.Action == "SELL" {
		target = state.SideShort
	}

	if e.runtime.CloseOnly() {
		switch {
		case pos.Side == state.SideFlat:
			return e.ignore(sig, "close_only_flat", ""), nil
		case pos.Side != target:
			res, err := e.executor.Close(ctx, sig.Symbol)
			if err != nil {
				monitor.IncSignal("error")
				return nil, err
			}
			return e.acted(sig, "CLOSE_ONLY_CLOSE", "closed", res), nil
		default:
			return e.ignore(sig, "close_only_same_direction", ""), nil
		}
	}

	if pos.Side == state.SideFlat {
		res, err := e.executor.Open(ctx, sig.Symbol, target, sig.BarTime)
		if err != nil {
			monitor.IncSignal("error")
			return nil, err
		}
		return e.acted(sig, "OPEN_"+string(target), "opened", res), nil
	}

	if pos.Side == target && cfg.Strategy.IgnoreSameDirection {
		// Same direction repeats only refresh the dedup token.
		e.store.SetBarTime(sig.Symbol, sig.BarTime)
		return e.ignore(sig, "same_direction", ""), nil
	}

	if cfg.Strategy.ReverseOnOpposite {
		return e.reverse(ctx, sig, target)
	}

	res, err := e.executor.Close(ctx, sig.Symbol)
	if err != nil {
		monitor.IncSignal("error")
		return nil, err
	}
	return e.acted(sig, "CLOSE_ONLY_BY_STRATEGY", "closed", res), nil
}

// reverse closes the held side and opens the opposite one. The open leg
// runs only when the close leg actually confirmed: an unconfirmed close
// already re-derived local state via reconciliation, and opening on top
// of an unknown venue position risks doubling exposure.
func (e *Engine) reverse(ctx context.Context, sig Signal, target state.Side) (*Result, error) {
	closeRes, err := e.executor.Close(ctx, sig.Symbol)
	if err != nil {
		monitor.IncSignal("error")
		return nil, err
	}
	if !closeRes.Closed && !closeRes.AlreadyFlat {
		res := &Result{
			Action: "REVERSE_ABORTED",
			Reason: "close_not_confirmed",
			Detail: &ReverseDetail{Closed: closeRes},
		}
		e.runtime.RecordAction(sig.Symbol, res.Action, res.Detail)
		monitor.IncSignal("error")
		e.bus.Publish(events.EventSignalAccepted, SignalEvent{Symbol: sig.Symbol, Action: sig.Action, Result: res})
		e.log.Warn("reverse aborted, close leg unconfirmed", zap.String("symbol", sig.Symbol))
		return res, nil
	}

	select {
	case <-ctx.Done():
		res := &Result{
			Action: "REVERSE_ABORTED",
			Reason: "canceled",
			Detail: &ReverseDetail{Closed: closeRes},
		}
		e.runtime.RecordAction(sig.Symbol, res.Action, res.Detail)
		return res, nil
	case <-time.After(e.settle):
	}

	openRes, err := e.executor.Open(ctx, sig.Symbol, target, sig.BarTime)
	if err != nil {
		monitor.IncSignal("error")
		return nil, err
	}

	return e.acted(sig, "REVERSE_TO_"+string(target), "reversed",
		&ReverseDetail{Closed: closeRes, Opened: openRes}), nil
}

func (e *Engine) ignore(sig Signal, reason, pauseReason string) *Result {
	res := &Result{Ignored: true, Reason: reason, PauseReason: pauseReason}
	monitor.IncSignal("ignored")
	e.bus.Publish(events.EventSignalIgnored, SignalEvent{Symbol: sig.Symbol, Action: sig.Action, Result: res})
	e.log.Info("signal ignored",
		zap.String("symbol", sig.Symbol),
		zap.String("action", sig.Action),
		zap.String("reason", reason))
	return res
}

func (e *Engine) acted(sig Signal, action, metric string, detail any) *Result {
	res := &Result{Action: action, Detail: detail}
	e.runtime.RecordAction(sig.Symbol, action, detail)
	monitor.IncSignal(metric)
	e.bus.Publish(events.EventSignalAccepted, SignalEvent{Symbol: sig.Symbol, Action: sig.Action, Result: res})
	e.log.Info("signal executed",
		zap.String("symbol", sig.Symbol),
		zap.String("signal", sig.Action),
		zap.String("action", action))
	return res
}

// SetPaused flips the pause flag.
func (e *Engine) SetPaused(paused bool, reason string) PauseState {
	p, r := e.runtime.SetPaused(paused, reason)
	st := PauseState{Paused: p, Reason: r}
	e.bus.Publish(events.EventControlChanged, st)
	e.log.Info("pause flag changed", zap.Bool("paused", p), zap.String("reason", r))
	return st
}

// SetCloseOnly flips close-only mode.
func (e *Engine) SetCloseOnly(closeOnly bool) CloseOnlyState {
	st := CloseOnlyState{CloseOnly: e.runtime.SetCloseOnly(closeOnly)}
	e.bus.Publish(events.EventControlChanged, st)
	e.log.Info("close-only flag changed", zap.Bool("close_only", st.CloseOnly))
	return st
}

// EmergencyClose force-closes one symbol under its lock.
func (e *Engine) EmergencyClose(ctx context.Context, symbol string) (*order.CloseResult, error) {
	lk := e.locks.Get(symbol)
	lk.Lock()
	defer lk.Unlock()

	res, err := e.executor.Close(ctx, symbol)
	if err != nil {
		return nil, err
	}
	e.runtime.RecordAction(symbol, "EMERGENCY_CLOSE", res)
	e.bus.Publish(events.EventControlChanged, map[string]any{"emergency_close": symbol, "result": res})
	return res, nil
}

// EmergencyCloseAll force-closes every configured symbol, carrying
// per-symbol failures in the result map.
func (e *Engine) EmergencyCloseAll(ctx context.Context) map[string]*order.CloseResult {
	results := make(map[string]*order.CloseResult)
	for _, symbol := range e.cfg.Current().Trade.Symbols {
		res, err := e.EmergencyClose(ctx, symbol)
		if err != nil {
			results[symbol] = &order.CloseResult{Err: err.Error()}
			continue
		}
		results[symbol] = res
	}
	return results
}

// Reconcile runs one on-demand pass against venue truth.
func (e *Engine) Reconcile(ctx context.Context) *reconciliation.Report {
	return e.reconcile.Run(ctx, "manual")
}

// StateSnapshot exports the engine state for /state and the websocket.
func (e *Engine) StateSnapshot() Snapshot {
	cfg := e.cfg.Current()
	return Snapshot{
		Runtime:   e.runtime.Snapshot(),
		Positions: e.store.Snapshot(),
		Config: ConfigSummary{
			Symbols:              cfg.Trade.Symbols,
			Leverage:             cfg.Trade.Leverage,
			MarginMode:           cfg.Trade.MarginMode,
			PollIntervalSec:      cfg.App.PollIntervalSec,
			ReconcileIntervalSec: cfg.App.ReconcileIntervalSec,
		},
	}
}
