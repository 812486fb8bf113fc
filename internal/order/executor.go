// Package order submits venue orders with fill confirmation and owns
// the open/close flows over the position store. All entry points assume
// the caller holds the symbol's lock.
package order

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/monitor"
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
)

// A close counts as confirmed when the venue filled at least this
// fraction of the requested size (tolerance for lot rounding).
const closeFillTolerance = 0.999

// Executor sends orders to the venue, confirms fills and updates the
// position store.
type Executor struct {
	gateway   common.Gateway
	store     *state.Store
	cfg       *config.Store
	reconcile *reconciliation.Service
	bus       *events.Bus
	log       *zap.Logger

	// Fill poll window, ≈12s with the defaults. Overridable in tests.
	pollAttempts int
	pollInterval time.Duration
}

// NewExecutor creates an order executor.
func NewExecutor(gw common.Gateway, store *state.Store, cfg *config.Store, rec *reconciliation.Service, bus *events.Bus, log *zap.Logger) *Executor {
	return &Executor{
		gateway:      gw,
		store:        store,
		cfg:          cfg,
		reconcile:    rec,
		bus:          bus,
		log:          log,
		pollAttempts: 24,
		pollInterval: 500 * time.Millisecond,
	}
}

// Open sizes and submits an order in the target direction, waits for the
// fill and writes the position store. The store is written even when the
// fill could not be fully resolved: average price falls back to the
// latest ticker, filled size to the requested size (flagged QtyAssumed),
// and the next reconciliation corrects any drift.
func (e *Executor) Open(ctx context.Context, symbol string, target state.Side, barTime string) (*OpenResult, error) {
	cfg := e.cfg.Current()

	// Best-effort: the order itself carries tdMode, so a failure here
	// is non-fatal.
	if err := e.gateway.SetLeverage(ctx, symbol, cfg.Trade.Leverage, cfg.Trade.MarginMode); err != nil {
		e.log.Debug("set leverage failed", zap.String("symbol", symbol), zap.Error(err))
	}

	qty, err := e.orderQty(ctx, symbol, cfg)
	if err != nil {
		return nil, fmt.Errorf("size order for %s: %w", symbol, err)
	}

	side := common.SideBuy
	posSide := "long"
	if target == state.SideShort {
		side = common.SideSell
		posSide = "short"
	}

	ack, err := e.gateway.CreateOrder(ctx, common.OrderRequest{
		Symbol:   symbol,
		Type:     common.OrderType(cfg.Trade.OrderType),
		Side:     side,
		Qty:      qty,
		ClientID: newClientID(),
		TdMode:   cfg.Trade.MarginMode,
		PosSide:  posSide,
	})
	if err != nil {
		monitor.IncExchangeError("create_order")
		return nil, fmt.Errorf("open %s %s: %w", symbol, target, err)
	}
	monitor.IncOrder("open", string(side))

	f := e.waitFilled(ctx, ack.ID, symbol)
	if f.order == nil {
		f.order = ack
	}

	res := &OpenResult{
		Opened:       string(target),
		QtyRequested: qty,
		QtyFilled:    f.filled,
		AvgPrice:     f.avg,
		Timeout:      f.timeout,
		Order:        f.order,
	}
	if res.AvgPrice <= 0 {
		px, err := common.TickerWithRetry(ctx, e.gateway, symbol)
		if err != nil {
			monitor.IncExchangeError("fetch_ticker")
			return nil, fmt.Errorf("resolve entry price for %s: %w", symbol, err)
		}
		res.AvgPrice = px
	}
	if res.QtyFilled <= 0 {
		res.QtyFilled = qty
		res.QtyAssumed = true
	}

	e.store.SetOpen(symbol, target, res.AvgPrice, res.QtyFilled, barTime, cfg.Trailing.InitialTrailPct)
	monitor.SetPositionOpen(symbol, true)
	e.bus.Publish(events.EventOrderOpened, res)
	e.log.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("side", string(target)),
		zap.Float64("qty", res.QtyFilled),
		zap.Float64("avg_price", res.AvgPrice),
		zap.Bool("timeout", res.Timeout))
	return res, nil
}

// Close flattens a symbol with a reduce-only order. The store flips to
// FLAT only on a confirmed fill; anything ambiguous leaves the store
// untouched and re-derives state from the venue instead of guessing.
func (e *Executor) Close(ctx context.Context, symbol string) (*CloseResult, error) {
	cfg := e.cfg.Current()

	pos := e.store.Position(symbol)
	if pos.Side == state.SideFlat {
		return &CloseResult{AlreadyFlat: true}, nil
	}

	qtyReq := pos.Qty
	if qtyReq <= 0 {
		// Local record is inconsistent. Never submit a zero-size order:
		// resync from the venue and retry once.
		e.reconcile.RunHeld(ctx, "close_qty_missing", symbol)
		pos = e.store.Position(symbol)
		qtyReq = pos.Qty
		if pos.Side == state.SideFlat || qtyReq <= 0 {
			return &CloseResult{
				Err:          "cannot_close_no_qty",
				Side:         string(pos.Side),
				QtyRequested: qtyReq,
			}, nil
		}
	}

	side := common.SideSell
	posSide := "long"
	if pos.Side == state.SideShort {
		side = common.SideBuy
		posSide = "short"
	}

	ack, err := e.gateway.CreateOrder(ctx, common.OrderRequest{
		Symbol:     symbol,
		Type:       common.OrderType(cfg.Trade.OrderType),
		Side:       side,
		Qty:        qtyReq,
		ClientID:   newClientID(),
		TdMode:     cfg.Trade.MarginMode,
		PosSide:    posSide,
		ReduceOnly: true,
	})
	if err != nil {
		monitor.IncExchangeError("create_order")
		return nil, fmt.Errorf("close %s: %w", symbol, err)
	}
	monitor.IncOrder("close", string(side))

	f := e.waitFilled(ctx, ack.ID, symbol)
	if f.order == nil {
		f.order = ack
	}

	confirmed := f.status.Filled() || f.filled >= math.Max(1e-7, qtyReq*closeFillTolerance)
	if confirmed {
		e.store.SetFlat(symbol)
		monitor.SetPositionOpen(symbol, false)
		res := &CloseResult{
			Closed:       true,
			QtyRequested: qtyReq,
			QtyFilled:    f.filled,
			AvgPrice:     f.avg,
			Timeout:      f.timeout,
			Order:        f.order,
		}
		if res.QtyFilled <= 0 {
			res.QtyFilled = qtyReq
		}
		e.bus.Publish(events.EventOrderClosed, res)
		e.log.Info("position closed",
			zap.String("symbol", symbol),
			zap.Float64("qty", res.QtyFilled),
			zap.Float64("avg_price", res.AvgPrice))
		return res, nil
	}

	monitor.IncCloseUnconfirmed()
	rec := e.reconcile.RunHeld(ctx, "close_not_confirmed", symbol)
	res := &CloseResult{
		Closed:       false,
		Reason:       "close_not_confirmed_reconciled",
		QtyRequested: qtyReq,
		QtyFilled:    f.filled,
		AvgPrice:     f.avg,
		Timeout:      f.timeout,
		Order:        f.order,
		Reconcile:    rec,
	}
	e.log.Warn("close not confirmed, state re-derived from venue",
		zap.String("symbol", symbol),
		zap.Float64("qty_requested", qtyReq),
		zap.Float64("qty_filled", f.filled))
	return res, nil
}

// fill is the resolved outcome of one fill-confirmation poll.
type fill struct {
	order   *common.Order
	filled  float64
	avg     float64
	status  common.OrderStatus
	timeout bool
}

// waitFilled polls order status until a terminal fill or the poll window
// elapses. Timeouts are reported, never raised; transient read failures
// keep the poll alive. A canceled order still polls to the window's end
// so a late partial fill is captured.
func (e *Executor) waitFilled(ctx context.Context, orderID, symbol string) fill {
	var last *common.Order
	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return e.timeoutFill(last)
			case <-time.After(e.pollInterval):
			}
		}
		o, err := e.gateway.FetchOrder(ctx, orderID, symbol)
		if err != nil {
			monitor.IncExchangeError("fetch_order")
			continue
		}
		last = o
		if o.Status.Filled() {
			return fill{order: o, filled: o.Filled, avg: o.AvgPrice, status: o.Status}
		}
	}
	return e.timeoutFill(last)
}

func (e *Executor) timeoutFill(last *common.Order) fill {
	monitor.IncFillTimeout()
	f := fill{status: common.StatusUnknown, timeout: true}
	if last != nil {
		f.order = last
		f.filled = last.Filled
		f.avg = last.AvgPrice
		f.status = last.Status
	}
	return f
}

// orderQty resolves the order size for a symbol: a fixed base amount, or
// a quote notional divided by the latest price.
func (e *Executor) orderQty(ctx context.Context, symbol string, cfg *config.Config) (float64, error) {
	switch cfg.Trade.QtyMode {
	case "base":
		q := cfg.Trade.BaseQty(symbol)
		if q <= 0 {
			return 0, fmt.Errorf("no base qty configured for %s", symbol)
		}
		return q, nil
	case "quote":
		notional := cfg.Trade.QuoteNotional(symbol)
		if notional <= 0 {
			return 0, fmt.Errorf("no quote notional configured for %s", symbol)
		}
		px, err := common.TickerWithRetry(ctx, e.gateway, symbol)
		if err != nil {
			monitor.IncExchangeError("fetch_ticker")
			return 0, fmt.Errorf("ticker for quote sizing: %w", err)
		}
		return notional / px, nil
	default:
		return 0, fmt.Errorf("unknown qty_mode %q", cfg.Trade.QtyMode)
	}
}

// newClientID derives an OKX-safe client order id (alphanumeric, 32
// chars) from a v4 uuid.
func newClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
