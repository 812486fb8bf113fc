package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
)

type fetchStep struct {
	order *common.Order
	err   error
}

type fakeGateway struct {
	mu sync.Mutex

	ticker    map[string]float64
	tickerErr error

	createErr error
	created   []common.OrderRequest

	// fetchSeq scripts FetchOrder responses; the last step repeats once
	// the script is exhausted.
	fetchSeq   []fetchStep
	fetchCalls int

	positions    []common.Position
	positionsErr error

	leverageCalls int
	leverageErr   error
}

func (f *fakeGateway) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	if f.tickerErr != nil {
		return 0, f.tickerErr
	}
	return f.ticker[symbol], nil
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &common.Order{
		ID:       "ord-1",
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Status:   common.StatusLive,
		Qty:      req.Qty,
	}, nil
}

func (f *fakeGateway) FetchOrder(ctx context.Context, orderID, symbol string) (*common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetchSeq) == 0 {
		return nil, errors.New("unscripted fetch")
	}
	i := f.fetchCalls
	if i >= len(f.fetchSeq) {
		i = len(f.fetchSeq) - 1
	}
	f.fetchCalls++
	st := f.fetchSeq[i]
	return st.order, st.err
}

func (f *fakeGateway) FetchPositions(ctx context.Context, symbols []string) ([]common.Position, error) {
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.positions, nil
}

func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int, marginMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls++
	return f.leverageErr
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{PollIntervalSec: 300, ReconcileIntervalSec: 600},
		Trade: config.TradeConfig{
			Symbols:    []string{"BTC/USDT:USDT"},
			Leverage:   3,
			MarginMode: "cross",
			QtyMode:    "base",
			QtyBase:    map[string]float64{"BTC/USDT:USDT": 0.02},
			QtyQuote:   map[string]float64{"BTC/USDT:USDT": 100},
			OrderType:  "market",
		},
		Trailing: config.TrailingConfig{
			Enabled:                 true,
			InitialTrailPct:         3.0,
			TightenTriggerProfitPct: 1.0,
			TightenedTrailPct:       0.1,
			MinTrailPct:             0.1,
		},
	}
}

func newTestExecutor(gw common.Gateway, cfg *config.Config) (*Executor, *state.Store) {
	store := state.NewStore()
	locks := state.NewLocks()
	runtime := state.NewRuntime()
	cfgStore := config.NewStaticStore(cfg)
	bus := events.NewBus()
	rec := reconciliation.NewService(gw, store, locks, runtime, cfgStore, bus, zap.NewNop())
	ex := NewExecutor(gw, store, cfgStore, rec, bus, zap.NewNop())
	ex.pollAttempts = 3
	ex.pollInterval = time.Millisecond
	return ex, store
}

func filledOrder(qty, avg float64) *common.Order {
	return &common.Order{
		ID:       "ord-1",
		Symbol:   "BTC/USDT:USDT",
		Status:   common.StatusFilled,
		Qty:      qty,
		Filled:   qty,
		AvgPrice: avg,
	}
}

func liveOrder(qty, filled float64) *common.Order {
	return &common.Order{
		ID:     "ord-1",
		Symbol: "BTC/USDT:USDT",
		Status: common.StatusLive,
		Qty:    qty,
		Filled: filled,
	}
}

func TestOpenConfirmedFill(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: filledOrder(0.02, 50000)}},
	}
	ex, store := newTestExecutor(gw, testConfig())

	res, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "2026-01-02T15:00:00Z")
	require.NoError(t, err)

	require.Equal(t, "LONG", res.Opened)
	require.Equal(t, 0.02, res.QtyRequested)
	require.Equal(t, 0.02, res.QtyFilled)
	require.Equal(t, 50000.0, res.AvgPrice)
	require.False(t, res.Timeout)
	require.False(t, res.QtyAssumed)

	require.Len(t, gw.created, 1)
	req := gw.created[0]
	require.Equal(t, common.SideBuy, req.Side)
	require.Equal(t, common.OrderTypeMarket, req.Type)
	require.Equal(t, "cross", req.TdMode)
	require.Equal(t, "long", req.PosSide)
	require.False(t, req.ReduceOnly)
	require.Len(t, req.ClientID, 32)
	require.Equal(t, 1, gw.leverageCalls)

	pos := store.Position("BTC/USDT:USDT")
	require.Equal(t, state.SideLong, pos.Side)
	require.Equal(t, 50000.0, pos.EntryPrice)
	require.Equal(t, 0.02, pos.Qty)
	require.InDelta(t, 48500.0, pos.TrailPrice, 1e-9)
	require.Equal(t, "2026-01-02T15:00:00Z", pos.LastBarTime)
}

func TestOpenLeverageFailureIsSwallowed(t *testing.T) {
	gw := &fakeGateway{
		leverageErr: errors.New("50004 leverage not modified"),
		fetchSeq:    []fetchStep{{order: filledOrder(0.02, 50000)}},
	}
	ex, store := newTestExecutor(gw, testConfig())

	_, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "")
	require.NoError(t, err)
	require.Equal(t, state.SideLong, store.Position("BTC/USDT:USDT").Side)
}

func TestOpenAvgPriceFallsBackToTicker(t *testing.T) {
	gw := &fakeGateway{
		ticker:   map[string]float64{"BTC/USDT:USDT": 50100},
		fetchSeq: []fetchStep{{order: filledOrder(0.02, 0)}},
	}
	ex, store := newTestExecutor(gw, testConfig())

	res, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "")
	require.NoError(t, err)
	require.Equal(t, 50100.0, res.AvgPrice)
	require.Equal(t, 50100.0, store.Position("BTC/USDT:USDT").EntryPrice)
}

func TestOpenTimeoutAssumesRequestedQty(t *testing.T) {
	gw := &fakeGateway{
		ticker:   map[string]float64{"BTC/USDT:USDT": 50000},
		fetchSeq: []fetchStep{{order: liveOrder(0.02, 0)}},
	}
	ex, store := newTestExecutor(gw, testConfig())

	res, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideShort, "")
	require.NoError(t, err)

	require.True(t, res.Timeout)
	require.True(t, res.QtyAssumed)
	require.Equal(t, 0.02, res.QtyFilled)

	pos := store.Position("BTC/USDT:USDT")
	require.Equal(t, state.SideShort, pos.Side)
	require.Equal(t, 0.02, pos.Qty)
}

func TestOpenQuoteSizing(t *testing.T) {
	cfg := testConfig()
	cfg.Trade.QtyMode = "quote"
	gw := &fakeGateway{
		ticker:   map[string]float64{"BTC/USDT:USDT": 50000},
		fetchSeq: []fetchStep{{order: filledOrder(0.002, 50000)}},
	}
	ex, _ := newTestExecutor(gw, cfg)

	res, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "")
	require.NoError(t, err)
	require.InDelta(t, 0.002, res.QtyRequested, 1e-9)
	require.InDelta(t, 0.002, gw.created[0].Qty, 1e-9)
}

func TestOpenPlacementFailureLeavesStoreFlat(t *testing.T) {
	gw := &fakeGateway{createErr: errors.New("51008 insufficient balance")}
	ex, store := newTestExecutor(gw, testConfig())

	_, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "")
	require.Error(t, err)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestCloseAlreadyFlat(t *testing.T) {
	gw := &fakeGateway{}
	ex, _ := newTestExecutor(gw, testConfig())

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)
	require.True(t, res.AlreadyFlat)
	require.False(t, res.Closed)
	require.Empty(t, gw.created)
}

func TestCloseConfirmedFlipsFlat(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: filledOrder(0.02, 51000)}},
	}
	ex, store := newTestExecutor(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)

	require.True(t, res.Closed)
	require.Equal(t, 0.02, res.QtyFilled)
	require.Equal(t, 51000.0, res.AvgPrice)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)

	req := gw.created[0]
	require.Equal(t, common.SideSell, req.Side)
	require.True(t, req.ReduceOnly)
	require.Equal(t, "long", req.PosSide)
}

func TestCloseShortBuysBack(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: filledOrder(0.02, 49000)}},
	}
	ex, store := newTestExecutor(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideShort, 50000, 0.02, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)
	require.True(t, res.Closed)

	req := gw.created[0]
	require.Equal(t, common.SideBuy, req.Side)
	require.Equal(t, "short", req.PosSide)
}

func TestCloseNearFullFillCountsAsConfirmed(t *testing.T) {
	// 99.95% filled but still reported live: within the rounding
	// tolerance, so the close is trusted.
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: liveOrder(0.02, 0.01999)}},
	}
	ex, store := newTestExecutor(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)

	require.True(t, res.Closed)
	require.True(t, res.Timeout)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestCloseUnconfirmedReconcilesInsteadOfGuessing(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: liveOrder(0.02, 0.001)}},
		// Venue still reports the position open, so reconciliation
		// keeps the local LONG.
		positions: []common.Position{
			{Symbol: "BTC/USDT:USDT", Side: common.PosLong, Qty: 0.02, EntryPrice: 50000},
		},
	}
	ex, store := newTestExecutor(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)

	require.False(t, res.Closed)
	require.True(t, res.Timeout)
	require.Equal(t, "close_not_confirmed_reconciled", res.Reason)
	require.NotNil(t, res.Reconcile)
	require.True(t, res.Reconcile.OK)
	require.Equal(t, state.SideLong, store.Position("BTC/USDT:USDT").Side)
}

func TestCloseMissingQtyRepairedByReconcile(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{{order: filledOrder(0.02, 51000)}},
		positions: []common.Position{
			{Symbol: "BTC/USDT:USDT", Side: common.PosLong, Qty: 0.02, EntryPrice: 50000},
		},
	}
	ex, store := newTestExecutor(gw, testConfig())
	// Inconsistent local record: open side with no quantity.
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)

	require.True(t, res.Closed)
	require.Len(t, gw.created, 1)
	require.Equal(t, 0.02, gw.created[0].Qty)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestCloseMissingQtyUnresolvable(t *testing.T) {
	// Venue reports nothing either: no order is submitted.
	gw := &fakeGateway{}
	ex, store := newTestExecutor(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0, "", 3.0)

	res, err := ex.Close(context.Background(), "BTC/USDT:USDT")
	require.NoError(t, err)

	require.Equal(t, "cannot_close_no_qty", res.Err)
	require.False(t, res.Closed)
	require.Empty(t, gw.created)
	// Reconciliation already reset the stale record.
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestWaitFilledSurvivesTransientFetchErrors(t *testing.T) {
	gw := &fakeGateway{
		fetchSeq: []fetchStep{
			{err: errors.New("timeout")},
			{err: errors.New("timeout")},
			{order: filledOrder(0.02, 50000)},
		},
	}
	ex, _ := newTestExecutor(gw, testConfig())

	res, err := ex.Open(context.Background(), "BTC/USDT:USDT", state.SideLong, "")
	require.NoError(t, err)
	require.False(t, res.Timeout)
	require.Equal(t, 50000.0, res.AvgPrice)
}
