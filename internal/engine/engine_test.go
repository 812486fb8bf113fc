package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
)

// fakeGateway confirms every order on the first status poll unless
// fillConfirm is false.
type fakeGateway struct {
	mu          sync.Mutex
	ticker      map[string]float64
	created     []common.OrderRequest
	fillConfirm bool
	positions   []common.Position
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		ticker:      map[string]float64{"BTC/USDT:USDT": 50000, "ETH/USDT:USDT": 3000},
		fillConfirm: true,
	}
}

func (f *fakeGateway) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticker[symbol], nil
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return &common.Order{
		ID:     fmt.Sprintf("ord-%d", len(f.created)),
		Symbol: req.Symbol,
		Status: common.StatusLive,
		Qty:    req.Qty,
	}, nil
}

func (f *fakeGateway) FetchOrder(ctx context.Context, orderID, symbol string) (*common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := f.created[len(f.created)-1]
	if !f.fillConfirm {
		return &common.Order{ID: orderID, Symbol: symbol, Status: common.StatusLive, Qty: last.Qty}, nil
	}
	return &common.Order{
		ID:       orderID,
		Symbol:   symbol,
		Status:   common.StatusFilled,
		Qty:      last.Qty,
		Filled:   last.Qty,
		AvgPrice: f.ticker[symbol],
	}, nil
}

func (f *fakeGateway) FetchPositions(ctx context.Context, symbols []string) ([]common.Position, error) {
	return f.positions, nil
}

func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int, marginMode string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{PollIntervalSec: 300, ReconcileIntervalSec: 600},
		Trade: config.TradeConfig{
			Symbols:    []string{"BTC/USDT:USDT", "ETH/USDT:USDT"},
			Leverage:   3,
			MarginMode: "cross",
			QtyMode:    "base",
			QtyBase:    map[string]float64{"BTC/USDT:USDT": 0.02, "ETH/USDT:USDT": 0.5},
			OrderType:  "market",
		},
		Trailing: config.TrailingConfig{
			Enabled:                 true,
			InitialTrailPct:         3.0,
			TightenTriggerProfitPct: 1.0,
			TightenedTrailPct:       0.1,
			MinTrailPct:             0.1,
		},
		Strategy: config.StrategyConfig{
			IgnoreSameDirection: true,
			ReverseOnOpposite:   true,
			DedupSameBar:        true,
			LockPerSymbol:       true,
		},
	}
}

func newTestEngine(gw common.Gateway, cfg *config.Config) (*Engine, *state.Store, *state.Runtime) {
	store := state.NewStore()
	locks := state.NewLocks()
	runtime := state.NewRuntime()
	cfgStore := config.NewStaticStore(cfg)
	bus := events.NewBus()
	rec := reconciliation.NewService(gw, store, locks, runtime, cfgStore, bus, zap.NewNop())
	ex := order.NewExecutor(gw, store, cfgStore, rec, bus, zap.NewNop())
	eng := New(store, locks, runtime, ex, rec, cfgStore, bus, zap.NewNop())
	eng.settle = 0
	return eng, store, runtime
}

func buySignal(barTime string) Signal {
	return Signal{Symbol: "BTC/USDT:USDT", Action: "BUY", BarTime: barTime, Timeframe: "15m"}
}

func sellSignal(barTime string) Signal {
	return Signal{Symbol: "BTC/USDT:USDT", Action: "SELL", BarTime: barTime, Timeframe: "15m"}
}

func TestFlatBuyOpensLong(t *testing.T) {
	gw := newFakeGateway()
	eng, store, runtime := newTestEngine(gw, testConfig())

	res, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)

	require.Equal(t, "OPEN_LONG", res.Action)
	require.False(t, res.Ignored)

	pos := store.Position("BTC/USDT:USDT")
	require.Equal(t, state.SideLong, pos.Side)
	require.Equal(t, 0.02, pos.Qty)
	require.Equal(t, 50000.0, pos.EntryPrice)
	require.Equal(t, "bar-1", pos.LastBarTime)

	snap := runtime.Snapshot()
	require.Equal(t, "BUY", snap.LastSignal["BTC/USDT:USDT"].Action)
	require.Equal(t, "OPEN_LONG", snap.LastAction["BTC/USDT:USDT"].Action)
}

func TestDedupSameBarIgnoresSecondSignal(t *testing.T) {
	gw := newFakeGateway()
	eng, _, _ := newTestEngine(gw, testConfig())

	_, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)
	require.Len(t, gw.created, 1)

	res, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)
	require.True(t, res.Ignored)
	require.Equal(t, "dedup_same_bar", res.Reason)
	require.Len(t, gw.created, 1)
}

func TestPausedIgnoresSignalButRecordsIt(t *testing.T) {
	gw := newFakeGateway()
	eng, _, runtime := newTestEngine(gw, testConfig())
	eng.SetPaused(true, "maintenance")

	res, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)

	require.True(t, res.Ignored)
	require.Equal(t, "paused", res.Reason)
	require.Equal(t, "maintenance", res.PauseReason)
	require.Empty(t, gw.created)
	// The signal still lands in the audit trail.
	require.Equal(t, "BUY", runtime.Snapshot().LastSignal["BTC/USDT:USDT"].Action)
}

func TestSameDirectionRefreshesBarTimeOnly(t *testing.T) {
	gw := newFakeGateway()
	eng, store, _ := newTestEngine(gw, testConfig())

	_, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)

	res, err := eng.OnSignal(context.Background(), buySignal("bar-2"))
	require.NoError(t, err)

	require.True(t, res.Ignored)
	require.Equal(t, "same_direction", res.Reason)
	require.Len(t, gw.created, 1)
	require.Equal(t, "bar-2", store.Position("BTC/USDT:USDT").LastBarTime)
	require.Equal(t, state.SideLong, store.Position("BTC/USDT:USDT").Side)
}

func TestOppositeSignalReverses(t *testing.T) {
	gw := newFakeGateway()
	eng, store, runtime := newTestEngine(gw, testConfig())

	_, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)

	res, err := eng.OnSignal(context.Background(), sellSignal("bar-2"))
	require.NoError(t, err)

	require.Equal(t, "REVERSE_TO_SHORT", res.Action)
	detail, ok := res.Detail.(*ReverseDetail)
	require.True(t, ok)
	require.True(t, detail.Closed.Closed)
	require.Equal(t, "SHORT", detail.Opened.Opened)

	// open buy, close sell reduce-only, open sell
	require.Len(t, gw.created, 3)
	require.True(t, gw.created[1].ReduceOnly)
	require.Equal(t, common.SideSell, gw.created[1].Side)
	require.False(t, gw.created[2].ReduceOnly)
	require.Equal(t, common.SideSell, gw.created[2].Side)

	pos := store.Position("BTC/USDT:USDT")
	require.Equal(t, state.SideShort, pos.Side)
	// Fresh trail for the new position: entry*(1+3%).
	require.InDelta(t, 51500.0, pos.TrailPrice, 1e-6)

	require.Equal(t, "REVERSE_TO_SHORT", runtime.Snapshot().LastAction["BTC/USDT:USDT"].Action)
}

func TestReverseAbortsWhenCloseUnresolvable(t *testing.T) {
	gw := newFakeGateway()
	eng, store, runtime := newTestEngine(gw, testConfig())

	// Inconsistent local record and the venue reports nothing: the
	// close leg cannot resolve a quantity and the reverse must not
	// open a new position blindly.
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0, "", 3.0)

	res, err := eng.OnSignal(context.Background(), sellSignal("bar-2"))
	require.NoError(t, err)

	require.Equal(t, "REVERSE_ABORTED", res.Action)
	require.Equal(t, "close_not_confirmed", res.Reason)
	require.Empty(t, gw.created)
	require.Equal(t, "REVERSE_ABORTED", runtime.Snapshot().LastAction["BTC/USDT:USDT"].Action)
	// Reconciliation set the book straight.
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestCloseOnlyMode(t *testing.T) {
	gw := newFakeGateway()
	eng, store, _ := newTestEngine(gw, testConfig())
	eng.SetCloseOnly(true)

	// FLAT: nothing to do.
	res, err := eng.OnSignal(context.Background(), buySignal("bar-1"))
	require.NoError(t, err)
	require.True(t, res.Ignored)
	require.Equal(t, "close_only_flat", res.Reason)
	require.Empty(t, gw.created)

	// Same direction as held: ignored.
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)
	res, err = eng.OnSignal(context.Background(), buySignal("bar-2"))
	require.NoError(t, err)
	require.True(t, res.Ignored)
	require.Equal(t, "close_only_same_direction", res.Reason)

	// Opposite: close without reopening.
	res, err = eng.OnSignal(context.Background(), sellSignal("bar-3"))
	require.NoError(t, err)
	require.Equal(t, "CLOSE_ONLY_CLOSE", res.Action)
	require.Len(t, gw.created, 1)
	require.True(t, gw.created[0].ReduceOnly)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestReverseDisabledClosesOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.ReverseOnOpposite = false
	gw := newFakeGateway()
	eng, store, _ := newTestEngine(gw, cfg)
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	res, err := eng.OnSignal(context.Background(), sellSignal("bar-1"))
	require.NoError(t, err)

	require.Equal(t, "CLOSE_ONLY_BY_STRATEGY", res.Action)
	require.Len(t, gw.created, 1)
	require.True(t, gw.created[0].ReduceOnly)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
}

func TestEmergencyCloseAll(t *testing.T) {
	gw := newFakeGateway()
	eng, store, runtime := newTestEngine(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	results := eng.EmergencyCloseAll(context.Background())

	require.Len(t, results, 2)
	require.True(t, results["BTC/USDT:USDT"].Closed)
	require.True(t, results["ETH/USDT:USDT"].AlreadyFlat)
	require.Equal(t, state.SideFlat, store.Position("BTC/USDT:USDT").Side)
	require.Equal(t, "EMERGENCY_CLOSE", runtime.Snapshot().LastAction["BTC/USDT:USDT"].Action)
}

func TestStateSnapshotCarriesConfigSummary(t *testing.T) {
	gw := newFakeGateway()
	eng, store, _ := newTestEngine(gw, testConfig())
	store.SetOpen("BTC/USDT:USDT", state.SideLong, 50000, 0.02, "", 3.0)

	snap := eng.StateSnapshot()

	require.Equal(t, []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}, snap.Config.Symbols)
	require.Equal(t, 3, snap.Config.Leverage)
	require.Equal(t, "cross", snap.Config.MarginMode)
	require.Equal(t, 300, snap.Config.PollIntervalSec)
	require.Equal(t, 600, snap.Config.ReconcileIntervalSec)
	require.Equal(t, state.SideLong, snap.Positions["BTC/USDT:USDT"].Side)
}

func TestManualReconcileOverlaysVenue(t *testing.T) {
	gw := newFakeGateway()
	gw.positions = []common.Position{
		{Symbol: "BTC/USDT:USDT", Side: common.PosLong, Qty: 0.02, EntryPrice: 50000},
	}
	eng, store, _ := newTestEngine(gw, testConfig())

	rep := eng.Reconcile(context.Background())

	require.True(t, rep.OK)
	require.Equal(t, "manual", rep.Reason)
	require.Equal(t, state.SideLong, store.Position("BTC/USDT:USDT").Side)
}
