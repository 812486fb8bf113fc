// Package reconciliation resynchronizes the local position store with
// the venue's authoritative position list. It runs once at startup, on a
// periodic interval, and synchronously when the order executor detects a
// local/venue mismatch during a close.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/monitor"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
)

// Report is the outcome of one reconciliation pass. It is recorded in
// the audit trail and attached to close results that fell back to
// reconciliation.
type Report struct {
	OK      bool                       `json:"ok"`
	Reason  string                     `json:"reason"`
	Ts      int64                      `json:"ts"`
	Updated map[string]UpdatedPosition `json:"updated"`
	Errors  []string                   `json:"errors,omitempty"`
}

// UpdatedPosition describes one venue position written to the store.
type UpdatedPosition struct {
	Side       string  `json:"side"`
	Qty        float64 `json:"qty"`
	EntryPrice float64 `json:"entry_price"`
}

// Service reconciles local state against venue truth.
type Service struct {
	gateway common.Gateway
	store   *state.Store
	locks   *state.Locks
	runtime *state.Runtime
	cfg     *config.Store
	bus     *events.Bus
	log     *zap.Logger
}

// NewService creates a reconciliation service.
func NewService(gw common.Gateway, store *state.Store, locks *state.Locks, runtime *state.Runtime, cfg *config.Store, bus *events.Bus, log *zap.Logger) *Service {
	return &Service{
		gateway: gw,
		store:   store,
		locks:   locks,
		runtime: runtime,
		cfg:     cfg,
		bus:     bus,
		log:     log,
	}
}

// Run performs one reconciliation pass. It never panics and never
// returns an error: failures are carried inside the report so callers
// can attach it to their own results.
func (s *Service) Run(ctx context.Context, reason string) *Report {
	return s.RunHeld(ctx, reason, "")
}

// RunHeld is Run for callers that already hold one symbol's lock, such
// as the order executor mid-close. The held symbol is written without
// re-acquiring its lock; all other symbols are locked normally.
func (s *Service) RunHeld(ctx context.Context, reason, heldSymbol string) *Report {
	cfg := s.cfg.Current()
	symbols := cfg.Trade.Symbols
	rep := &Report{
		OK:      true,
		Reason:  reason,
		Ts:      time.Now().Unix(),
		Updated: make(map[string]UpdatedPosition),
	}

	venue, err := s.gateway.FetchPositions(ctx, symbols)
	if err != nil {
		// Some venues reject server-side filtering; retry unfiltered.
		venue, err = s.gateway.FetchPositions(ctx, nil)
	}
	if err != nil {
		monitor.IncExchangeError("fetch_positions")
		monitor.IncReconcile(reason, false)
		rep.OK = false
		rep.Errors = append(rep.Errors, err.Error())
		s.runtime.RecordAction(state.ReconcileKey, "RECONCILE_FAILED", rep)
		s.log.Warn("reconciliation failed",
			zap.String("reason", reason),
			zap.Error(err))
		return rep
	}

	configured := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		configured[sym] = true
	}

	// Last venue row wins when a symbol appears twice (hedge-mode
	// long and short legs).
	desired := make(map[string]common.Position, len(venue))
	for _, p := range venue {
		if !configured[p.Symbol] {
			continue
		}
		if p.Side == "" || p.Qty <= 0 {
			// Direction not attributable: leave the symbol FLAT
			// locally rather than guess.
			continue
		}
		desired[p.Symbol] = p
	}

	for _, sym := range symbols {
		s.apply(ctx, sym, desired[sym], rep, cfg, sym == heldSymbol)
	}

	rep.OK = len(rep.Errors) == 0
	s.runtime.SetLastReconcile(rep.Ts)
	s.runtime.RecordAction(state.ReconcileKey, "RECONCILE", rep)
	monitor.IncReconcile(reason, rep.OK)
	s.bus.Publish(events.EventReconcileDone, rep)
	s.log.Info("reconciliation applied",
		zap.String("reason", reason),
		zap.Int("open", len(rep.Updated)),
		zap.Int("errors", len(rep.Errors)))
	return rep
}

// apply writes one symbol's reconciled state. A zero-value position
// means the venue reported nothing for the symbol and it goes FLAT.
func (s *Service) apply(ctx context.Context, symbol string, p common.Position, rep *Report, cfg *config.Config, held bool) {
	if !held {
		lk := s.locks.Get(symbol)
		lk.Lock()
		defer lk.Unlock()
	}

	if p.Side == "" {
		s.store.SetFlat(symbol)
		monitor.SetPositionOpen(symbol, false)
		return
	}

	entry := p.EntryPrice
	if entry <= 0 {
		px, err := s.gateway.FetchTicker(ctx, symbol)
		if err != nil {
			// No usable entry price. FLAT is recoverable on the next
			// pass; an invented entry price is not.
			monitor.IncExchangeError("fetch_ticker")
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: entry price fallback: %v", symbol, err))
			s.store.SetFlat(symbol)
			monitor.SetPositionOpen(symbol, false)
			return
		}
		entry = px
	}

	s.store.SetOpen(symbol, state.Side(p.Side), entry, p.Qty, "", cfg.Trailing.InitialTrailPct)
	monitor.SetPositionOpen(symbol, true)
	rep.Updated[symbol] = UpdatedPosition{
		Side:       string(p.Side),
		Qty:        p.Qty,
		EntryPrice: entry,
	}
}

// Start blocks running periodic passes until ctx is canceled. The
// interval is re-read every cycle so config reloads take effect, with a
// one minute floor to avoid hammering the venue.
func (s *Service) Start(ctx context.Context) {
	timer := time.NewTimer(s.interval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			s.Run(ctx, "periodic")
			timer.Reset(s.interval())
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) interval() time.Duration {
	iv := s.cfg.Current().App.ReconcileInterval()
	if iv < time.Minute {
		iv = time.Minute
	}
	return iv
}
