// Package state holds the engine's local truth: the per-symbol position
// store, the per-symbol lock table, and the runtime control plane.
package state

import (
	"sync"
	"time"

	"okx-signal-bot/internal/risk"
)

// Side is the directional state of a position.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is the locally cached view of one symbol between
// reconciliations. LastPrice and ProfitPctEst are observability fields
// refreshed by the trailing sweep.
type Position struct {
	Side         Side    `json:"side"`
	EntryPrice   float64 `json:"entry_price,omitempty"`
	Qty          float64 `json:"qty,omitempty"`
	TrailPct     float64 `json:"trail_pct,omitempty"`
	TrailPrice   float64 `json:"trail_price,omitempty"`
	Tightened    bool    `json:"tightened,omitempty"`
	LastPrice    float64 `json:"last_price,omitempty"`
	ProfitPctEst float64 `json:"profit_pct_est,omitempty"`
	LastBarTime  string  `json:"last_bar_time,omitempty"`
	OpenedAt     int64   `json:"opened_at,omitempty"`
	UpdatedAt    int64   `json:"updated_at,omitempty"`
}

// Open reports whether the position holds a direction.
func (p Position) Open() bool {
	return p.Side == SideLong || p.Side == SideShort
}

// Store maps symbols to positions. The internal mutex only protects map
// access; logical serialization per symbol is the caller's job via the
// Locks table.
type Store struct {
	mu        sync.RWMutex
	positions map[string]Position
	now       func() time.Time
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{
		positions: make(map[string]Position),
		now:       time.Now,
	}
}

// Position returns the current record for a symbol. Unknown symbols read
// as FLAT.
func (s *Store) Position(symbol string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	if !ok {
		return Position{Side: SideFlat}
	}
	return p
}

// SetOpen overwrites the record with a freshly opened position. The
// initial stop price is derived from the entry price and the configured
// initial trail distance.
func (s *Store) SetOpen(symbol string, side Side, entryPrice, qty float64, barTime string, trailPct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	s.positions[symbol] = Position{
		Side:        side,
		EntryPrice:  entryPrice,
		Qty:         qty,
		TrailPct:    trailPct,
		TrailPrice:  risk.TrailStopPrice(string(side), entryPrice, trailPct),
		LastBarTime: barTime,
		OpenedAt:    now,
		UpdatedAt:   now,
	}
}

// SetFlat resets the record to FLAT.
func (s *Store) SetFlat(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[symbol] = Position{
		Side:      SideFlat,
		UpdatedAt: s.now().Unix(),
	}
}

// SetBarTime records the dedup token of the latest accepted signal
// without touching the rest of the position.
func (s *Store) SetBarTime(symbol, barTime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return
	}
	p.LastBarTime = barTime
	p.UpdatedAt = s.now().Unix()
	s.positions[symbol] = p
}

// UpdateTrail refreshes the trailing fields after a sweep iteration.
func (s *Store) UpdateTrail(symbol string, trailPct, trailPrice, lastPrice, profitPct float64, tightened bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok || !p.Open() {
		return
	}
	p.TrailPct = trailPct
	p.TrailPrice = trailPrice
	p.LastPrice = lastPrice
	p.ProfitPctEst = profitPct
	p.Tightened = tightened
	p.UpdatedAt = s.now().Unix()
	s.positions[symbol] = p
}

// Snapshot copies all records for state export.
func (s *Store) Snapshot() map[string]Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Position, len(s.positions))
	for sym, p := range s.positions {
		out[sym] = p
	}
	return out
}
