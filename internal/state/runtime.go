package state

import (
	"sync"
	"time"
)

// ReconcileKey is the audit pseudo-symbol under which reconciliation
// attempts are recorded.
const ReconcileKey = "__reconcile__"

// SignalRecord is the most recent observed signal for a symbol.
type SignalRecord struct {
	Action    string `json:"action"`
	BarTime   string `json:"bar_time,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Ts        int64  `json:"ts"`
	Raw       any    `json:"raw,omitempty"`
}

// ActionRecord is the most recent executed action for a symbol.
type ActionRecord struct {
	Action string `json:"action"`
	Ts     int64  `json:"ts"`
	Detail any    `json:"detail,omitempty"`
}

// RuntimeSnapshot is the exported view of the control plane.
type RuntimeSnapshot struct {
	Paused          bool                    `json:"paused"`
	PauseReason     string                  `json:"pause_reason"`
	CloseOnly       bool                    `json:"close_only"`
	LastSignal      map[string]SignalRecord `json:"last_signal"`
	LastAction      map[string]ActionRecord `json:"last_action"`
	LastReconcileTs int64                   `json:"last_reconcile_ts,omitempty"`
}

// Runtime is the process-wide control plane: pause and close-only flags
// plus the last-signal/last-action audit trail. Reads and writes are
// low-frequency, so a single RWMutex is enough.
type Runtime struct {
	mu            sync.RWMutex
	paused        bool
	pauseReason   string
	closeOnly     bool
	lastSignal    map[string]SignalRecord
	lastAction    map[string]ActionRecord
	lastReconcile int64
	now           func() time.Time
}

// NewRuntime creates a control plane with all flags cleared.
func NewRuntime() *Runtime {
	return &Runtime{
		lastSignal: make(map[string]SignalRecord),
		lastAction: make(map[string]ActionRecord),
		now:        time.Now,
	}
}

// SetPaused flips the pause flag and returns the new values.
func (r *Runtime) SetPaused(paused bool, reason string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
	r.pauseReason = reason
	if !paused {
		r.pauseReason = ""
	}
	return r.paused, r.pauseReason
}

// Paused returns the pause flag and its reason.
func (r *Runtime) Paused() (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused, r.pauseReason
}

// SetCloseOnly flips close-only mode and returns the new value.
func (r *Runtime) SetCloseOnly(closeOnly bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeOnly = closeOnly
	return r.closeOnly
}

// CloseOnly reports whether only position-reducing actions are allowed.
func (r *Runtime) CloseOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closeOnly
}

// RecordSignal stores the latest observed signal for a symbol. Recorded
// unconditionally, before any decision about the signal is made.
func (r *Runtime) RecordSignal(symbol, action, barTime, timeframe string, raw any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSignal[symbol] = SignalRecord{
		Action:    action,
		BarTime:   barTime,
		Timeframe: timeframe,
		Ts:        r.now().Unix(),
		Raw:       raw,
	}
}

// RecordAction stores the latest executed action for a symbol.
func (r *Runtime) RecordAction(symbol, action string, detail any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAction[symbol] = ActionRecord{
		Action: action,
		Ts:     r.now().Unix(),
		Detail: detail,
	}
}

// SetLastReconcile records when the last reconciliation ran.
func (r *Runtime) SetLastReconcile(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReconcile = ts
}

// Snapshot copies the control plane for state export.
func (r *Runtime) Snapshot() RuntimeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	signals := make(map[string]SignalRecord, len(r.lastSignal))
	for k, v := range r.lastSignal {
		signals[k] = v
	}
	actions := make(map[string]ActionRecord, len(r.lastAction))
	for k, v := range r.lastAction {
		actions[k] = v
	}
	return RuntimeSnapshot{
		Paused:          r.paused,
		PauseReason:     r.pauseReason,
		CloseOnly:       r.closeOnly,
		LastSignal:      signals,
		LastAction:      actions,
		LastReconcileTs: r.lastReconcile,
	}
}
