package engine

import (
	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/state"
)

// Signal is a validated, normalized trading signal entering the engine.
// Symbol is canonical and allow-listed; Action is BUY or SELL. Raw keeps
// the sender's payload for the audit trail.
type Signal struct {
	Symbol    string
	Action    string
	BarTime   string
	Timeframe string
	Raw       any
}

// Result is the outcome of one signal decision.
type Result struct {
	Ignored     bool   `json:"ignored,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PauseReason string `json:"pause_reason,omitempty"`
	Action      string `json:"action,omitempty"`
	Detail      any    `json:"detail,omitempty"`
}

// ReverseDetail carries both legs of a reversal.
type ReverseDetail struct {
	Closed *order.CloseResult `json:"closed"`
	Opened *order.OpenResult  `json:"opened,omitempty"`
}

// SignalEvent is the payload published for accepted and ignored signals.
type SignalEvent struct {
	Symbol string  `json:"symbol"`
	Action string  `json:"action"`
	Result *Result `json:"result,omitempty"`
}

// PauseState is the response to a pause control change.
type PauseState struct {
	Paused bool   `json:"paused"`
	Reason string `json:"reason"`
}

// CloseOnlyState is the response to a close-only control change.
type CloseOnlyState struct {
	CloseOnly bool `json:"close_only"`
}

// ConfigSummary is the configuration excerpt exported with the state
// snapshot for dashboards.
type ConfigSummary struct {
	Symbols              []string `json:"symbols"`
	Leverage             int      `json:"leverage"`
	MarginMode           string   `json:"margin_mode"`
	PollIntervalSec      int      `json:"poll_interval_sec"`
	ReconcileIntervalSec int      `json:"reconcile_interval_sec"`
}

// Snapshot is the exported engine state served by /state and streamed
// over the websocket.
type Snapshot struct {
	Runtime   state.RuntimeSnapshot     `json:"runtime"`
	Positions map[string]state.Position `json:"positions"`
	Config    ConfigSummary             `json:"config_summary"`
}
