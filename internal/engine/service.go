// Package engine holds the per-symbol signal decision table and the
// admin control operations. The API layer interacts with the engine only
// through the Service interface.
package engine

import (
	"context"

	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/reconciliation"
)

// Service is the engine surface consumed by the HTTP layer.
type Service interface {
	// OnSignal runs one signal through the decision table under the
	// symbol's lock. The returned error covers order placement and
	// sizing failures; every decided outcome, including ignores,
	// arrives as a Result.
	OnSignal(ctx context.Context, sig Signal) (*Result, error)

	// SetPaused flips the global pause flag.
	SetPaused(paused bool, reason string) PauseState

	// SetCloseOnly flips close-only mode.
	SetCloseOnly(closeOnly bool) CloseOnlyState

	// EmergencyClose force-closes one symbol.
	EmergencyClose(ctx context.Context, symbol string) (*order.CloseResult, error)

	// EmergencyCloseAll force-closes every configured symbol. Per-symbol
	// failures are carried in the result map, never raised.
	EmergencyCloseAll(ctx context.Context) map[string]*order.CloseResult

	// Reconcile runs one on-demand reconciliation pass.
	Reconcile(ctx context.Context) *reconciliation.Report

	// StateSnapshot exports runtime flags, positions and a config
	// summary for dashboards.
	StateSnapshot() Snapshot
}
