package common

import "context"

// Gateway abstracts a trading venue.
//
// All calls may fail transiently; callers decide per call site whether to
// retry (price reads), swallow (leverage setup) or fall back to a
// reconciliation pass (unconfirmed closes). Implementations must be safe
// for concurrent use.
type Gateway interface {
	// FetchTicker returns the latest traded price for a canonical symbol.
	FetchTicker(ctx context.Context, symbol string) (float64, error)

	// CreateOrder submits an order and returns the venue ack. The returned
	// order carries at least the venue order ID.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// FetchOrder returns the current status of a previously submitted order.
	FetchOrder(ctx context.Context, orderID, symbol string) (*Order, error)

	// FetchPositions lists open positions. A nil or empty symbols slice
	// requests all positions; implementations that cannot filter
	// server-side may ignore the argument.
	FetchPositions(ctx context.Context, symbols []string) ([]Position, error)

	// SetLeverage configures leverage for a symbol under the given margin
	// mode. Best-effort: callers treat failures as non-fatal.
	SetLeverage(ctx context.Context, symbol string, leverage int, marginMode string) error
}
