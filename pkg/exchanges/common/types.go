package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus normalizes venue order state into a small set.
type OrderStatus string

const (
	StatusLive     OrderStatus = "live"
	StatusPartial  OrderStatus = "partially_filled"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
	StatusUnknown  OrderStatus = "unknown"
)

// Filled reports whether the order executed completely.
func (s OrderStatus) Filled() bool {
	return s == StatusFilled
}

// Terminal reports whether the venue will not change this status again.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled
}

// PosSide is the venue-reported direction of an open position.
// Normalized to upper-case LONG/SHORT; empty means the direction could
// not be attributed unambiguously and the position should be skipped.
type PosSide string

const (
	PosLong  PosSide = "LONG"
	PosShort PosSide = "SHORT"
)

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	Symbol     string
	Type       OrderType
	Side       Side
	Qty        float64
	Price      float64 // required for limit orders
	ClientID   string  // optional client order id
	TdMode     string  // cross / isolated
	PosSide    string  // long / short, net-mode venues accept "net"
	ReduceOnly bool
}

// Order is the venue's view of a submitted order.
type Order struct {
	ID       string
	ClientID string
	Symbol   string
	Status   OrderStatus
	Qty      float64 // requested quantity
	Filled   float64 // cumulative filled quantity
	AvgPrice float64 // average fill price, 0 when unknown
	Created  time.Time
}

// Position is one authoritative venue position.
type Position struct {
	Symbol     string
	Side       PosSide
	Qty        float64 // absolute size in base units
	EntryPrice float64 // 0 when the venue did not report it
	MarkPrice  float64
	Leverage   int
}
