package order

import (
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/pkg/exchanges/common"
)

// OpenResult reports how an open resolved. QtyFilled and AvgPrice are
// venue-reported when available; QtyAssumed marks the conservative
// fallback to the requested size when the venue reported nothing within
// the poll window.
type OpenResult struct {
	Opened       string        `json:"opened"`
	QtyRequested float64       `json:"qty_requested"`
	QtyFilled    float64       `json:"qty_filled"`
	AvgPrice     float64       `json:"avg_price"`
	QtyAssumed   bool          `json:"qty_assumed,omitempty"`
	Timeout      bool          `json:"timeout,omitempty"`
	Order        *common.Order `json:"order,omitempty"`
}

// CloseResult reports how a close resolved. Closed is true only when
// the fill was confirmed (or reached the rounding tolerance); an
// unconfirmed close carries the reconciliation report that re-derived
// local state from the venue.
type CloseResult struct {
	Closed       bool                   `json:"closed"`
	AlreadyFlat  bool                   `json:"already_flat,omitempty"`
	Err          string                 `json:"error,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Side         string                 `json:"side,omitempty"`
	QtyRequested float64                `json:"qty_requested,omitempty"`
	QtyFilled    float64                `json:"qty_filled,omitempty"`
	AvgPrice     float64                `json:"avg_price,omitempty"`
	Timeout      bool                   `json:"timeout,omitempty"`
	Order        *common.Order          `json:"order,omitempty"`
	Reconcile    *reconciliation.Report `json:"reconcile,omitempty"`
}
