// Package monitor exposes Prometheus collectors for the signal engine.
// Collectors are registered on the default registry in init() and served
// by the /metrics route.
package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// signalsTotal counts webhook signals by outcome (opened|closed|reversed|ignored|error).
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_total",
			Help: "Signals processed, by outcome.",
		},
		[]string{"result"},
	)

	// ordersTotal counts orders submitted to the venue.
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders submitted, by kind (open|close) and side (buy|sell).",
		},
		[]string{"kind", "side"},
	)

	// fillTimeouts counts fill polls that expired without a terminal state.
	fillTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_fill_timeouts_total",
			Help: "Order fill confirmations that timed out.",
		},
	)

	// closesUnconfirmed counts closes the venue did not confirm in time.
	closesUnconfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "closes_unconfirmed_total",
			Help: "Close orders without confirmed fill; state left unchanged.",
		},
	)

	// reconcilesTotal counts reconciliation passes by trigger and outcome.
	reconcilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciles_total",
			Help: "Reconciliation passes, by trigger reason and success.",
		},
		[]string{"trigger", "ok"},
	)

	// trailingStopHits counts closes initiated by the trailing stop.
	trailingStopHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trailing_stop_hits_total",
			Help: "Positions closed by the trailing stop.",
		},
	)

	// openPositions reflects the current local book (1 = open, 0 = flat).
	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "open_positions",
			Help: "Whether a position is open per symbol.",
		},
		[]string{"symbol"},
	)

	// webhookRequests counts webhook HTTP responses by status code.
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook requests, by HTTP status code.",
		},
		[]string{"code"},
	)

	// exchangeErrors counts venue call failures by operation.
	exchangeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_errors_total",
			Help: "Exchange API failures, by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal, ordersTotal, reconcilesTotal)
	prometheus.MustRegister(fillTimeouts, closesUnconfirmed, trailingStopHits)
	prometheus.MustRegister(openPositions, webhookRequests, exchangeErrors)
}

func IncSignal(result string)    { signalsTotal.WithLabelValues(result).Inc() }
func IncOrder(kind, side string) { ordersTotal.WithLabelValues(kind, side).Inc() }
func IncFillTimeout()            { fillTimeouts.Inc() }
func IncCloseUnconfirmed()       { closesUnconfirmed.Inc() }
func IncTrailingStopHit()        { trailingStopHits.Inc() }
func IncExchangeError(op string) { exchangeErrors.WithLabelValues(op).Inc() }
func IncWebhookRequest(code int) { webhookRequests.WithLabelValues(strconv.Itoa(code)).Inc() }

func IncReconcile(trigger string, ok bool) {
	reconcilesTotal.WithLabelValues(trigger, strconv.FormatBool(ok)).Inc()
}

// SetPositionOpen flips the per-symbol gauge when the local book changes.
func SetPositionOpen(symbol string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	openPositions.WithLabelValues(symbol).Set(v)
}
