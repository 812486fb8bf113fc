package common

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	tickerRetryTries = 3
	tickerRetryDelay = 500 * time.Millisecond
)

// TickerWithRetry reads the latest price with a small bounded retry.
// Momentary network blips are common on price reads; orders are never
// retried this way.
func TickerWithRetry(ctx context.Context, gw Gateway, symbol string) (float64, error) {
	op := func() (float64, error) {
		return gw.FetchTicker(ctx, symbol)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(tickerRetryDelay)),
		backoff.WithMaxTries(tickerRetryTries))
}
