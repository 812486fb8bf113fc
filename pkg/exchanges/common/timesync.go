package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock estimates the offset between the local clock and a venue's
// clock. Venues reject signed requests whose timestamp drifts too far
// from their own time, so signing paths should read time through Now.
type Clock struct {
	fetch        func(ctx context.Context) (time.Time, error)
	log          *zap.Logger
	syncInterval time.Duration

	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a venue clock fed by fetch.
func NewClock(fetch func(ctx context.Context) (time.Time, error), log *zap.Logger) *Clock {
	return &Clock{
		fetch:        fetch,
		log:          log,
		syncInterval: 30 * time.Minute,
	}
}

// Sync samples the venue clock once, assuming symmetric network latency.
func (c *Clock) Sync(ctx context.Context) error {
	before := time.Now()
	venue, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	rtt := time.Since(before)
	local := before.Add(rtt / 2)

	c.mu.Lock()
	c.offset = venue.Sub(local)
	offset := c.offset
	c.mu.Unlock()

	c.log.Debug("venue clock synced",
		zap.Duration("offset", offset),
		zap.Duration("rtt", rtt))
	return nil
}

// Start blocks, re-syncing periodically until ctx is canceled. A failed
// sync keeps the previous offset; before the first success the offset
// is zero and Now is plain local time.
func (c *Clock) Start(ctx context.Context) {
	if err := c.Sync(ctx); err != nil {
		c.log.Warn("initial venue clock sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil {
				c.log.Warn("venue clock sync failed", zap.Error(err))
			}
		}
	}
}

// Now returns the current time shifted by the estimated venue offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}
