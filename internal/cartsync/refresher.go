package cartsync

import (
	"context"
	"sync/atomic"
	"time"

	"storefront/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultRefreshInterval is how often a mirrored cart is re-read from the server.
const DefaultRefreshInterval = 30 * time.Second

type refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher re-reads the cart on a fixed interval. A tick is skipped while
// the previous refresh is still running.
type Refresher struct {
	target   refreshable
	interval time.Duration
	logger   *zap.Logger
	inflight *semaphore.Weighted
	skipped  atomic.Int64
}

func NewRefresher(target refreshable, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		target:   target,
		interval: interval,
		logger:   logging.OrNop(logger).With(zap.String("component", "cart_refresher")),
		inflight: semaphore.NewWeighted(1),
	}
}

// Run blocks until ctx is cancelled and waits for an in-flight refresh to
// return before it does.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = r.inflight.Acquire(context.Background(), 1)
			r.inflight.Release(1)
			return ctx.Err()
		case <-ticker.C:
			if !r.inflight.TryAcquire(1) {
				r.skipped.Add(1)
				r.logger.Debug("refresh still running, skipping tick")
				continue
			}
			go func() {
				defer r.inflight.Release(1)
				if err := r.target.Refresh(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("cart refresh failed", zap.Error(err))
				}
			}()
		}
	}
}

// Skipped reports how many ticks found a refresh already running.
func (r *Refresher) Skipped() int64 {
	return r.skipped.Load()
}
