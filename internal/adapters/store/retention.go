package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type cleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// retention periodically purges messages older than the retention window
type retention struct {
	window      time.Duration
	cleanupFreq time.Duration
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func newRetention(window, cleanupFreq time.Duration, logger *zap.Logger) *retention {
	if cleanupFreq <= 0 {
		cleanupFreq = time.Hour
	}
	return &retention{
		window:      window,
		cleanupFreq: cleanupFreq,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// start runs the cleanup task; without a retention window nothing is purged
func (r *retention) start(c cleaner) {
	if r.window <= 0 {
		close(r.doneCh)
		return
	}
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.cleanupFreq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, err := c.Cleanup(context.Background(), time.Now().Add(-r.window))
				if err != nil {
					r.logger.Error("Failed to purge expired messages", zap.Error(err))
					continue
				}
				r.logger.Debug("Purged expired messages", zap.Int64("removed_count", removed))
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *retention) stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
}
