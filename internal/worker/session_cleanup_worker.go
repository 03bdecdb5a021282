package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionSweeper removes expired session records.
type SessionSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StartSessionCleanupWorker sweeps expired sessions every interval until ctx is done.
// The returned channel closes once the loop has exited.
func StartSessionCleanupWorker(ctx context.Context, sweeper SessionSweeper, interval, timeout time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if sweeper == nil || interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepOnce(ctx, sweeper, timeout, logger)
			}
		}
	}()
	return done
}

func sweepOnce(ctx context.Context, sweeper SessionSweeper, timeout time.Duration, logger *zap.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	removed, err := sweeper.CleanupExpired(ctx)
	if err != nil {
		logger.Warn("session cleanup failed", zap.String("event", "session_cleanup_failed"), zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("expired sessions removed", zap.Int64("count", removed))
	}
}
