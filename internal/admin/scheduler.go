package admin

// scheduler.go prunes expired runs in the background. It runs once on start
// and then every interval until ctx is cancelled. A failed prune is logged
// and retried on the next tick; it never stops the server.

import (
	"context"
	"time"
)

// StartPruneScheduler blocks, deleting runs older than retention every
// interval. Call it in its own goroutine.
func (r *ResetHistory) StartPruneScheduler(ctx context.Context, retention, interval time.Duration) {
	logger := r.logger()
	logger.Info("history prune scheduler started", "retention", retention, "interval", interval)

	r.runPruneJob(ctx, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history prune scheduler stopped")
			return
		case <-ticker.C:
			r.runPruneJob(ctx, retention)
		}
	}
}

func (r *ResetHistory) runPruneJob(ctx context.Context, retention time.Duration) {
	start := time.Now()
	if _, err := r.Prune(ctx, retention); err != nil {
		r.logger().Error("history prune failed", "error", err)
		return
	}
	r.logger().Debug("history prune job completed", "duration_ms", time.Since(start).Milliseconds())
}
