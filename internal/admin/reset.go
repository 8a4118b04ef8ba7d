// Package admin provides administrative operations on the run history.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ResetTimeout is the maximum duration for a history maintenance operation.
const ResetTimeout = 30 * time.Second

// History is the part of the store that maintenance needs.
type History interface {
	DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error)
	DeleteAllRuns(ctx context.Context) error
}

// ResetHistory handles run history cleanup.
type ResetHistory struct {
	DB     History
	Logger *slog.Logger
	Now    func() time.Time
}

// Prune deletes runs older than retention and returns how many went.
func (r *ResetHistory) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	cutoff := r.now().Add(-retention)
	n, err := r.DB.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger().Info("pruned run history", "cutoff", cutoff, "deleted", n)
	return n, nil
}

// ResetAll deletes every stored run.
// This is a destructive operation - use with caution.
func (r *ResetHistory) ResetAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	if err := r.DB.DeleteAllRuns(ctx); err != nil {
		return err
	}
	r.logger().Warn("run history reset")
	return nil
}

func (r *ResetHistory) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *ResetHistory) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
