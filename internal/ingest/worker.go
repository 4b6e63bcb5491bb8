// Package ingest keeps the profile pool fresh by reloading it on a schedule.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/cohatch/internal/matching"
)

// PoolReloader rebuilds the profile pool from its source.
type PoolReloader interface {
	Reload(ctx context.Context) (matching.PoolInfo, error)
}

// Worker reloads the pool every interval. A failed reload leaves the
// current pool in place and is retried on the next tick.
type Worker struct {
	pool     PoolReloader
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If interval is <= 0, it defaults to one hour.
func NewWorker(pool PoolReloader, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{
		pool:     pool,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run reloads on every tick until ctx is cancelled. The first reload happens
// one interval after Run starts.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("pool refresh failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single reload.
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()
	info, err := w.pool.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reloading pool: %w", err)
	}
	w.logger.Info("pool refreshed",
		"profiles", info.Profiles,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
