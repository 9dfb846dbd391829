package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Refresher reloads the order cache from the system of record.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SyncWorker periodically replaces the cache with a full fetch, picking up
// changes made outside this service.
type SyncWorker struct {
	cache    Refresher
	interval time.Duration
	timeout  time.Duration
}

func NewSyncWorker(cache Refresher, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SyncWorker{
		cache:    cache,
		interval: interval,
		timeout:  interval,
	}
}

// Start blocks until ctx is cancelled.
func (w *SyncWorker) Start(ctx context.Context) {
	slog.Info("starting sync worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

func (w *SyncWorker) sync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.cache.Refresh(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		slog.Error("order sync failed", "error", err)
		return
	}
	slog.Debug("orders synced", "took", time.Since(start))
}
