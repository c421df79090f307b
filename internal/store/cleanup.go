package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 1 * time.Hour

// StaleSessionAge is how long an idle session stays on disk before the
// sweeper removes it. Sessions merely past the reuse window are kept (they
// are simply never reloaded); only long-dead ones are deleted.
const StaleSessionAge = 7 * 24 * time.Hour

// StartCleanupWorker runs a background goroutine that periodically deletes
// long-idle chat sessions and their history. It stops when ctx is done.
func StartCleanupWorker(ctx context.Context, repo Repository, olderThan time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("session cleanup worker started", "interval", cleanupWorkerInterval, "max_age", olderThan)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupStaleSessions(ctx, olderThan)
				if err != nil {
					slog.Error("session cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("session cleanup removed stale sessions", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("session cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
