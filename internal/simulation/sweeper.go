package simulation

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically abandons
// sessions idle past ttl. It stops when ctx is cancelled.
func StartSweeper(ctx context.Context, engine *Service, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				closed, err := engine.AbandonExpired(ctx, ttl)
				if err != nil {
					slog.Error("session sweep failed", "error", err)
					continue
				}
				if closed > 0 {
					slog.Info("swept idle sessions", "closed", closed)
				}
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
