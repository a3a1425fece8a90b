package core

// scheduler.go purges expired run history in the background. It runs once on
// start and then every CheckInterval until the context is cancelled. A failed
// purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls run history purging.
type RetentionConfig struct {
	RetentionDays int           // Days to keep runs (default: 30)
	CheckInterval time.Duration // How often to purge (default: 6h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 6 * time.Hour
	}
	return c
}

// StartRetentionScheduler blocks, purging runs older than the retention
// window on every tick. Call it in its own goroutine.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	slog.Info("retention scheduler started",
		"retention_days", cfg.RetentionDays,
		"check_interval", cfg.CheckInterval,
	)

	s.purgeExpiredRuns(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.purgeExpiredRuns(ctx, cfg)
		}
	}
}

// purgeExpiredRuns performs one purge and returns the number of runs removed.
func (s *Service) purgeExpiredRuns(ctx context.Context, cfg RetentionConfig) int64 {
	start := time.Now()
	cutoff := s.now().UTC().AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.store.Purge(ctx, cutoff)
	if err != nil {
		slog.Error("run history purge failed", "error", err)
		return 0
	}
	runsPurged.Add(float64(purged))
	slog.Info("purged run history",
		"runs_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
