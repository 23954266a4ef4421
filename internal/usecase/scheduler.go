package usecase

import (
	"context"
	"log/slog"
	"time"

	"ReviewGuard/internal/ports"
)

// Scheduler wires the cron driver with the document refresher. Refreshes only
// add content; the observer decides whether a scan cycle follows.
type Scheduler struct {
	driver    ports.Scheduler
	refresher ports.Refresher
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring refreshes.
func NewScheduler(driver ports.Scheduler, refresher ports.Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, refresher: refresher, logger: logger}
}

// Start registers the refresh job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.refresher == nil {
		return nil
	}

	job := func(trigger time.Time) {
		added, err := s.refresher.Refresh(ctx)
		if err != nil {
			s.logger.Warn("refresh failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Debug("refresh finished", "trigger", trigger, "added", added)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
