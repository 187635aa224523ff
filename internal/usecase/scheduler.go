package usecase

import (
	"context"
	"log/slog"
	"time"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case. Each trigger
// scans the trigger's calendar day for the configured origins.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	origins  []domain.OriginCode
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, origins []domain.OriginCode, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, origins: origins, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.runDay(ctx, trigger)
	})
}

func (s *Scheduler) runDay(ctx context.Context, trigger time.Time) {
	day := time.Date(trigger.Year(), trigger.Month(), trigger.Day(), 0, 0, 0, 0, trigger.Location())
	query, err := domain.NewQuery(day, day, s.origins)
	if err != nil {
		s.logger.Error("build scheduled query", "error", err)
		return
	}
	if _, err := s.pipeline.Run(ctx, query); err != nil {
		s.logger.Error("scheduled run failed", "query", query.String(), "error", err)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
