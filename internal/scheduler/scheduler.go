package scheduler

import (
	"context"
	"log/slog"
	"time"

	"storyteller/internal/domain"
)

// Reporter builds a reading report.
type Reporter interface {
	Report(ctx context.Context) (*domain.ReadingReport, error)
}

type Scheduler struct {
	reporter Reporter
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(reporter Reporter, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reporter: reporter,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start reports once immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runReport(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runReport(ctx)
		}
	}
}

func (s *Scheduler) runReport(ctx context.Context) {
	reportCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.reporter.Report(reportCtx); err != nil {
		s.logger.Error("report failed", "error", err)
	}
}
