// Package worker runs the server's background maintenance jobs.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Job is one run of a maintenance task. It returns the number of items it processed.
type Job func(ctx context.Context) (int, error)

// Periodic runs a Job on a fixed interval until its context is done.
type Periodic struct {
	name     string
	interval time.Duration
	job      Job
	logger   *slog.Logger
}

// NewPeriodic creates a Periodic worker.
func NewPeriodic(name string, interval time.Duration, job Job, logger *slog.Logger) *Periodic {
	return &Periodic{name: name, interval: interval, job: job, logger: logger}
}

// Name returns the worker name.
func (p *Periodic) Name() string {
	return p.name
}

// Start runs the job every interval. A failed run is logged and retried on the next
// tick. Start returns ctx.Err() once ctx is done.
func (p *Periodic) Start(ctx context.Context) error {
	p.logger.Info("starting worker",
		slog.String("worker", p.name),
		slog.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping worker", slog.String("worker", p.name))
			return ctx.Err()
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job a single time.
func (p *Periodic) RunOnce(ctx context.Context) {
	start := time.Now()
	n, err := p.job(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("worker run failed",
			slog.String("worker", p.name),
			slog.Int("processed", n),
			slog.Any("error", err),
		)
		return
	}
	if n > 0 {
		p.logger.Info("worker run completed",
			slog.String("worker", p.name),
			slog.Int("processed", n),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
