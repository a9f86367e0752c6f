// Package scheduler runs the periodic refresh and snapshot jobs.
package scheduler

import (
	"context"
	"log/slog"

	"coinfolio/internal/service"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
}

// New creates a new scheduler
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

// AddJob registers a job with a cron schedule ("@every 15m" etc).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			slog.Error("Job failed", slog.String("job", job.Name()), slog.Any("error", err))
			return
		}
		slog.Debug("Job completed", slog.String("job", job.Name()))
	})
	if err != nil {
		return err
	}

	slog.Info("Job registered", slog.String("schedule", schedule), slog.String("job", job.Name()))
	return nil
}

// RefreshJob updates prices for every holding.
type RefreshJob struct {
	Tracker *service.Tracker
}

func (j *RefreshJob) Name() string { return "refresh_prices" }

func (j *RefreshJob) Run() error {
	_, _, err := j.Tracker.RefreshAllPrices(context.Background())
	return err
}

// SnapshotJob captures a scheduled snapshot for every portfolio.
type SnapshotJob struct {
	Snapshots *service.Snapshots
}

func (j *SnapshotJob) Name() string { return "capture_snapshots" }

func (j *SnapshotJob) Run() error {
	return j.Snapshots.CaptureAll(false)
}
