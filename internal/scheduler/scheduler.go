package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/tourney/internal/service"
	"github.com/go-co-op/gocron/v2"
)

type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// Scheduler runs the readiness sweep on a fixed interval. A sweep that is still
// running when the next one is due causes that run to be skipped.
type Scheduler struct {
	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func New(interval time.Duration, sweeper Sweeper, logger *slog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: cron, ctx: ctx, cancel: cancel, logger: logger}

	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep, sweeper),
		gocron.WithName("readiness-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = cron.Shutdown()
		return nil, fmt.Errorf("failed to register readiness sweep: %w", err)
	}
	return s, nil
}

func (s *Scheduler) sweep(sweeper Sweeper) {
	report, err := sweeper.Sweep(s.ctx)
	if err != nil {
		s.logger.Error("readiness sweep failed", "error", err)
		return
	}
	if len(report.Failed) > 0 {
		s.logger.Warn("some brackets could not be generated", "failed", len(report.Failed))
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop cancels a running sweep and waits for it to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.cron.Shutdown()
}
