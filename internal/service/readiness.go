package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type EligibleLister interface {
	ListEligibleForGeneration(ctx context.Context, now time.Time) ([]int64, error)
}

type Generator interface {
	GenerateBracket(ctx context.Context, tournamentID int64) (bool, error)
}

type SweepReport struct {
	Eligible  int
	Generated []int64
	Skipped   []int64
	Failed    map[int64]error
}

// ReadinessGate finds tournaments whose registration has closed and hands them to
// the generator. Tournaments are generated concurrently, up to Concurrency at once.
type ReadinessGate struct {
	clock       Clock
	lister      EligibleLister
	generator   Generator
	concurrency int
	logger      *slog.Logger
}

func NewReadinessGate(clock Clock, lister EligibleLister, generator Generator, concurrency int, logger *slog.Logger) *ReadinessGate {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReadinessGate{
		clock:       clock,
		lister:      lister,
		generator:   generator,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Sweep runs one readiness pass. A failure for one tournament is recorded in the
// report and does not stop the others; only a failed lookup fails the sweep.
func (g *ReadinessGate) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Failed: map[int64]error{}}

	ids, err := g.lister.ListEligibleForGeneration(ctx, g.clock.Now())
	if err != nil {
		return report, fmt.Errorf("failed to list tournaments ready for generation: %w", err)
	}
	report.Eligible = len(ids)

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(g.concurrency)

	for _, id := range ids {
		group.Go(func() error {
			generated, err := g.generator.GenerateBracket(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrBracketAlreadyGenerated):
				report.Skipped = append(report.Skipped, id)
			case err != nil:
				g.logger.Error("bracket generation failed", "tournament_id", id, "error", err)
				report.Failed[id] = err
			case generated:
				report.Generated = append(report.Generated, id)
			default:
				report.Skipped = append(report.Skipped, id)
			}
			return nil
		})
	}
	_ = group.Wait()

	if report.Eligible > 0 {
		g.logger.Info("readiness sweep finished",
			"eligible", report.Eligible,
			"generated", len(report.Generated),
			"skipped", len(report.Skipped),
			"failed", len(report.Failed),
		)
	}
	return report, nil
}
