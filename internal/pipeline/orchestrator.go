package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sweeper expires bets on its own ticker.
type Sweeper interface {
	RunLoop(ctx context.Context, interval time.Duration) error
}

// Flusher periodically drains buffered lifecycle events to cold storage.
type Flusher interface {
	RunLoop(ctx context.Context) error
}

// Orchestrator manages the bridge's long-running goroutines: the log
// ingestor, the stale-bet sweeper and the event journal flusher.
type Orchestrator struct {
	ingestor      *Ingestor
	sweeper       Sweeper // nil when disabled
	journal       Flusher // nil when disabled
	sweepInterval time.Duration
	logger        *slog.Logger
}

// NewOrchestrator creates an Orchestrator. sweeper and journal may be nil.
func NewOrchestrator(
	ingestor *Ingestor,
	sweeper Sweeper,
	journal Flusher,
	sweepInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ingestor:      ingestor,
		sweeper:       sweeper,
		journal:       journal,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Run starts every sub-system as a goroutine in an errgroup. Each respects
// ctx cancellation. If one returns a non-context error the errgroup cancels
// the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("sweeper", o.sweeper != nil),
		slog.Duration("sweep_interval", o.sweepInterval),
		slog.Bool("journal", o.journal != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.ingestor.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ingestor: %w", err)
	})

	if o.sweeper != nil {
		g.Go(func() error {
			o.logger.Info("starting stale bet sweeper loop")
			err := o.sweeper.RunLoop(ctx, o.sweepInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("sweeper: %w", err)
		})
	}

	if o.journal != nil {
		g.Go(func() error {
			o.logger.Info("starting event journal flusher")
			err := o.journal.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("journal: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
