// Package app wires the bet bridge together and runs it: the ingestor with
// its reconciler, the stale-bet sweeper, the event journal and the status
// server, all under one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betbridge/internal/config"
	"github.com/alanyoungcy/betbridge/internal/pipeline"
	"github.com/alanyoungcy/betbridge/internal/server"
	"github.com/alanyoungcy/betbridge/internal/server/handler"
	"github.com/alanyoungcy/betbridge/internal/service"
)

// Version is stamped at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// App owns the configuration, the logger and the cleanup functions run on
// shutdown in reverse order.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies and blocks until ctx is cancelled or a
// sub-system fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("version", Version),
		slog.String("symbol", a.cfg.Exchange.Symbol),
		slog.String("ledger", a.cfg.Ledger.Driver),
		slog.String("lock", a.cfg.Lock.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	hedge := service.HedgeConfig{
		NotionalMultiplier: decimal.NewFromFloat(a.cfg.Exchange.NotionalMultiplier),
		Leverage:           decimal.NewFromInt(int64(a.cfg.Exchange.Leverage)),
		ExchangeTimeout:    a.cfg.Exchange.Timeout.Duration,
		ChainTimeout:       a.cfg.Chain.Timeout.Duration,
		LockTTL:            a.cfg.Lock.TTL.Duration,
	}
	quoter := service.FixedQuoter{
		ClosingPrice: a.cfg.Settlement.ClosingPrice,
		Amount:       a.cfg.Settlement.Amount,
	}

	reconciler := service.NewReconciler(deps.Exchange, deps.Chain, deps.Ledger, deps.Locks,
		deps.Policy, quoter, hedge, deps.Events, deps.Metrics, a.logger)

	ingestor := pipeline.NewIngestor(deps.Chain, deps.Ledger, reconciler, pipeline.IngestorConfig{
		FirstBlock:   a.cfg.Chain.FirstBlock,
		PollInterval: a.cfg.Ingest.PollInterval.Duration,
		RetryBackoff: a.cfg.Ingest.RetryBackoff.Duration,
		ChainTimeout: a.cfg.Chain.Timeout.Duration,
	}, deps.Metrics, a.logger)

	var sweeper pipeline.Sweeper
	if a.cfg.Sweeper.Enabled {
		sweeper = service.NewSweeper(deps.Ledger, deps.Exchange, deps.Chain, deps.Locks,
			hedge, a.cfg.Algo.BetTimeout.Duration, deps.Events, deps.Metrics, a.logger)
	}
	var journal pipeline.Flusher
	if deps.Journal != nil {
		journal = deps.Journal
	}

	orch := pipeline.NewOrchestrator(ingestor, sweeper, journal, a.cfg.Sweeper.Interval.Duration, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(gctx)
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, ingestor)
	}
	return g.Wait()
}

// startHTTPServer adds the status server and its shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, ingestor *pipeline.Ingestor) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(ingestor, a.cfg.Exchange.Symbol, Version),
		Bets:    handler.NewBetHandler(deps.Ledger, a.logger),
		Metrics: deps.Metrics.Handler(),
		Live:    deps.Hub,
	}
	if deps.EventStream != nil {
		handlers.Events = handler.NewEventHandler(deps.EventStream, a.logger)
	}

	srv := server.New(server.Config{
		Port:              a.cfg.Server.Port,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
		Burst:             a.cfg.Server.Burst,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}

// Close runs the cleanup functions in reverse order. Later calls do nothing.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
