package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/metrics"
)

// Reconciler receives the ingestor's decoded bets. All three callbacks run on
// the ingestor goroutine, in order.
type Reconciler interface {
	OnBetCreated(ctx context.Context, bet domain.Bet) error
	OnDuplicateBet(ctx context.Context, bet domain.Bet) error
	OnCycleFinished(ctx context.Context) error
}

// IngestState is the ingestor's position relative to the chain head.
type IngestState int

const (
	StateCatchingUp IngestState = iota
	StateLive
)

func (s IngestState) String() string {
	if s == StateLive {
		return "LIVE"
	}
	return "CATCHING_UP"
}

// IngestorConfig tunes the ingest loop.
type IngestorConfig struct {
	FirstBlock   uint64        // watermark used before anything was processed
	PollInterval time.Duration // pause between LIVE polls
	RetryBackoff time.Duration // pause after a failed batch
	ChainTimeout time.Duration // per-call timeout for log queries
}

// IngestStatus is a point-in-time view of the ingestor.
type IngestStatus struct {
	State     string    `json:"state"`
	Cursor    uint64    `json:"cursor"`
	Watermark uint64    `json:"watermark"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Ingestor polls BetPlaced logs, records new bets in the ledger and drives
// the reconciler. It starts CATCHING_UP from the stored watermark and turns
// LIVE once a batch reaches the safe head; it never goes back.
type Ingestor struct {
	chain      domain.ChainGateway
	ledger     domain.Ledger
	reconciler Reconciler
	cfg        IngestorConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	state     IngestState
	cursor    uint64 // next block to scan
	started   bool
	watermark uint64
	lastCycle time.Time
	lastErr   string
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	chain domain.ChainGateway,
	ledger domain.Ledger,
	reconciler Reconciler,
	cfg IngestorConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ingestor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	return &Ingestor{
		chain:      chain,
		ledger:     ledger,
		reconciler: reconciler,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With(slog.String("component", "ingestor")),
		now:        time.Now,
	}
}

// State returns the current ingest state.
func (in *Ingestor) State() IngestState {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state
}

// Status returns a snapshot for the status endpoint.
func (in *Ingestor) Status() IngestStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return IngestStatus{
		State:     in.state.String(),
		Cursor:    in.cursor,
		Watermark: in.watermark,
		LastCycle: in.lastCycle,
		LastError: in.lastErr,
	}
}

// RunLoop processes batches until ctx is cancelled. While catching up,
// batches run back to back; once live, one poll per PollInterval.
func (in *Ingestor) RunLoop(ctx context.Context) error {
	in.logger.Info("ingestor starting",
		slog.Uint64("first_block", in.cfg.FirstBlock),
		slog.Duration("poll_interval", in.cfg.PollInterval),
	)

	for {
		wait := time.Duration(0)
		if err := in.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			in.logger.Error("ingest batch failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", in.cfg.RetryBackoff),
			)
			wait = in.cfg.RetryBackoff
		} else if in.State() == StateLive {
			wait = in.cfg.PollInterval
		}

		if wait == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ctx.Done():
			in.logger.Info("ingestor stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Step fetches and processes one batch. A failed fetch or ledger write
// aborts the batch without advancing the watermark; the next Step retries
// from the same block.
func (in *Ingestor) Step(ctx context.Context) error {
	start := in.now()
	err := in.step(ctx)

	in.mu.Lock()
	in.lastCycle = start
	if err != nil {
		in.lastErr = err.Error()
	} else {
		in.lastErr = ""
	}
	in.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	in.metrics.IngestCycle(result, in.now().Sub(start))
	return err
}

func (in *Ingestor) step(ctx context.Context) error {
	from, err := in.nextBlock(ctx)
	if err != nil {
		return err
	}

	fetchCtx, cancel := in.withChainTimeout(ctx)
	batch, err := in.chain.FetchBetPlaced(fetchCtx, from)
	cancel()
	if err != nil {
		return fmt.Errorf("pipeline: fetch logs from %d: %w", from, err)
	}

	for _, raw := range batch.Logs {
		bet, err := DecodeBetPlaced(raw, in.now())
		if err != nil {
			in.metrics.BetIngested("malformed")
			in.logger.Warn("skipping undecodable log",
				slog.Uint64("block", raw.BlockNumber),
				slog.String("error", err.Error()),
			)
			continue
		}

		inserted, err := in.ledger.InsertIdempotent(ctx, bet)
		if err != nil {
			return fmt.Errorf("pipeline: record bet %d: %w", bet.ID, err)
		}

		if inserted {
			in.metrics.BetIngested("new")
			in.logger.Info("bet placed",
				slog.Int64("bet_id", bet.ID),
				slog.String("direction", bet.Direction.String()),
				slog.String("amount", bet.PositionSize().String()),
				slog.Uint64("block", bet.BlockNumber),
			)
			if err := in.reconciler.OnBetCreated(ctx, bet); err != nil {
				in.logger.Error("bet creation handling failed",
					slog.Int64("bet_id", bet.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		in.metrics.BetIngested("duplicate")
		in.logger.Warn("bet already exists, cleaning up orders", slog.Int64("bet_id", bet.ID))
		if err := in.reconciler.OnDuplicateBet(ctx, bet); err != nil {
			in.logger.Error("duplicate bet cleanup failed",
				slog.Int64("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := in.reconciler.OnCycleFinished(ctx); err != nil {
		in.logger.Error("cycle reconciliation failed", slog.String("error", err.Error()))
	}

	if len(batch.Logs) > 0 {
		highest := batch.MaxBlock()
		if err := in.ledger.SetWatermarkAtLeast(ctx, highest); err != nil {
			return fmt.Errorf("pipeline: advance watermark to %d: %w", highest, err)
		}
		in.mu.Lock()
		if highest > in.watermark {
			in.watermark = highest
		}
		wm := in.watermark
		in.mu.Unlock()
		in.metrics.Watermark(wm)
	}

	in.advance(batch)
	return nil
}

// nextBlock returns the first block of the next query. The first call seeds
// the cursor from the persisted watermark.
func (in *Ingestor) nextBlock(ctx context.Context) (uint64, error) {
	in.mu.RLock()
	started, cursor := in.started, in.cursor
	in.mu.RUnlock()
	if started {
		return cursor, nil
	}

	wm, err := in.ledger.GetWatermark(ctx, in.cfg.FirstBlock)
	if err != nil {
		return 0, fmt.Errorf("pipeline: load watermark: %w", err)
	}

	in.mu.Lock()
	in.started = true
	in.watermark = wm
	in.cursor = wm + 1
	in.mu.Unlock()

	in.metrics.Watermark(wm)
	in.logger.Info("log filtering starts", slog.Uint64("block", wm+1))
	return wm + 1, nil
}

// advance moves the scan cursor past the batch and flips to LIVE once the
// batch reached the safe head.
func (in *Ingestor) advance(batch domain.LogBatch) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if next := batch.ToBlock + 1; next > in.cursor {
		in.cursor = next
	}
	if in.state == StateCatchingUp && batch.CaughtUp() {
		in.state = StateLive
		in.metrics.IngestLive(true)
		in.logger.Info("ingestor is live", slog.Uint64("block", batch.ToBlock))
	}
}

func (in *Ingestor) withChainTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if in.cfg.ChainTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, in.cfg.ChainTimeout)
}

