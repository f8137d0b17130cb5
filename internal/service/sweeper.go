package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betbridge/internal/bracket"
	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/metrics"
)

// Sweeper expires bets that stayed open past the bet timeout. Under the bet
// lock the ledger is re-read and the TIMEOUT outcome claimed first; only then
// is the contract told the bet is canceled, the brackets pulled and the
// position closed at market.
type Sweeper struct {
	ledger   domain.Ledger
	exchange domain.ExchangeGateway
	chain    domain.ChainGateway
	locks    domain.LockManager
	cfg      HedgeConfig
	timeout  time.Duration
	events   publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper for bets older than betTimeout. events and m
// may be nil.
func NewSweeper(
	ledger domain.Ledger,
	exchange domain.ExchangeGateway,
	chain domain.ChainGateway,
	locks domain.LockManager,
	cfg HedgeConfig,
	betTimeout time.Duration,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Sweeper {
	logger = logger.With(slog.String("component", "sweeper"))
	return &Sweeper{
		ledger:   ledger,
		exchange: exchange,
		chain:    chain,
		locks:    locks,
		cfg:      cfg,
		timeout:  betTimeout,
		events:   publisher{sink: events, logger: logger, now: time.Now},
		metrics:  m,
		logger:   logger,
	}
}

// RunLoop sweeps on every tick of interval until ctx is cancelled.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep expires every stale bet once and returns how many it expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.ledger.QueryStale(ctx, s.timeout)
	if err != nil {
		return 0, fmt.Errorf("service: query stale bets: %w", err)
	}

	expired := 0
	for _, bet := range stale {
		ok, err := s.expire(ctx, bet)
		if err != nil {
			s.logger.ErrorContext(ctx, "bet expiry failed",
				slog.Int64("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "stale bets expired", slog.Int("count", expired))
	}
	return expired, nil
}

func (s *Sweeper) expire(ctx context.Context, bet domain.Bet) (bool, error) {
	unlock, err := s.locks.Acquire(ctx, domain.BetLockKey(bet.ID), s.cfg.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.InfoContext(ctx, "bet busy, expiring next sweep", slog.Int64("bet_id", bet.ID))
			return false, nil
		}
		return false, fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	// The stale snapshot was read before the lock; settlement may have won
	// the race since.
	current, err := s.ledger.GetBet(ctx, bet.ID)
	if err != nil {
		return false, fmt.Errorf("reload bet: %w", err)
	}
	if current.Resolved() {
		s.logger.InfoContext(ctx, "bet resolved since stale query, sweep stops",
			slog.Int64("bet_id", bet.ID),
			slog.String("outcome", current.Outcome.String()),
		)
		return false, nil
	}
	bet = current

	updated, err := s.ledger.UpdateOutcome(ctx, bet.ID, domain.OutcomeTimeout)
	if err != nil {
		return false, fmt.Errorf("record timeout: %w", err)
	}
	if !updated {
		s.logger.InfoContext(ctx, "bet resolved elsewhere, sweep stops", slog.Int64("bet_id", bet.ID))
		return false, nil
	}
	s.metrics.BetResolved(domain.OutcomeTimeout.String())

	cctx, cancel := withTimeout(ctx, s.cfg.ChainTimeout)
	err = s.chain.CancelBet(cctx, bet.ID)
	cancel()
	if err != nil {
		s.metrics.ChainCall("betCanceled", "error")
		s.logger.ErrorContext(ctx, "bet cancel call failed",
			slog.Int64("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.metrics.ChainCall("betCanceled", "ok")
	}

	_ = cancelLegs(ctx, s.exchange, s.cfg.ExchangeTimeout, s.logger, bet.ID,
		domain.RoleStopLoss, domain.RoleTakeProfit)

	if err := s.flatten(ctx, bet); err != nil {
		s.logger.ErrorContext(ctx, "flatten failed",
			slog.Int64("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bet expired", slog.Int64("bet_id", bet.ID))
	s.events.emit(ctx, domain.EventBetExpired, bet.ID, domain.OutcomeTimeout.String(), "open past "+s.timeout.String())
	return true, nil
}

// flatten closes the hedge with a reduce-only market order sized like the
// entry, on its own client-order-id.
func (s *Sweeper) flatten(ctx context.Context, bet domain.Bet) error {
	id, err := bracket.EncodeBet(bet.ID, domain.RoleFlatten)
	if err != nil {
		return err
	}

	ectx, cancel := withTimeout(ctx, s.cfg.ExchangeTimeout)
	fill, err := s.exchange.PlaceEntryOrder(ectx, domain.EntryRequest{
		ClientOrderID: id,
		Side:          bet.Direction.EntrySide().Opposite(),
		Notional:      s.cfg.Notional(bet),
		ReduceOnly:    true,
	})
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateClientOrderID) {
			s.metrics.Order(domain.RoleFlatten.String(), "duplicate")
			return nil
		}
		s.metrics.Order(domain.RoleFlatten.String(), "error")
		return err
	}
	s.metrics.Order(domain.RoleFlatten.String(), "ok")
	s.logger.InfoContext(ctx, "position flattened",
		slog.Int64("bet_id", bet.ID),
		slog.String("client_order_id", id),
		slog.String("side", string(fill.Side)),
		slog.String("quantity", fill.ExecutedQty.String()),
	)
	return nil
}
