// Package service holds the bet lifecycle logic: hedging new bets on the
// exchange, settling them when a bracket leg fires and expiring stale ones.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/betbridge/internal/bracket"
	"github.com/alanyoungcy/betbridge/internal/domain"
)

// HedgeConfig sizes exchange positions and bounds every outbound call.
type HedgeConfig struct {
	NotionalMultiplier decimal.Decimal // applied to the bet amount before leverage
	Leverage           decimal.Decimal
	ExchangeTimeout    time.Duration
	ChainTimeout       time.Duration
	LockTTL            time.Duration
}

// Notional is the quote value of the position that hedges bet.
func (c HedgeConfig) Notional(bet domain.Bet) decimal.Decimal {
	mult := c.NotionalMultiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	lev := c.Leverage
	if lev.IsZero() {
		lev = decimal.NewFromInt(1)
	}
	return bet.PositionSize().Mul(mult).Mul(lev)
}

func (c HedgeConfig) lockTTL() time.Duration {
	if c.LockTTL <= 0 {
		return 2 * time.Minute
	}
	return c.LockTTL
}

// SettlementQuoter supplies the closing price and amount reported to the
// contract when a bet settles.
type SettlementQuoter interface {
	Quote(ctx context.Context, bet domain.Bet, outcome domain.Outcome) (closingPrice, amount *big.Int, err error)
}

// FixedQuoter reports the same configured values for every bet.
type FixedQuoter struct {
	ClosingPrice int64
	Amount       int64
}

// Quote implements SettlementQuoter.
func (q FixedQuoter) Quote(context.Context, domain.Bet, domain.Outcome) (*big.Int, *big.Int, error) {
	return big.NewInt(q.ClosingPrice), big.NewInt(q.Amount), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// cancelLegs cancels the bet's bracket orders. Orders that are already gone
// are not an error; the first other failure is returned after every leg was
// tried.
func cancelLegs(ctx context.Context, ex domain.ExchangeGateway, timeout time.Duration, logger *slog.Logger, betID int64, roles ...domain.Role) error {
	var firstErr error
	for _, role := range roles {
		id, err := bracket.EncodeBet(betID, role)
		if err != nil {
			return err
		}
		cctx, cancel := withTimeout(ctx, timeout)
		_, err = ex.CancelOrder(cctx, id)
		cancel()
		switch {
		case err == nil:
			logger.InfoContext(ctx, "bracket leg canceled",
				slog.Int64("bet_id", betID),
				slog.String("client_order_id", id),
				slog.String("role", role.String()),
			)
		case errors.Is(err, domain.ErrOrderNotFound):
			logger.DebugContext(ctx, "bracket leg already closed",
				slog.Int64("bet_id", betID),
				slog.String("client_order_id", id),
			)
		default:
			logger.WarnContext(ctx, "bracket leg cancel failed",
				slog.Int64("bet_id", betID),
				slog.String("client_order_id", id),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// eventPublishTimeout bounds one lifecycle event across every sink.
const eventPublishTimeout = 5 * time.Second

// publisher wraps an optional EventPublisher; failures are logged only.
type publisher struct {
	sink    domain.EventPublisher
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration // zero means eventPublishTimeout
}

func (p publisher) emit(ctx context.Context, typ domain.EventType, betID int64, outcome, detail string) {
	if p.sink == nil {
		return
	}
	ev := domain.LifecycleEvent{
		ID:      uuid.NewString(),
		Type:    typ,
		BetID:   betID,
		Outcome: outcome,
		Detail:  detail,
		At:      p.now().UTC(),
	}
	timeout := p.timeout
	if timeout <= 0 {
		timeout = eventPublishTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.sink.Publish(pctx, ev); err != nil {
		p.logger.WarnContext(ctx, "lifecycle event not published",
			slog.String("type", string(typ)),
			slog.Int64("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}
}
