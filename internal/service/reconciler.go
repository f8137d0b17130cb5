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
	"github.com/alanyoungcy/betbridge/internal/pricing"
)

// Reconciler keeps the exchange, the contract and the ledger in agreement
// about every bet. Its methods are called from the ingestor goroutine only.
type Reconciler struct {
	exchange domain.ExchangeGateway
	chain    domain.ChainGateway
	ledger   domain.Ledger
	locks    domain.LockManager
	policy   pricing.Policy
	quoter   SettlementQuoter
	cfg      HedgeConfig
	events   publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. events and m may be nil.
func NewReconciler(
	exchange domain.ExchangeGateway,
	chain domain.ChainGateway,
	ledger domain.Ledger,
	locks domain.LockManager,
	policy pricing.Policy,
	quoter SettlementQuoter,
	cfg HedgeConfig,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reconciler {
	logger = logger.With(slog.String("component", "reconciler"))
	return &Reconciler{
		exchange: exchange,
		chain:    chain,
		ledger:   ledger,
		locks:    locks,
		policy:   policy,
		quoter:   quoter,
		cfg:      cfg,
		events:   publisher{sink: events, logger: logger, now: time.Now},
		metrics:  m,
		logger:   logger,
	}
}

// OnBetCreated hedges a newly recorded bet: a market entry in the bet's
// direction, a stop-loss and a take-profit around the fill, then acceptance
// on chain. A duplicate entry id means the bet was already hedged and
// nothing else is done.
func (r *Reconciler) OnBetCreated(ctx context.Context, bet domain.Bet) error {
	entryID, err := bracket.EncodeBet(bet.ID, domain.RoleEntry)
	if err != nil {
		return fmt.Errorf("service: bet %d: %w", bet.ID, err)
	}
	side := bet.Direction.EntrySide()
	notional := r.cfg.Notional(bet)

	ectx, cancel := withTimeout(ctx, r.cfg.ExchangeTimeout)
	fill, err := r.exchange.PlaceEntryOrder(ectx, domain.EntryRequest{
		ClientOrderID: entryID,
		Side:          side,
		Notional:      notional,
	})
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateClientOrderID) {
			r.metrics.Order(domain.RoleEntry.String(), "duplicate")
			r.logger.WarnContext(ctx, "entry order already exists, skipping bet",
				slog.Int64("bet_id", bet.ID),
				slog.String("client_order_id", entryID),
			)
			return nil
		}
		r.metrics.Order(domain.RoleEntry.String(), "error")
		r.events.emit(ctx, domain.EventError, bet.ID, "", "entry order failed: "+err.Error())
		return fmt.Errorf("service: entry for bet %d: %w", bet.ID, err)
	}
	r.metrics.Order(domain.RoleEntry.String(), "ok")

	if fill.Status != domain.OrderStatusFilled {
		r.events.emit(ctx, domain.EventError, bet.ID, "", "entry order not filled: "+string(fill.Status))
		return fmt.Errorf("service: entry for bet %d ended %s: %w", bet.ID, fill.Status, domain.ErrRejectedOrder)
	}

	bounds, err := r.policy.Boundaries(fill.AvgPrice, bet.Direction)
	if err != nil {
		return fmt.Errorf("service: boundaries for bet %d: %w", bet.ID, err)
	}
	qty := r.policy.TruncateQuantity(fill.ExecutedQty)
	closeSide := side.Opposite()

	r.logger.InfoContext(ctx, "bet hedged",
		slog.Int64("bet_id", bet.ID),
		slog.String("side", string(side)),
		slog.String("notional", notional.String()),
		slog.String("fill_price", fill.AvgPrice.String()),
		slog.String("quantity", qty.String()),
		slog.String("stop_loss", bounds.StopLoss.String()),
		slog.String("take_profit", bounds.TakeProfit.String()),
	)

	r.placeLeg(ctx, bet.ID, domain.RoleStopLoss, domain.BracketRequest{
		Side:      closeSide,
		Type:      domain.OrderTypeStopMarket,
		StopPrice: bounds.StopLoss,
		Quantity:  qty,
	})
	r.placeLeg(ctx, bet.ID, domain.RoleTakeProfit, domain.BracketRequest{
		Side:      closeSide,
		Type:      domain.OrderTypeTakeProfitMarket,
		StopPrice: bounds.TakeProfit,
		Quantity:  qty,
	})

	cctx, cancel := withTimeout(ctx, r.cfg.ChainTimeout)
	err = r.chain.AcceptBet(cctx, bet.ID)
	cancel()
	if err != nil {
		r.metrics.ChainCall("betAccepted", "error")
		r.logger.ErrorContext(ctx, "bet acceptance call failed",
			slog.Int64("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	} else {
		r.metrics.ChainCall("betAccepted", "ok")
	}

	if err := r.ledger.MarkAccepted(ctx, bet.ID); err != nil {
		return fmt.Errorf("service: mark bet %d accepted: %w", bet.ID, err)
	}

	r.events.emit(ctx, domain.EventBetAccepted, bet.ID, "",
		fmt.Sprintf("%s %s @ %s, SL %s, TP %s", side, qty, fill.AvgPrice, bounds.StopLoss, bounds.TakeProfit))
	return nil
}

// placeLeg submits one bracket order. Failures are logged and never undo the
// other leg.
func (r *Reconciler) placeLeg(ctx context.Context, betID int64, role domain.Role, req domain.BracketRequest) {
	id, err := bracket.EncodeBet(betID, role)
	if err != nil {
		r.logger.ErrorContext(ctx, "bracket id", slog.Int64("bet_id", betID), slog.String("error", err.Error()))
		return
	}
	req.ClientOrderID = id

	ectx, cancel := withTimeout(ctx, r.cfg.ExchangeTimeout)
	_, err = r.exchange.PlaceBracketOrder(ectx, req)
	cancel()

	switch {
	case err == nil:
		r.metrics.Order(role.String(), "ok")
	case errors.Is(err, domain.ErrDuplicateClientOrderID):
		r.metrics.Order(role.String(), "duplicate")
		r.logger.WarnContext(ctx, "bracket leg already placed",
			slog.Int64("bet_id", betID),
			slog.String("client_order_id", id),
		)
	default:
		r.metrics.Order(role.String(), "error")
		r.logger.ErrorContext(ctx, "bracket leg failed",
			slog.Int64("bet_id", betID),
			slog.String("client_order_id", id),
			slog.String("role", role.String()),
			slog.String("error", err.Error()),
		)
	}
}

// OnDuplicateBet handles a BetPlaced log for a bet the ledger already holds.
// When the stored bet never completed acceptance, or is already resolved,
// any bracket legs still resting for it are canceled.
func (r *Reconciler) OnDuplicateBet(ctx context.Context, bet domain.Bet) error {
	stored, err := r.ledger.GetBet(ctx, bet.ID)
	if err != nil {
		return fmt.Errorf("service: reload bet %d: %w", bet.ID, err)
	}
	if stored.Accepted() && !stored.Resolved() {
		r.logger.DebugContext(ctx, "duplicate of an open bet, nothing to clean", slog.Int64("bet_id", bet.ID))
		return nil
	}

	unlock, err := r.locks.Acquire(ctx, domain.BetLockKey(bet.ID), r.cfg.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.InfoContext(ctx, "bet busy, skipping duplicate cleanup", slog.Int64("bet_id", bet.ID))
			return nil
		}
		return fmt.Errorf("service: lock bet %d: %w", bet.ID, err)
	}
	defer unlock()

	r.events.emit(ctx, domain.EventBetDuplicate, bet.ID, "", "removing resting bracket orders")
	return cancelLegs(ctx, r.exchange, r.cfg.ExchangeTimeout, r.logger, bet.ID,
		domain.RoleStopLoss, domain.RoleTakeProfit)
}

// OnCycleFinished settles every bet whose bracket has lost one leg since the
// last cycle. The leg that is gone decides the outcome: a missing
// take-profit is a win, a missing stop-loss a loss.
func (r *Reconciler) OnCycleFinished(ctx context.Context) error {
	ectx, cancel := withTimeout(ctx, r.cfg.ExchangeTimeout)
	orders, err := r.exchange.ListOpenOrders(ectx)
	cancel()
	if err != nil {
		return fmt.Errorf("service: list open orders: %w", err)
	}

	c := ClassifyOpenOrders(orders)
	r.metrics.OpenBets(len(c.Active))
	r.logger.DebugContext(ctx, "open orders classified",
		slog.Int("orders", len(orders)),
		slog.Int("active", len(c.Active)),
		slog.Int("candidates", len(c.Candidates)),
	)

	for _, cand := range c.Candidates {
		if err := r.settle(ctx, cand); err != nil {
			r.logger.ErrorContext(ctx, "settlement failed",
				slog.Int64("bet_id", cand.BetID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (r *Reconciler) settle(ctx context.Context, cand SettlementCandidate) error {
	unlock, err := r.locks.Acquire(ctx, domain.BetLockKey(cand.BetID), r.cfg.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.InfoContext(ctx, "bet busy, settling next cycle", slog.Int64("bet_id", cand.BetID))
			return nil
		}
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	ectx, cancel := withTimeout(ctx, r.cfg.ExchangeTimeout)
	_, err = r.exchange.CancelOrder(ectx, cand.OpenClientID)
	cancel()
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return fmt.Errorf("cancel remaining leg %s: %w", cand.OpenClientID, err)
	}

	bet, err := r.ledger.GetBet(ctx, cand.BetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "bracket orders for an unknown bet", slog.Int64("bet_id", cand.BetID))
			return nil
		}
		return fmt.Errorf("load bet: %w", err)
	}
	if bet.Resolved() {
		r.logger.InfoContext(ctx, "bet already resolved, remaining leg canceled",
			slog.Int64("bet_id", bet.ID),
			slog.String("outcome", bet.Outcome.String()),
		)
		return nil
	}

	outcome := cand.ImpliedResult
	price, amount, err := r.quoter.Quote(ctx, bet, outcome)
	if err != nil {
		return fmt.Errorf("quote settlement: %w", err)
	}

	method := "betLost"
	report := r.chain.SettleBetLost
	if outcome == domain.OutcomeWin {
		method, report = "betWon", r.chain.SettleBetWon
	}
	cctx, cancel := withTimeout(ctx, r.cfg.ChainTimeout)
	err = report(cctx, bet.ID, price, amount)
	cancel()
	if err != nil {
		r.metrics.ChainCall(method, "error")
		r.logger.ErrorContext(ctx, "settlement call failed",
			slog.Int64("bet_id", bet.ID),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	} else {
		r.metrics.ChainCall(method, "ok")
	}

	updated, err := r.ledger.UpdateOutcome(ctx, bet.ID, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !updated {
		return nil
	}

	r.metrics.BetResolved(outcome.String())
	r.logger.InfoContext(ctx, "bet settled",
		slog.Int64("bet_id", bet.ID),
		slog.String("outcome", outcome.String()),
		slog.String("fired_leg", cand.AbsentRole.String()),
	)
	r.events.emit(ctx, domain.EventBetSettled, bet.ID, outcome.String(), cand.AbsentRole.String()+" triggered")
	return nil
}
