package domain

import (
	"context"
	"math/big"
)

// ExchangeGateway is the derivatives venue where each bet is hedged.
// Client-order-ids are the idempotency keys: a repeated id fails with
// ErrDuplicateClientOrderID and never creates a second order.
type ExchangeGateway interface {
	// PlaceEntryOrder submits a market order and returns its terminal fill.
	PlaceEntryOrder(ctx context.Context, req EntryRequest) (Fill, error)
	PlaceBracketOrder(ctx context.Context, req BracketRequest) (Ack, error)
	ListOpenOrders(ctx context.Context) ([]OpenOrder, error)
	// CancelOrder returns ErrOrderNotFound when nothing is open under the id.
	CancelOrder(ctx context.Context, clientOrderID string) (Ack, error)
}

// ChainGateway reads bet events from, and reports bet lifecycle changes to,
// the betting contract.
type ChainGateway interface {
	FetchBetPlaced(ctx context.Context, fromBlock uint64) (LogBatch, error)
	AcceptBet(ctx context.Context, id int64) error
	CancelBet(ctx context.Context, id int64) error
	SettleBetWon(ctx context.Context, id int64, closingPrice, amount *big.Int) error
	SettleBetLost(ctx context.Context, id int64, closingPrice, amount *big.Int) error
}
