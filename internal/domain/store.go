package domain

import (
	"context"
	"time"
)

// WatermarkKey is the state-table name of the last processed block.
const WatermarkKey = "LB"

// Ledger is the durable record of bets and the ingestion watermark.
type Ledger interface {
	// InsertIdempotent stores a new bet. It reports inserted=false, with a
	// nil error, when a bet with the same ID already exists.
	InsertIdempotent(ctx context.Context, bet Bet) (inserted bool, err error)
	// GetBet returns ErrNotFound when the bet is unknown.
	GetBet(ctx context.Context, id int64) (Bet, error)
	// MarkAccepted records that the bet's position and acceptance were
	// requested. Repeated calls keep the first timestamp.
	MarkAccepted(ctx context.Context, id int64) error
	// UpdateOutcome sets the outcome only if none is set yet and reports
	// whether this call changed the row.
	UpdateOutcome(ctx context.Context, id int64, outcome Outcome) (updated bool, err error)
	// QueryStale returns open bets created more than timeout ago.
	QueryStale(ctx context.Context, timeout time.Duration) ([]Bet, error)
	// ListRecent returns the most recently created bets, newest first.
	ListRecent(ctx context.Context, limit int) ([]Bet, error)

	// GetWatermark returns the stored watermark or def when none is stored.
	GetWatermark(ctx context.Context, def uint64) (uint64, error)
	// SetWatermarkAtLeast stores max(current, v).
	SetWatermarkAtLeast(ctx context.Context, v uint64) error
}
