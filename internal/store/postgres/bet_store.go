package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// Ledger implements domain.Ledger using PostgreSQL.
type Ledger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, now: time.Now}
}

// InsertIdempotent inserts a bet, ignoring the row if the id already exists.
func (l *Ledger) InsertIdempotent(ctx context.Context, b domain.Bet) (bool, error) {
	const query = `
		INSERT INTO bets (id, tx, sender, amount, created, direction, outcome, accepted_at, block_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	var outcome *int16
	if b.Outcome != nil {
		v := int16(*b.Outcome)
		outcome = &v
	}

	tag, err := l.pool.Exec(ctx, query,
		b.ID, b.TxHash[:], b.Sender[:], b.Amount[:],
		b.CreatedAt.UTC(), int16(b.Direction), outcome, b.AcceptedAt,
		int64(b.BlockNumber),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert bet %d: %w", b.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetBet returns the bet with the given id.
func (l *Ledger) GetBet(ctx context.Context, id int64) (domain.Bet, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d: %w", id, err)
	}
	return b, nil
}

// MarkAccepted stamps accepted_at once.
func (l *Ledger) MarkAccepted(ctx context.Context, id int64) error {
	const query = `UPDATE bets SET accepted_at = COALESCE(accepted_at, $2) WHERE id = $1`
	tag, err := l.pool.Exec(ctx, query, id, l.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: mark bet %d accepted: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateOutcome sets the outcome of an open bet.
func (l *Ledger) UpdateOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	const query = `UPDATE bets SET outcome = $2 WHERE id = $1 AND outcome IS NULL`
	tag, err := l.pool.Exec(ctx, query, id, int16(outcome))
	if err != nil {
		return false, fmt.Errorf("postgres: update bet %d outcome: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// QueryStale lists open bets older than timeout, oldest first.
func (l *Ledger) QueryStale(ctx context.Context, timeout time.Duration) ([]domain.Bet, error) {
	cutoff := l.now().UTC().Add(-timeout)
	rows, err := l.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE outcome IS NULL AND created < $1 ORDER BY created, id`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: query stale bets: %w", err)
	}
	return collectBets(rows)
}

// ListRecent lists the newest bets.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]domain.Bet, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets ORDER BY created DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent bets: %w", err)
	}
	return collectBets(rows)
}

const betSelectCols = `id, tx, sender, amount, created, direction, outcome, accepted_at, block_number`

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bets: %w", err)
	}
	return out, nil
}

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.Bet, error) {
	var (
		b                  domain.Bet
		tx, sender, amount []byte
		direction          int16
		outcome            *int16
		block              int64
	)
	err := scanner.Scan(&b.ID, &tx, &sender, &amount, &b.CreatedAt, &direction, &outcome, &b.AcceptedAt, &block)
	if err != nil {
		return domain.Bet{}, err
	}

	copy(b.TxHash[:], tx)
	copy(b.Sender[:], sender)
	copy(b.Amount[32-min(len(amount), 32):], amount)
	b.Direction = domain.Direction(direction)
	b.BlockNumber = uint64(block)
	if outcome != nil {
		o := domain.Outcome(*outcome)
		b.Outcome = &o
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
