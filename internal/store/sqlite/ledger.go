// Package sqlite implements the bet ledger on an embedded SQLite database
// (pure Go, no cgo). It suits single-host deployments and tests; use the
// postgres package when several processes share one ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS bets (
    id           INTEGER PRIMARY KEY,
    tx           BLOB    NOT NULL,
    sender       BLOB    NOT NULL,
    amount       BLOB    NOT NULL,
    created      INTEGER NOT NULL, -- unix nanoseconds, UTC
    direction    INTEGER NOT NULL CHECK (direction IN (0, 1)),
    outcome      INTEGER NULL CHECK (outcome IS NULL OR outcome IN (1, 2, 3)),
    accepted_at  INTEGER NULL,
    block_number INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bets_open_created ON bets(created) WHERE outcome IS NULL;

CREATE TABLE IF NOT EXISTS state (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

// Ledger implements domain.Ledger on SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway ledger.
func New(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping verifies the database is usable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// InsertIdempotent inserts a bet, ignoring the row if the id already exists.
func (l *Ledger) InsertIdempotent(ctx context.Context, b domain.Bet) (bool, error) {
	const query = `
		INSERT INTO bets (id, tx, sender, amount, created, direction, outcome, accepted_at, block_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	var outcome, accepted any
	if b.Outcome != nil {
		outcome = int(*b.Outcome)
	}
	if b.AcceptedAt != nil {
		accepted = b.AcceptedAt.UTC().UnixNano()
	}

	res, err := l.db.ExecContext(ctx, query,
		b.ID, b.TxHash[:], b.Sender[:], b.Amount[:],
		b.CreatedAt.UTC().UnixNano(), int(b.Direction), outcome, accepted,
		int64(b.BlockNumber),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert bet %d: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert bet %d: %w", b.ID, err)
	}
	return n == 1, nil
}

// GetBet returns the bet with the given id.
func (l *Ledger) GetBet(ctx context.Context, id int64) (domain.Bet, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+betSelectCols+` FROM bets WHERE id = ?`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("sqlite: get bet %d: %w", id, err)
	}
	return b, nil
}

// MarkAccepted stamps accepted_at once.
func (l *Ledger) MarkAccepted(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE bets SET accepted_at = COALESCE(accepted_at, ?) WHERE id = ?`,
		l.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark bet %d accepted: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateOutcome sets the outcome of an open bet.
func (l *Ledger) UpdateOutcome(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE bets SET outcome = ? WHERE id = ? AND outcome IS NULL`,
		int(outcome), id,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: update bet %d outcome: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: update bet %d outcome: %w", id, err)
	}
	return n == 1, nil
}

// QueryStale lists open bets older than timeout, oldest first.
func (l *Ledger) QueryStale(ctx context.Context, timeout time.Duration) ([]domain.Bet, error) {
	cutoff := l.now().UTC().Add(-timeout).UnixNano()
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE outcome IS NULL AND created < ? ORDER BY created, id`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query stale bets: %w", err)
	}
	return collectBets(rows)
}

// ListRecent lists the newest bets.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]domain.Bet, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+betSelectCols+` FROM bets ORDER BY created DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recent bets: %w", err)
	}
	return collectBets(rows)
}

// GetWatermark returns the last processed block, or def when none is stored.
func (l *Ledger) GetWatermark(ctx context.Context, def uint64) (uint64, error) {
	var v int64
	err := l.db.QueryRowContext(ctx, `SELECT value FROM state WHERE name = ?`, domain.WatermarkKey).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return 0, fmt.Errorf("sqlite: get watermark: %w", err)
	}
	return uint64(v), nil
}

// SetWatermarkAtLeast advances the watermark to v unless it is already higher.
func (l *Ledger) SetWatermarkAtLeast(ctx context.Context, v uint64) error {
	const query = `
		INSERT INTO state (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`
	if _, err := l.db.ExecContext(ctx, query, domain.WatermarkKey, int64(v)); err != nil {
		return fmt.Errorf("sqlite: set watermark %d: %w", v, err)
	}
	return nil
}

const betSelectCols = `id, tx, sender, amount, created, direction, outcome, accepted_at, block_number`

func collectBets(rows *sql.Rows) ([]domain.Bet, error) {
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate bets: %w", err)
	}
	return out, nil
}

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.Bet, error) {
	var (
		b                  domain.Bet
		tx, sender, amount []byte
		created            int64
		direction          int
		outcome, accepted  sql.NullInt64
		block              int64
	)
	if err := scanner.Scan(&b.ID, &tx, &sender, &amount, &created, &direction, &outcome, &accepted, &block); err != nil {
		return domain.Bet{}, err
	}

	copy(b.TxHash[:], tx)
	copy(b.Sender[:], sender)
	copy(b.Amount[32-min(len(amount), 32):], amount)
	b.CreatedAt = time.Unix(0, created).UTC()
	b.Direction = domain.Direction(direction)
	b.BlockNumber = uint64(block)
	if outcome.Valid {
		o := domain.Outcome(outcome.Int64)
		b.Outcome = &o
	}
	if accepted.Valid {
		t := time.Unix(0, accepted.Int64).UTC()
		b.AcceptedAt = &t
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
