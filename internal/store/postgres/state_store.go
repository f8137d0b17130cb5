package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// GetWatermark returns the last processed block, or def when none is stored.
func (l *Ledger) GetWatermark(ctx context.Context, def uint64) (uint64, error) {
	var v int64
	err := l.pool.QueryRow(ctx, `SELECT value FROM state WHERE name = $1`, domain.WatermarkKey).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return def, nil
		}
		return 0, fmt.Errorf("postgres: get watermark: %w", err)
	}
	return uint64(v), nil
}

// SetWatermarkAtLeast advances the watermark to v unless it is already higher.
func (l *Ledger) SetWatermarkAtLeast(ctx context.Context, v uint64) error {
	const query = `
		INSERT INTO state (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(state.value, EXCLUDED.value)`
	if _, err := l.pool.Exec(ctx, query, domain.WatermarkKey, int64(v)); err != nil {
		return fmt.Errorf("postgres: set watermark %d: %w", v, err)
	}
	return nil
}
