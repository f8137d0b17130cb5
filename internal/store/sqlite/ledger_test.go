package sqlite_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/store/sqlite"
)

func newLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	l, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleBet(id int64, created time.Time) domain.Bet {
	amount, _ := new(big.Int).SetString("2500000000000000000", 10)
	b := domain.Bet{
		ID:          id,
		Amount:      domain.AmountFromInt(amount),
		CreatedAt:   created,
		Direction:   domain.DirectionDown,
		BlockNumber: 1000 + uint64(id),
	}
	b.TxHash[0], b.TxHash[31] = 0xab, 0xcd
	b.Sender[19] = 0x42
	return b
}

func TestInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	created := time.Now().UTC().Truncate(time.Microsecond)

	inserted, err := l.InsertIdempotent(ctx, sampleBet(7, created))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = l.InsertIdempotent(ctx, sampleBet(7, created.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := l.GetBet(ctx, 7)
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt), "first insert wins")
	assert.Equal(t, domain.DirectionDown, got.Direction)
	assert.Equal(t, "2.5", got.PositionSize().String())
	assert.Equal(t, byte(0xab), got.TxHash[0])
	assert.Equal(t, byte(0x42), got.Sender[19])
	assert.Equal(t, uint64(1007), got.BlockNumber)
	assert.Nil(t, got.Outcome)
	assert.Nil(t, got.AcceptedAt)
}

func TestGetBet_NotFound(t *testing.T) {
	_, err := newLedger(t).GetBet(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateOutcome_IsWriteOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.InsertIdempotent(ctx, sampleBet(1, time.Now()))
	require.NoError(t, err)

	updated, err := l.UpdateOutcome(ctx, 1, domain.OutcomeWin)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = l.UpdateOutcome(ctx, 1, domain.OutcomeTimeout)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := l.GetBet(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, domain.OutcomeWin, *got.Outcome)

	updated, err = l.UpdateOutcome(ctx, 404, domain.OutcomeLose)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestMarkAccepted(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.InsertIdempotent(ctx, sampleBet(3, time.Now()))
	require.NoError(t, err)

	require.NoError(t, l.MarkAccepted(ctx, 3))
	first, err := l.GetBet(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, first.AcceptedAt)

	require.NoError(t, l.MarkAccepted(ctx, 3))
	second, err := l.GetBet(ctx, 3)
	require.NoError(t, err)
	assert.True(t, first.AcceptedAt.Equal(*second.AcceptedAt))

	assert.ErrorIs(t, l.MarkAccepted(ctx, 404), domain.ErrNotFound)
}

func TestQueryStale(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	now := time.Now()

	for id, age := range map[int64]time.Duration{
		1: 3 * time.Hour,
		2: 2 * time.Hour,
		3: 10 * time.Minute,
		4: 5 * time.Hour,
	} {
		_, err := l.InsertIdempotent(ctx, sampleBet(id, now.Add(-age)))
		require.NoError(t, err)
	}
	_, err := l.UpdateOutcome(ctx, 4, domain.OutcomeLose)
	require.NoError(t, err)

	stale, err := l.QueryStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, int64(1), stale[0].ID, "oldest first")
	assert.Equal(t, int64(2), stale[1].ID)
}

func TestListRecent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	now := time.Now()
	for i := int64(1); i <= 5; i++ {
		_, err := l.InsertIdempotent(ctx, sampleBet(i, now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	recent, err := l.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(5), recent[0].ID)
	assert.Equal(t, int64(4), recent[1].ID)
}

func TestWatermark_Monotonic(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	got, err := l.GetWatermark(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got, "default before first write")

	for _, v := range []uint64{900, 700, 1200, 1100, 1200} {
		require.NoError(t, l.SetWatermarkAtLeast(ctx, v))
	}

	got, err = l.GetWatermark(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), got)
}
