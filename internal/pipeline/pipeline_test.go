package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/store/sqlite"
)

func word(v *big.Int) [32]byte {
	var w [32]byte
	v.FillBytes(w[:])
	return w
}

func betLog(block uint64, id int64, dir uint64, amount *big.Int) domain.RawLog {
	var sender [32]byte
	sender[31] = 0x99
	sender[12] = 0x11
	d := word(new(big.Int).SetUint64(dir))
	a := word(amount)
	return domain.RawLog{
		BlockNumber: block,
		TxHash:      word(big.NewInt(int64(block))),
		Topics:      [][32]byte{domain.BetPlacedTopic, word(big.NewInt(id)), sender},
		Data:        append(d[:], a[:]...),
	}
}

func TestDecodeBetPlaced(t *testing.T) {
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	bet, err := DecodeBetPlaced(betLog(321, 77, 1, amount), now)
	require.NoError(t, err)
	assert.Equal(t, int64(77), bet.ID)
	assert.Equal(t, domain.DirectionDown, bet.Direction)
	assert.Equal(t, "1.5", bet.PositionSize().String())
	assert.Equal(t, uint64(321), bet.BlockNumber)
	assert.Equal(t, byte(0x11), bet.Sender[0])
	assert.Equal(t, byte(0x99), bet.Sender[19])
	assert.Equal(t, now, bet.CreatedAt)
	assert.Nil(t, bet.Outcome)
}

func TestDecodeBetPlaced_Malformed(t *testing.T) {
	good := betLog(1, 5, 0, big.NewInt(1))

	tooBig := good
	var huge [32]byte
	huge[0] = 0x80
	tooBig.Topics = [][32]byte{domain.BetPlacedTopic, huge, good.Topics[2]}

	wrongTopic := good
	wrongTopic.Topics = [][32]byte{{0x01}, good.Topics[1], good.Topics[2]}

	shortData := good
	shortData.Data = good.Data[:40]

	badDirection := betLog(1, 5, 7, big.NewInt(1))

	removed := good
	removed.Removed = true

	fewTopics := good
	fewTopics.Topics = good.Topics[:2]

	for name, l := range map[string]domain.RawLog{
		"id overflow":   tooBig,
		"wrong topic":   wrongTopic,
		"short data":    shortData,
		"bad direction": badDirection,
		"removed":       removed,
		"few topics":    fewTopics,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBetPlaced(l, time.Now())
			assert.ErrorIs(t, err, domain.ErrMalformed)
		})
	}
}

// fakeChain serves queued batches; an entry with err set fails that fetch.
type fakeChain struct {
	domain.ChainGateway
	batches []fetchResult
	froms   []uint64
}

type fetchResult struct {
	batch domain.LogBatch
	err   error
}

func (f *fakeChain) FetchBetPlaced(_ context.Context, from uint64) (domain.LogBatch, error) {
	f.froms = append(f.froms, from)
	if len(f.batches) == 0 {
		return domain.LogBatch{ToBlock: from - 1, Head: from - 1}, nil
	}
	r := f.batches[0]
	f.batches = f.batches[1:]
	return r.batch, r.err
}

type recordingReconciler struct {
	calls []string
}

func (r *recordingReconciler) OnBetCreated(_ context.Context, b domain.Bet) error {
	r.calls = append(r.calls, "created:"+b.Base())
	return nil
}

func (r *recordingReconciler) OnDuplicateBet(_ context.Context, b domain.Bet) error {
	r.calls = append(r.calls, "duplicate:"+b.Base())
	return nil
}

func (r *recordingReconciler) OnCycleFinished(context.Context) error {
	r.calls = append(r.calls, "cycle")
	return nil
}

func newTestIngestor(t *testing.T, chain *fakeChain) (*Ingestor, *sqlite.Ledger, *recordingReconciler) {
	t.Helper()
	ledger, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	rec := &recordingReconciler{}
	in := NewIngestor(chain, ledger, rec, IngestorConfig{FirstBlock: 99}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return in, ledger, rec
}

func TestIngestor_ProcessesBatch(t *testing.T) {
	ctx := context.Background()
	one := big.NewInt(1e18)
	chain := &fakeChain{batches: []fetchResult{{batch: domain.LogBatch{
		Logs: []domain.RawLog{
			betLog(120, 1, 0, one),
			{BlockNumber: 125, Topics: [][32]byte{domain.BetPlacedTopic}},
			betLog(130, 2, 1, one),
			betLog(131, 1, 0, one),
		},
		ToBlock: 200,
		Head:    500,
	}}}}
	in, ledger, rec := newTestIngestor(t, chain)

	require.NoError(t, in.Step(ctx))

	assert.Equal(t, []uint64{100}, chain.froms, "starts after the default watermark")
	assert.Equal(t, []string{"created:1", "created:2", "duplicate:1", "cycle"}, rec.calls)

	wm, err := ledger.GetWatermark(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(131), wm)

	_, err = ledger.GetBet(ctx, 2)
	require.NoError(t, err)

	st := in.Status()
	assert.Equal(t, "CATCHING_UP", st.State)
	assert.Equal(t, uint64(201), st.Cursor)
	assert.Equal(t, uint64(131), st.Watermark)
}

func TestIngestor_EmptyBatchKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{batches: []fetchResult{
		{batch: domain.LogBatch{ToBlock: 5099, Head: 9000}},
		{batch: domain.LogBatch{ToBlock: 9000, Head: 9000}},
	}}
	in, ledger, rec := newTestIngestor(t, chain)

	require.NoError(t, in.Step(ctx))
	require.NoError(t, in.Step(ctx))

	assert.Equal(t, []uint64{100, 5100}, chain.froms, "cursor skips empty ranges")
	assert.Equal(t, []string{"cycle", "cycle"}, rec.calls)

	wm, err := ledger.GetWatermark(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), wm, "no logs, no watermark write")
	assert.Equal(t, StateLive, in.State())
}

func TestIngestor_TransportErrorAbortsBatch(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{batches: []fetchResult{
		{err: errors.New("dial tcp: connection refused")},
		{batch: domain.LogBatch{Logs: []domain.RawLog{betLog(150, 3, 0, big.NewInt(1e18))}, ToBlock: 150, Head: 150}},
	}}
	in, ledger, rec := newTestIngestor(t, chain)

	err := in.Step(ctx)
	require.Error(t, err)
	assert.Empty(t, rec.calls, "no reconciliation on a failed fetch")
	assert.NotEmpty(t, in.Status().LastError)

	wm, err := ledger.GetWatermark(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), wm)

	require.NoError(t, in.Step(ctx))
	assert.Equal(t, []uint64{100, 100}, chain.froms, "retries from the same block")
	assert.Equal(t, []string{"created:3", "cycle"}, rec.calls)
	assert.Equal(t, StateLive, in.State())
	assert.Empty(t, in.Status().LastError)
}

func TestIngestor_ResumesFromWatermark(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	in, ledger, _ := newTestIngestor(t, chain)
	require.NoError(t, ledger.SetWatermarkAtLeast(ctx, 4000))

	require.NoError(t, in.Step(ctx))
	assert.Equal(t, []uint64{4001}, chain.froms)
}

func TestIngestor_LiveNeverGoesBack(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{batches: []fetchResult{
		{batch: domain.LogBatch{ToBlock: 100, Head: 100}},
		{batch: domain.LogBatch{ToBlock: 150, Head: 900}},
	}}
	in, _, _ := newTestIngestor(t, chain)

	require.NoError(t, in.Step(ctx))
	assert.Equal(t, StateLive, in.State())
	require.NoError(t, in.Step(ctx))
	assert.Equal(t, StateLive, in.State())
}

func TestIngestor_RunLoopStopsOnCancel(t *testing.T) {
	chain := &fakeChain{}
	in, _, _ := newTestIngestor(t, chain)
	in.cfg.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.RunLoop(ctx) }()

	require.Eventually(t, func() bool { return in.State() == StateLive }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not return after cancel")
	}
}
