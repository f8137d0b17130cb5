package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/cache/memory"
	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/pricing"
	"github.com/alanyoungcy/betbridge/internal/store/sqlite"
)

// fakeExchange is an in-memory futures account. Every client-order-id may be
// used once; bracket orders rest until canceled or fired.
type fakeExchange struct {
	mu       sync.Mutex
	price    decimal.Decimal
	status   domain.OrderStatus
	used     map[string]bool
	entries  []domain.EntryRequest
	brackets []domain.BracketRequest
	open     map[string]domain.OpenOrder
	cancels  []string
	fail     map[string]error // client order id -> error
	executed decimal.Decimal  // when set, reported instead of notional / price
}

func newFakeExchange(price string) *fakeExchange {
	return &fakeExchange{
		price:  decimal.RequireFromString(price),
		status: domain.OrderStatusFilled,
		used:   make(map[string]bool),
		open:   make(map[string]domain.OpenOrder),
		fail:   make(map[string]error),
	}
}

func (f *fakeExchange) PlaceEntryOrder(_ context.Context, req domain.EntryRequest) (domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.ClientOrderID]; err != nil {
		return domain.Fill{}, err
	}
	if f.used[req.ClientOrderID] {
		return domain.Fill{}, fmt.Errorf("fake: %w", domain.ErrDuplicateClientOrderID)
	}
	f.used[req.ClientOrderID] = true
	f.entries = append(f.entries, req)
	qty := req.Notional.Div(f.price).Truncate(3)
	if !f.executed.IsZero() {
		qty = f.executed
	}
	return domain.Fill{
		ClientOrderID: req.ClientOrderID,
		Status:        f.status,
		Side:          req.Side,
		AvgPrice:      f.price,
		ExecutedQty:   qty,
	}, nil
}

func (f *fakeExchange) PlaceBracketOrder(_ context.Context, req domain.BracketRequest) (domain.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.ClientOrderID]; err != nil {
		return domain.Ack{}, err
	}
	if f.used[req.ClientOrderID] {
		return domain.Ack{}, fmt.Errorf("fake: %w", domain.ErrDuplicateClientOrderID)
	}
	f.used[req.ClientOrderID] = true
	f.brackets = append(f.brackets, req)
	f.open[req.ClientOrderID] = domain.OpenOrder{
		ClientOrderID: req.ClientOrderID,
		Type:          req.Type,
		Side:          req.Side,
		Status:        domain.OrderStatusNew,
		StopPrice:     req.StopPrice,
		Quantity:      req.Quantity,
	}
	return domain.Ack{ClientOrderID: req.ClientOrderID, Status: domain.OrderStatusNew}, nil
}

func (f *fakeExchange) ListOpenOrders(context.Context) ([]domain.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OpenOrder, 0, len(f.open))
	for _, o := range f.open {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientOrderID < out[j].ClientOrderID })
	return out, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, id string) (domain.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if _, ok := f.open[id]; !ok {
		return domain.Ack{}, domain.ErrOrderNotFound
	}
	delete(f.open, id)
	return domain.Ack{ClientOrderID: id, Status: domain.OrderStatusCanceled}, nil
}

// fire simulates the exchange triggering a resting order.
func (f *fakeExchange) fire(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, id)
}

func (f *fakeExchange) bracketByID(id string) (domain.BracketRequest, bool) {
	for _, b := range f.brackets {
		if b.ClientOrderID == id {
			return b, true
		}
	}
	return domain.BracketRequest{}, false
}

type fakeChain struct {
	mu     sync.Mutex
	calls  []string
	err    error
	onCall func(call string) // runs outside the lock; may read the ledger
}

func (f *fakeChain) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook, err := f.onCall, f.err
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return err
}

func (f *fakeChain) FetchBetPlaced(context.Context, uint64) (domain.LogBatch, error) {
	return domain.LogBatch{}, nil
}

func (f *fakeChain) AcceptBet(_ context.Context, id int64) error {
	return f.record("accepted:%d", id)
}

func (f *fakeChain) CancelBet(_ context.Context, id int64) error {
	return f.record("canceled:%d", id)
}

func (f *fakeChain) SettleBetWon(_ context.Context, id int64, price, amount *big.Int) error {
	return f.record("won:%d:%s:%s", id, price, amount)
}

func (f *fakeChain) SettleBetLost(_ context.Context, id int64, price, amount *big.Int) error {
	return f.record("lost:%d:%s:%s", id, price, amount)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	exchange   *fakeExchange
	chain      *fakeChain
	ledger     *sqlite.Ledger
	locks      *memory.LockManager
	events     *recordingPublisher
	reconciler *Reconciler
	sweeper    *Sweeper
	hedge      HedgeConfig
	logger     *slog.Logger
}

var testPolicy = pricing.Policy{
	SafebeltPct:   decimal.NewFromInt(2),
	WinTriggerPct: decimal.NewFromInt(3),
	PriceTick:     decimal.RequireFromString("0.01"),
	QuantityStep:  decimal.RequireFromString("0.001"),
}

func newHarness(t *testing.T, fillPrice string) *harness {
	t.Helper()
	ledger, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	h := &harness{
		exchange: newFakeExchange(fillPrice),
		chain:    &fakeChain{},
		ledger:   ledger,
		locks:    memory.NewLockManager(),
		events:   &recordingPublisher{},
	}
	cfg := HedgeConfig{
		NotionalMultiplier: decimal.NewFromInt(1),
		Leverage:           decimal.NewFromInt(46),
		ExchangeTimeout:    time.Second,
		ChainTimeout:       time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.reconciler = NewReconciler(h.exchange, h.chain, ledger, h.locks, testPolicy,
		FixedQuoter{ClosingPrice: 1, Amount: 1}, cfg, h.events, nil, logger)
	h.sweeper = NewSweeper(ledger, h.exchange, h.chain, h.locks, cfg, time.Hour, h.events, nil, logger)
	h.hedge = cfg
	h.logger = logger
	return h
}

// newBet builds a one-unit bet created at created.
func newBet(id int64, dir domain.Direction, created time.Time) domain.Bet {
	return domain.Bet{
		ID:        id,
		Amount:    domain.AmountFromInt(big.NewInt(1e18)),
		CreatedAt: created,
		Direction: dir,
	}
}

// record inserts the bet and runs OnBetCreated, as the ingestor does.
func (h *harness) record(t *testing.T, bet domain.Bet) {
	t.Helper()
	ctx := context.Background()
	inserted, err := h.ledger.InsertIdempotent(ctx, bet)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, h.reconciler.OnBetCreated(ctx, bet))
}
