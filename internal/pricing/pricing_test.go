package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/pricing"
)

func testPolicy() pricing.Policy {
	return pricing.Policy{
		SafebeltPct:   decimal.NewFromInt(2),
		WinTriggerPct: decimal.NewFromInt(3),
		PriceTick:     decimal.RequireFromString("0.01"),
		QuantityStep:  decimal.RequireFromString("0.001"),
	}
}

func TestBoundaries_Up(t *testing.T) {
	b, err := testPolicy().Boundaries(decimal.NewFromInt(100), domain.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, "98.00", b.StopLoss.StringFixed(2))
	assert.Equal(t, "103.00", b.TakeProfit.StringFixed(2))
}

func TestBoundaries_Down(t *testing.T) {
	b, err := testPolicy().Boundaries(decimal.NewFromInt(100), domain.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, "102.00", b.StopLoss.StringFixed(2))
	assert.Equal(t, "97.00", b.TakeProfit.StringFixed(2))
}

func TestBoundaries_RoundTowardEntry(t *testing.T) {
	price := decimal.RequireFromString("101.234")

	up, err := testPolicy().Boundaries(price, domain.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, "99.21", up.StopLoss.StringFixed(2))
	assert.Equal(t, "104.27", up.TakeProfit.StringFixed(2))

	down, err := testPolicy().Boundaries(price, domain.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, "103.25", down.StopLoss.StringFixed(2))
	assert.Equal(t, "98.20", down.TakeProfit.StringFixed(2))
}

func TestBoundaries_RejectsNonPositive(t *testing.T) {
	_, err := testPolicy().Boundaries(decimal.Zero, domain.DirectionUp)
	assert.ErrorIs(t, err, pricing.ErrNonPositive)
}

func TestQuantity(t *testing.T) {
	qty, err := testPolicy().Quantity(decimal.NewFromInt(4600), decimal.RequireFromString("27345.6"))
	require.NoError(t, err)
	assert.Equal(t, "0.168", qty.StringFixed(3))

	_, err = testPolicy().Quantity(decimal.NewFromInt(1), decimal.NewFromInt(30000))
	assert.ErrorIs(t, err, pricing.ErrNonPositive)

	_, err = testPolicy().Quantity(decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, pricing.ErrNonPositive)
}

func TestTruncateQuantity(t *testing.T) {
	got := testPolicy().TruncateQuantity(decimal.RequireFromString("0.16899"))
	assert.Equal(t, "0.168", got.StringFixed(3))
}
