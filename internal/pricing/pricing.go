// Package pricing derives bracket trigger prices and order quantities from a
// fill. All arithmetic is decimal so exchange tick and step rules hold exactly.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ErrNonPositive is returned for a zero or negative price or quantity.
var ErrNonPositive = errors.New("pricing: value must be positive")

// Policy holds the boundary percentages and the exchange's symbol filters.
type Policy struct {
	SafebeltPct   decimal.Decimal // stop-loss distance, percent of entry price
	WinTriggerPct decimal.Decimal // take-profit distance, percent of entry price
	PriceTick     decimal.Decimal
	QuantityStep  decimal.Decimal
}

// Bounds are the two trigger prices of a bet's brackets.
type Bounds struct {
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Boundaries computes the stop-loss and take-profit triggers for a position
// entered at price. Both are rounded to the tick toward the entry price:
// UP rounds SL up and TP down, DOWN rounds SL down and TP up.
func (p Policy) Boundaries(price decimal.Decimal, dir domain.Direction) (Bounds, error) {
	if !price.IsPositive() {
		return Bounds{}, fmt.Errorf("%w: price %s", ErrNonPositive, price)
	}
	safebelt := p.SafebeltPct.Div(hundred)
	win := p.WinTriggerPct.Div(hundred)

	if dir == domain.DirectionUp {
		return Bounds{
			StopLoss:   Ceil(price.Mul(one.Sub(safebelt)), p.PriceTick),
			TakeProfit: Floor(price.Mul(one.Add(win)), p.PriceTick),
		}, nil
	}
	return Bounds{
		StopLoss:   Floor(price.Mul(one.Add(safebelt)), p.PriceTick),
		TakeProfit: Ceil(price.Mul(one.Sub(win)), p.PriceTick),
	}, nil
}

// Quantity converts a quote notional to a base quantity at markPrice,
// truncated to the quantity step.
func (p Policy) Quantity(notional, markPrice decimal.Decimal) (decimal.Decimal, error) {
	if !markPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: mark price %s", ErrNonPositive, markPrice)
	}
	qty := Floor(notional.Div(markPrice), p.QuantityStep)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity for notional %s at %s", ErrNonPositive, notional, markPrice)
	}
	return qty, nil
}

// TruncateQuantity truncates qty to the quantity step.
func (p Policy) TruncateQuantity(qty decimal.Decimal) decimal.Decimal {
	return Floor(qty, p.QuantityStep)
}

// Ceil rounds v up to a multiple of step. A non-positive step leaves v as is.
func Ceil(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Ceil().Mul(step)
}

// Floor rounds v down to a multiple of step. A non-positive step leaves v as is.
func Floor(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
