package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Role identifies which leg of a bet an exchange order represents. The
// numeric code is the last character of the client-order-id.
type Role int

const (
	RoleEntry      Role = 1
	RoleTakeProfit Role = 2
	RoleStopLoss   Role = 3
	RoleFlatten    Role = 4 // closing order issued when a bet times out
)

// Valid reports whether r is a known role code.
func (r Role) Valid() bool {
	return r >= RoleEntry && r <= RoleFlatten
}

// IsBracket reports whether r is one of the two protective legs.
func (r Role) IsBracket() bool {
	return r == RoleTakeProfit || r == RoleStopLoss
}

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleEntry:
		return "ENTRY"
	case RoleTakeProfit:
		return "TAKE_PROFIT"
	case RoleStopLoss:
		return "STOP_LOSS"
	case RoleFlatten:
		return "FLATTEN"
	default:
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
}

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the closing side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// OrderStatus tracks the exchange order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// EntryRequest opens (or, with ReduceOnly, closes) a position at market.
type EntryRequest struct {
	ClientOrderID string
	Side          OrderSide
	Notional      decimal.Decimal // quote-currency value, leverage included
	ReduceOnly    bool
}

// BracketRequest places a conditional closing order.
type BracketRequest struct {
	ClientOrderID string
	Side          OrderSide
	Type          OrderType
	StopPrice     decimal.Decimal
	Quantity      decimal.Decimal
}

// Fill is the terminal result of a market order.
type Fill struct {
	ClientOrderID string
	OrderID       int64
	Status        OrderStatus
	Side          OrderSide
	AvgPrice      decimal.Decimal
	ExecutedQty   decimal.Decimal
}

// Ack acknowledges an accepted order or cancellation.
type Ack struct {
	ClientOrderID string
	OrderID       int64
	Status        OrderStatus
}

// OpenOrder is one resting order on the exchange account.
type OpenOrder struct {
	ClientOrderID string
	OrderID       int64
	Type          OrderType
	Side          OrderSide
	Status        OrderStatus
	StopPrice     decimal.Decimal
	Quantity      decimal.Decimal
}
