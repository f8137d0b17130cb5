package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the number of implied decimals in a bet amount.
const AmountDecimals = 18

// Direction is the side a bettor took on the price.
type Direction int

const (
	DirectionUp   Direction = 0
	DirectionDown Direction = 1
)

// ParseDirection converts the on-chain direction code into a Direction.
func ParseDirection(code uint64) (Direction, error) {
	switch code {
	case 0:
		return DirectionUp, nil
	case 1:
		return DirectionDown, nil
	default:
		return 0, fmt.Errorf("%w: direction code %d", ErrMalformed, code)
	}
}

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "Direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// EntrySide is the exchange side that opens a position in this direction.
func (d Direction) EntrySide() OrderSide {
	if d == DirectionUp {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Outcome is the terminal state of a bet.
type Outcome int

const (
	OutcomeWin     Outcome = 1
	OutcomeLose    Outcome = 2
	OutcomeTimeout Outcome = 3
)

// ParseOutcome converts a persisted outcome code into an Outcome.
func ParseOutcome(code int) (Outcome, error) {
	o := Outcome(code)
	switch o {
	case OutcomeWin, OutcomeLose, OutcomeTimeout:
		return o, nil
	default:
		return 0, fmt.Errorf("%w: outcome code %d", ErrMalformed, code)
	}
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "WIN"
	case OutcomeLose:
		return "LOSE"
	case OutcomeTimeout:
		return "TIMEOUT"
	default:
		return "Outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Bet is one on-chain wager mirrored in the local ledger.
type Bet struct {
	ID          int64
	TxHash      [32]byte
	Sender      [20]byte
	Amount      [32]byte // big-endian, AmountDecimals implied decimals
	CreatedAt   time.Time
	Direction   Direction
	Outcome     *Outcome // nil while the bet is open
	AcceptedAt  *time.Time
	BlockNumber uint64
}

// Base is the client-order-id prefix shared by every exchange order of the bet.
func (b Bet) Base() string {
	return strconv.FormatInt(b.ID, 10)
}

// AmountInt returns the raw amount as an integer.
func (b Bet) AmountInt() *big.Int {
	return new(big.Int).SetBytes(b.Amount[:])
}

// PositionSize returns the amount scaled down by AmountDecimals.
func (b Bet) PositionSize() decimal.Decimal {
	return decimal.NewFromBigInt(b.AmountInt(), -AmountDecimals)
}

// Resolved reports whether the bet already has an outcome.
func (b Bet) Resolved() bool {
	return b.Outcome != nil
}

// Accepted reports whether the exchange position and chain acknowledgement
// were both requested for the bet.
func (b Bet) Accepted() bool {
	return b.AcceptedAt != nil
}

// AmountFromInt encodes v into the 32-byte big-endian amount form.
func AmountFromInt(v *big.Int) [32]byte {
	var out [32]byte
	v.FillBytes(out[:])
	return out
}
