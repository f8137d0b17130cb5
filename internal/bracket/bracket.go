// Package bracket encodes the client-order-ids that tie exchange orders to
// bets. An id is the decimal bet id followed by a single role digit, so every
// order of a bet can be recovered from the open-orders listing alone.
package bracket

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// MaxClientOrderIDLen is the exchange's client-order-id length limit.
const MaxClientOrderIDLen = 36

var (
	ErrInvalidBase = errors.New("bracket: invalid base")
	ErrTooLong     = errors.New("bracket: client order id too long")
	ErrDecode      = fmt.Errorf("bracket: undecodable client order id: %w", domain.ErrMalformed)
	ErrInvalidRole = errors.New("bracket: role has no inverse")
)

// Encode joins base and role into a client-order-id.
func Encode(base string, role domain.Role) (string, error) {
	if !isDecimal(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	id := base + string(rune('0'+int(role)))
	if len(id) > MaxClientOrderIDLen {
		return "", fmt.Errorf("%w: %d chars", ErrTooLong, len(id))
	}
	return id, nil
}

// EncodeBet is Encode for a bet id.
func EncodeBet(id int64, role domain.Role) (string, error) {
	return Encode(domain.Bet{ID: id}.Base(), role)
}

// Decode splits a client-order-id into its base and role.
func Decode(id string) (string, domain.Role, error) {
	if len(id) < 2 {
		return "", 0, fmt.Errorf("%w: %q", ErrDecode, id)
	}
	last := id[len(id)-1]
	if last < '0' || last > '9' {
		return "", 0, fmt.Errorf("%w: %q", ErrDecode, id)
	}
	role := domain.Role(last - '0')
	base := id[:len(id)-1]
	if !role.Valid() || !isDecimal(base) {
		return "", 0, fmt.Errorf("%w: %q", ErrDecode, id)
	}
	return base, role, nil
}

// Inverse maps a protective leg to the opposite leg.
func Inverse(role domain.Role) (domain.Role, error) {
	switch role {
	case domain.RoleTakeProfit:
		return domain.RoleStopLoss, nil
	case domain.RoleStopLoss:
		return domain.RoleTakeProfit, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
