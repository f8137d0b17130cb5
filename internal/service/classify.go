package service

import (
	"sort"
	"strconv"

	"github.com/alanyoungcy/betbridge/internal/bracket"
	"github.com/alanyoungcy/betbridge/internal/domain"
)

// SettlementCandidate is a bet with exactly one bracket leg still open: the
// other leg has fired (or been canceled) on the exchange.
type SettlementCandidate struct {
	BetID         int64
	OpenRole      domain.Role
	OpenClientID  string
	AbsentRole    domain.Role
	ImpliedResult domain.Outcome
}

// Classification splits the open-order listing into bets that are still
// fully bracketed and bets that need settling.
type Classification struct {
	Active     []int64
	Candidates []SettlementCandidate
}

// ClassifyOpenOrders groups open orders by bet. Ids that do not decode, and
// ENTRY or FLATTEN orders, are ignored. Results are sorted by bet id.
func ClassifyOpenOrders(orders []domain.OpenOrder) Classification {
	byBet := make(map[int64]map[domain.Role]string)

	for _, o := range orders {
		base, role, err := bracket.Decode(o.ClientOrderID)
		if err != nil || !role.IsBracket() {
			continue
		}
		id, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			continue
		}
		legs, ok := byBet[id]
		if !ok {
			legs = make(map[domain.Role]string, 2)
			byBet[id] = legs
		}
		legs[role] = o.ClientOrderID
	}

	var out Classification
	for id, legs := range byBet {
		if len(legs) > 1 {
			out.Active = append(out.Active, id)
			continue
		}
		for role, clientID := range legs {
			absent, _ := bracket.Inverse(role)
			result := domain.OutcomeLose
			if absent == domain.RoleTakeProfit {
				result = domain.OutcomeWin
			}
			out.Candidates = append(out.Candidates, SettlementCandidate{
				BetID:         id,
				OpenRole:      role,
				OpenClientID:  clientID,
				AbsentRole:    absent,
				ImpliedResult: result,
			})
		}
	}

	sort.Slice(out.Active, func(i, j int) bool { return out.Active[i] < out.Active[j] })
	sort.Slice(out.Candidates, func(i, j int) bool { return out.Candidates[i].BetID < out.Candidates[j].BetID })
	return out
}
