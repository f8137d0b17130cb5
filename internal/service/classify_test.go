package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

func openOrders(ids ...string) []domain.OpenOrder {
	out := make([]domain.OpenOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.OpenOrder{ClientOrderID: id, Status: domain.OrderStatusNew})
	}
	return out
}

func TestClassifyOpenOrders(t *testing.T) {
	c := ClassifyOpenOrders(openOrders(
		"422", "423", // bet 42 fully bracketed
		"73",         // bet 7: take-profit fired
		"52",         // bet 5: stop-loss fired
		"91",         // entry order, ignored
		"94",         // flatten order, ignored
		"web_abc",    // foreign order
		"",
	))

	assert.Equal(t, []int64{42}, c.Active)
	assert.Equal(t, []SettlementCandidate{
		{BetID: 5, OpenRole: domain.RoleTakeProfit, OpenClientID: "52", AbsentRole: domain.RoleStopLoss, ImpliedResult: domain.OutcomeLose},
		{BetID: 7, OpenRole: domain.RoleStopLoss, OpenClientID: "73", AbsentRole: domain.RoleTakeProfit, ImpliedResult: domain.OutcomeWin},
	}, c.Candidates)
}

func TestClassifyOpenOrders_Empty(t *testing.T) {
	c := ClassifyOpenOrders(nil)
	assert.Empty(t, c.Active)
	assert.Empty(t, c.Candidates)
}
