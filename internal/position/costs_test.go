package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCosts() CostConfig {
	return CostConfig{
		CommissionPct: 0.03,
		MinCommission: 20,
		STTPct:        0.025,
		ExchangePct:   0.003,
		GSTPct:        18,
	}
}

func TestBreakdownBuyLeg(t *testing.T) {
	b := testCosts().Breakdown(100, 100, true)

	assert.InDelta(t, 10000.0, b.Turnover, 1e-9)
	// 0.03% of 10000 is 3, below the 20 floor
	assert.InDelta(t, 20.0, b.Commission, 1e-9)
	assert.Zero(t, b.STT)
	assert.InDelta(t, 0.3, b.Exchange, 1e-9)
	assert.InDelta(t, (20.0+0.3)*0.18, b.GST, 1e-9)
	assert.InDelta(t, 20+0.3+(20.0+0.3)*0.18, b.Total, 1e-9)
}

func TestBreakdownSellLegChargesSTT(t *testing.T) {
	b := testCosts().Breakdown(100, 100, false)

	assert.InDelta(t, 2.5, b.STT, 1e-9)
	assert.InDelta(t, 20+2.5+0.3+(20.0+0.3)*0.18, b.Total, 1e-9)
}

func TestBreakdownCommissionAboveFloor(t *testing.T) {
	b := testCosts().Breakdown(1000, 1000, true)

	assert.InDelta(t, 1_000_000.0, b.Turnover, 1e-6)
	assert.InDelta(t, 300.0, b.Commission, 1e-6)
}

func TestBreakdownAdd(t *testing.T) {
	a := testCosts().Breakdown(100, 100, false)
	b := testCosts().Breakdown(200, 50, false)
	sum := a.Add(b)

	assert.InDelta(t, a.Turnover+b.Turnover, sum.Turnover, 1e-9)
	assert.InDelta(t, a.Total+b.Total, sum.Total, 1e-9)
	assert.InDelta(t, a.STT+b.STT, sum.STT, 1e-9)
}
