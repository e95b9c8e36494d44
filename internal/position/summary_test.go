package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
	assert.NotNil(t, s.KindCounts)
}

func TestSummarize(t *testing.T) {
	trades := []Trade{
		{NetPnL: 100, Reason: "Take Profit 1", Costs: CostBreakdown{Total: 5}},
		{NetPnL: 50, Reason: "Take Profit 2", Costs: CostBreakdown{Total: 5}},
		{NetPnL: -75, Reason: "Base SL", Costs: CostBreakdown{Total: 5}},
	}
	s := Summarize(trades)

	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 66.6667, s.WinRate, 0.01)
	assert.InDelta(t, 150.0, s.GrossProfit, 1e-9)
	assert.InDelta(t, -75.0, s.GrossLoss, 1e-9)
	assert.InDelta(t, 75.0, s.NetPnL, 1e-9)
	assert.InDelta(t, 15.0, s.TotalCosts, 1e-9)
	assert.InDelta(t, 75.0, s.AvgWin, 1e-9)
	assert.InDelta(t, 75.0, s.AvgLoss, 1e-9)
	assert.InDelta(t, 100.0, s.BestTrade, 1e-9)
	assert.InDelta(t, -75.0, s.WorstTrade, 1e-9)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-9)
	assert.Equal(t, 1, s.KindCounts["Base SL"])
}

func TestSummarizeBreakEvenTradeCountsNeither(t *testing.T) {
	s := Summarize([]Trade{{NetPnL: 0, Reason: "Session End"}})
	assert.Equal(t, 1, s.Trades)
	assert.Zero(t, s.Wins)
	assert.Zero(t, s.Losses)
}
