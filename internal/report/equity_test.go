package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/backtest"
)

func reportPoints() []backtest.EquityPoint {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return []backtest.EquityPoint{
		{Time: base, Equity: 100000, Drawdown: 0},
		{Time: base.Add(time.Minute), Equity: 103997.5, Drawdown: 0},
		{Time: base.Add(2 * time.Minute), Equity: 99025, Drawdown: 0.0478},
		{Time: base.Add(3 * time.Minute), Equity: 99595, Drawdown: 0.0423},
	}
}

func TestRenderEquityHTML(t *testing.T) {
	stats := &backtest.RunStats{
		NetPnL:         -405,
		ReturnPct:      -0.405,
		Trades:         3,
		WinRate:        66.7,
		MaxDrawdownPct: 4.78,
	}
	html, err := RenderEquityHTML(EquityInput{
		Title:  "TEST",
		Tag:    "base_sl_points=5",
		Points: reportPoints(),
		Stats:  stats,
	})
	require.NoError(t, err)

	body := string(html)
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "TEST [base_sl_points=5]")
	assert.Contains(t, body, "Drawdown")
	assert.Contains(t, body, "win rate 66.7%")
	// 回撤序列以百分数落图
	assert.Contains(t, body, "4.78")
}

func TestRenderEquityHTMLRejectsEmptySeries(t *testing.T) {
	_, err := RenderEquityHTML(EquityInput{Title: "TEST"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no equity points")
}

func TestRenderEquityHTMLOmitsFixedTag(t *testing.T) {
	html, err := RenderEquityHTML(EquityInput{Title: "TEST", Tag: "fixed", Points: reportPoints()})
	require.NoError(t, err)
	assert.NotContains(t, string(html), "[fixed]")
}

func TestImageResultDataURI(t *testing.T) {
	img := &ImageResult{Bytes: []byte{0x89, 0x50, 0x4e, 0x47}}
	uri := img.DataURI()
	assert.Contains(t, uri, "data:image/png;base64,")

	var empty *ImageResult
	assert.Equal(t, "", empty.DataURI())
	assert.Equal(t, "", (&ImageResult{}).DataURI())
}

func TestStatsSubtitle(t *testing.T) {
	assert.Equal(t, "", statsSubtitle(nil))
	got := statsSubtitle(&backtest.RunStats{NetPnL: 2340, ReturnPct: 2.34, Trades: 2, WinRate: 50, MaxDrawdownPct: 1.59})
	assert.Equal(t, "net +2340.00 (2.34%) | trades 2 | win rate 50.0% | max dd 1.59%", got)
}
