package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/position"
)

func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "sweeps.db")
	s, err := NewResultStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertDoneRun(t *testing.T, s *ResultStore, id, sweep string, netPnL float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertRun(ctx, Run{
		ID:     id,
		Sweep:  sweep,
		Tag:    "tag-" + id,
		Status: RunStatusRunning,
		Params: map[string]any{"risk.base_sl_points": 10.0},
	}))
	require.NoError(t, s.UpdateRunSummary(ctx, id, RunStatusDone,
		RunStats{NetPnL: netPnL, Trades: 1}, ""))
}

func TestResultStoreRunLifecycle(t *testing.T) {
	s := newTestResultStore(t)
	ctx := context.Background()

	run := Run{
		ID:     "r1",
		Sweep:  "demo",
		Tag:    "base_sl_points=10",
		Status: RunStatusRunning,
		Params: map[string]any{"risk.base_sl_points": 10.0},
	}
	require.NoError(t, s.InsertRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, "demo", got.Sweep)
	assert.Equal(t, "base_sl_points=10", got.Tag)
	assert.InDelta(t, 10.0, got.Params["risk.base_sl_points"].(float64), 1e-9)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.CompletedAt.IsZero())

	stats := RunStats{NetPnL: 1234.5, ReturnPct: 1.2345, Trades: 7, WinRate: 57.1, MaxDrawdownPct: 3.3}
	require.NoError(t, s.UpdateRunSummary(ctx, "r1", RunStatusDone, stats, ""))

	got, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.InDelta(t, 1234.5, got.Stats.NetPnL, 1e-9)
	assert.Equal(t, 7, got.Stats.Trades)
	assert.InDelta(t, 57.1, got.Stats.WinRate, 1e-9)
	assert.False(t, got.CompletedAt.IsZero())

	// 状态改回 running 不清完成时间。
	require.NoError(t, s.UpdateRunStatus(ctx, "r1", RunStatusRunning, "retry"))
	got, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, "retry", got.Message)
	assert.False(t, got.CompletedAt.IsZero())

	_, err = s.GetRun(ctx, "missing")
	assert.Error(t, err)
}

func TestResultStoreListRunsRanking(t *testing.T) {
	s := newTestResultStore(t)
	ctx := context.Background()

	insertDoneRun(t, s, "r-mid", "grid", 100)
	insertDoneRun(t, s, "r-low", "grid", -50)
	insertDoneRun(t, s, "r-best", "grid", 300)
	insertDoneRun(t, s, "r-other", "other", 9999)

	runs, err := s.ListRuns(ctx, "grid", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r-best", runs[0].ID)
	assert.Equal(t, "r-mid", runs[1].ID)
	assert.Equal(t, "r-low", runs[2].ID)

	all, err := s.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "r-other", all[0].ID)

	top, err := s.ListRuns(ctx, "grid", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "r-best", top[0].ID)
}

func TestResultStoreTradesAndSnapshots(t *testing.T) {
	s := newTestResultStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	insertDoneRun(t, s, "r1", "demo", 0)

	trades := []position.Trade{
		{
			ID: "t2", PositionID: "p1", Symbol: "TEST", Side: position.SideLong,
			EntryTime: base, ExitTime: base.Add(2 * time.Minute),
			EntryPrice: 100, ExitPrice: 97, Quantity: 50,
			GrossPnL: -150, NetPnL: -150,
			Kind: position.ExitBaseStopLoss, Reason: "Base SL",
		},
		{
			ID: "t1", PositionID: "p1", Symbol: "TEST", Side: position.SideLong,
			EntryTime: base, ExitTime: base.Add(time.Minute),
			EntryPrice: 100, ExitPrice: 104, Quantity: 50,
			GrossPnL: 200, NetPnL: 195.5,
			Kind: position.ExitTakeProfit, Level: 1, Reason: "Take Profit 1",
		},
	}
	require.NoError(t, s.InsertTrades(ctx, "r1", trades))

	// 读出按出场时间升序,与写入顺序无关。
	got, err := s.ListTrades(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TradeUID)
	assert.Equal(t, "long", got[0].Side)
	assert.Equal(t, "Take Profit", got[0].Kind)
	assert.Equal(t, 1, got[0].Level)
	assert.Equal(t, "Take Profit 1", got[0].Reason)
	assert.InDelta(t, 195.5, got[0].NetPnL, 1e-9)
	assert.Equal(t, base.UnixMilli(), got[0].EntryTime.UnixMilli())
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), got[0].ExitTime.UnixMilli())
	assert.Equal(t, "t2", got[1].TradeUID)
	assert.Equal(t, "Base SL", got[1].Kind)

	points := []EquityPoint{
		{Time: base, Equity: 100000, Drawdown: 0},
		{Time: base.Add(time.Minute), Equity: 100195.5, Drawdown: 0},
		{Time: base.Add(2 * time.Minute), Equity: 100045.5, Drawdown: 0.0015},
	}
	require.NoError(t, s.InsertSnapshots(ctx, "r1", points))

	snaps, err := s.ListSnapshots(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, base.UnixMilli(), snaps[0].Time.UnixMilli())
	assert.InDelta(t, 100000.0, snaps[0].Equity, 1e-9)
	assert.InDelta(t, 0.0015, snaps[2].Drawdown, 1e-9)

	// 空批次是无操作,查不到的 run 返回空集。
	require.NoError(t, s.InsertTrades(ctx, "r1", nil))
	require.NoError(t, s.InsertSnapshots(ctx, "r1", nil))
	none, err := s.ListTrades(ctx, "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResultStoreRejectsBlankPath(t *testing.T) {
	_, err := NewResultStore("   ")
	require.Error(t, err)
}
