package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/market"
	"banyan/internal/position"
)

var t0 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func openTestPosition(t *testing.T) (*position.Book, *position.Position) {
	t.Helper()
	b := position.NewBook(position.BookConfig{
		Capital: 100_000,
		LotSize: 1,
		Ladder: []position.TPLevel{
			{Points: 5, Fraction: 0.4},
			{Points: 12, Fraction: 0.3},
			{Points: 20, Fraction: 0.2},
			{Points: 30, Fraction: 0.1},
		},
		TrailEnabled:    true,
		TrailActivation: 5,
		TrailDistance:   5,
	})
	p, err := b.Open("NIFTY", position.SideLong, 100, 100, t0, 15)
	require.NoError(t, err)
	return b, p
}

func tick(price float64, offset time.Duration) market.Tick {
	return market.Tick{Time: t0.Add(offset), Price: price, Volume: 1000}
}

func TestEvaluateNothingInsideBands(t *testing.T) {
	_, p := openTestPosition(t)
	assert.Nil(t, Evaluate(p, tick(102, time.Second)))
	assert.Nil(t, Evaluate(nil, tick(102, time.Second)))
}

func TestEvaluateBaseStopFullQuantity(t *testing.T) {
	_, p := openTestPosition(t)
	ev := Evaluate(p, tick(85, time.Second))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitBaseStopLoss, ev.Kind)
	assert.InDelta(t, 100.0, ev.Quantity, 1e-9)
	assert.InDelta(t, 85.0, ev.Price, 1e-9)
}

func TestEvaluateLadderWalk(t *testing.T) {
	b, p := openTestPosition(t)

	ev := Evaluate(p, tick(105, time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitTakeProfit, ev.Kind)
	assert.Equal(t, 1, ev.Level)
	assert.InDelta(t, 40.0, ev.Quantity, 1e-9)

	_, err := b.ApplyExit(*ev)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, p.Remaining, 1e-9)

	// 档位消耗后同价不再触发
	assert.Nil(t, Evaluate(p, tick(105, 2*time.Minute)))

	ev = Evaluate(p, tick(112, 3*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, 2, ev.Level)
	assert.InDelta(t, 30.0, ev.Quantity, 1e-9)
}

func TestEvaluateOneLevelPerTick(t *testing.T) {
	b, p := openTestPosition(t)

	// 一笔跳空越过前两档,先只触发最低档
	ev := Evaluate(p, tick(113, time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.Level)
	assert.InDelta(t, 40.0, ev.Quantity, 1e-9)

	_, err := b.ApplyExit(*ev)
	require.NoError(t, err)

	// 下一个 tick 才轮到第二档
	ev = Evaluate(p, tick(113, 2*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, 2, ev.Level)
}

func TestEvaluateStopBeatsTakeProfitOnGap(t *testing.T) {
	b, p := openTestPosition(t)

	// 125 触发第一档并把移动止损棘轮到 120
	ev := Evaluate(p, tick(125, time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.Level)
	_, err := b.ApplyExit(*ev)
	require.NoError(t, err)

	// 115 同时满足第二档止盈(112)与移动止损(120),止损优先
	ev = Evaluate(p, tick(115, 2*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitTrailingStop, ev.Kind)
	assert.InDelta(t, 60.0, ev.Quantity, 1e-9)
}

func TestEvaluateTrailingFiresAtStop(t *testing.T) {
	b := position.NewBook(position.BookConfig{
		Capital:         100_000,
		LotSize:         1,
		Ladder:          []position.TPLevel{{Points: 50, Fraction: 1}},
		TrailEnabled:    true,
		TrailActivation: 5,
		TrailDistance:   5,
	})
	p, err := b.Open("NIFTY", position.SideLong, 100, 100, t0, 15)
	require.NoError(t, err)

	assert.Nil(t, Evaluate(p, tick(105, time.Second)))
	require.True(t, p.TrailArmed)
	assert.Nil(t, Evaluate(p, tick(110, 2*time.Second)))
	assert.InDelta(t, 105.0, p.TrailStop, 1e-9)

	ev := Evaluate(p, tick(105, 3*time.Second))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitTrailingStop, ev.Kind)
	assert.InDelta(t, 100.0, ev.Quantity, 1e-9)
}

func TestEvaluateIdempotentPerTick(t *testing.T) {
	_, p := openTestPosition(t)
	tk := tick(110, time.Minute)

	first := Evaluate(p, tk)
	second := Evaluate(p, tk)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestEvaluateFinalLevelTakesRemainder(t *testing.T) {
	b, p := openTestPosition(t)
	for i, price := range []float64{105, 112, 120} {
		ev := Evaluate(p, tick(price, time.Duration(i+1)*time.Minute))
		require.NotNil(t, ev)
		require.Equal(t, i+1, ev.Level)
		_, err := b.ApplyExit(*ev)
		require.NoError(t, err)
	}
	require.InDelta(t, 10.0, p.Remaining, 1e-9)

	// 移动止损此时已棘轮到 115,130 以上才能走到末档
	ev := Evaluate(p, tick(131, 10*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, 4, ev.Level)
	assert.InDelta(t, 10.0, ev.Quantity, 1e-9)
}

func TestEvaluateShortMirror(t *testing.T) {
	b := position.NewBook(position.BookConfig{
		Capital:         100_000,
		LotSize:         1,
		Ladder:          []position.TPLevel{{Points: 5, Fraction: 0.5}, {Points: 12, Fraction: 0.5}},
		TrailEnabled:    true,
		TrailActivation: 5,
		TrailDistance:   5,
	})
	p, err := b.Open("NIFTY", position.SideShort, 100, 100, t0, 15)
	require.NoError(t, err)

	ev := Evaluate(p, tick(95, time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitTakeProfit, ev.Kind)
	assert.Equal(t, 1, ev.Level)

	_, err = b.ApplyExit(*ev)
	require.NoError(t, err)

	ev = Evaluate(p, tick(116, 2*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, position.ExitBaseStopLoss, ev.Kind)
}
