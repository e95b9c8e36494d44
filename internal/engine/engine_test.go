package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/gate"
)

type alwaysLong struct{}

func (alwaysLong) Observe(market.Tick) signal.Direction { return signal.Long }
func (alwaysLong) Ready() bool                          { return true }

type recordSink struct {
	NopSink
	opens   int
	exits   []position.Trade
	blocked []string
	skipped int
}

func (r *recordSink) OnOpen(*position.Position) { r.opens++ }
func (r *recordSink) OnExit(_ position.ExitEvent, tr position.Trade) {
	r.exits = append(r.exits, tr)
}
func (r *recordSink) OnBlocked(_ market.Tick, reason string) {
	r.blocked = append(r.blocked, reason)
}
func (r *recordSink) OnSkip(error) { r.skipped++ }

type stubSource struct {
	ticks []market.Tick
}

func (s *stubSource) Subscribe(context.Context, market.SubscribeOptions) (<-chan market.Tick, error) {
	ch := make(chan market.Tick, len(s.ticks))
	for _, t := range s.ticks {
		ch <- t
	}
	close(ch)
	return ch, nil
}

func (s *stubSource) Stats() market.SourceStats { return market.SourceStats{} }
func (s *stubSource) Close() error              { return nil }

func engineTick(hh, mm, ss int, price float64) market.Tick {
	return market.Tick{
		Time:   time.Date(2025, 6, 2, hh, mm, ss, 0, time.UTC),
		Price:  price,
		Volume: 1000,
	}
}

func newTestEngine(t *testing.T, sink Sink, tweakGate func(*gate.Config)) *Engine {
	t.Helper()
	sess, err := market.NewSession(market.SessionSpec{
		Timezone:          "UTC",
		Start:             "09:15",
		End:               "15:30",
		CloseAheadMinutes: 5,
	})
	require.NoError(t, err)

	book := position.NewBook(position.BookConfig{
		Capital:         100_000,
		LotSize:         1,
		Ladder:          []position.TPLevel{{Points: 50, Fraction: 1}},
		TrailEnabled:    false,
		TrailActivation: 5,
		TrailDistance:   5,
	})
	gcfg := gate.Config{MaxEntriesPerDay: 100, ConfirmWindow: 1200 * time.Second}
	if tweakGate != nil {
		tweakGate(&gcfg)
	}
	return New(Params{
		Symbol:   "NIFTY",
		Session:  sess,
		Book:     book,
		Producer: alwaysLong{},
		Gate:     gate.New(gcfg, sess),
		Regression: adaptive.NewRegression(adaptive.RegressionConfig{
			MaxPoints: 15, StepSize: 5, MinPoints: 5, Window: 1200 * time.Second,
		}),
		Sink: sink,
	})
}

func TestEngineEntryStopAndRegression(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, nil)

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 0, 100)))
	p := e.Book().Position()
	require.NotNil(t, p)
	assert.InDelta(t, 1000.0, p.InitialQty, 1e-9)
	assert.InDelta(t, 85.0, p.StopPrice, 1e-9)

	// 跌破止损,回归收缩到 10 点
	require.NoError(t, e.ProcessTick(engineTick(10, 0, 10, 84)))
	require.Nil(t, e.Book().Position())
	require.Len(t, sink.exits, 1)
	assert.Equal(t, position.ExitBaseStopLoss, sink.exits[0].Kind)

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 20, 100)))
	p = e.Book().Position()
	require.NotNil(t, p)
	assert.InDelta(t, 840.0, p.InitialQty, 1e-9)
	assert.InDelta(t, 90.0, p.StopPrice, 1e-9)

	// 第二次止损,回归钉到下限 5 点
	require.NoError(t, e.ProcessTick(engineTick(10, 0, 30, 89)))
	require.NoError(t, e.ProcessTick(engineTick(10, 0, 40, 100)))
	p = e.Book().Position()
	require.NotNil(t, p)
	assert.InDelta(t, 95.0, p.StopPrice, 1e-9)

	st := e.Stats()
	assert.Equal(t, int64(3), st.Entries)
	assert.Equal(t, int64(2), st.Exits)
	assert.Equal(t, int64(5), st.Processed)
}

func TestEngineSkipsBadTicks(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, func(c *gate.Config) { c.MaxEntriesPerDay = 0 })

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 0, 100)))
	// 时间倒退
	require.NoError(t, e.ProcessTick(engineTick(9, 59, 0, 101)))
	// 非正价格
	bad := engineTick(10, 1, 0, -5)
	require.NoError(t, e.ProcessTick(bad))
	require.NoError(t, e.ProcessTick(engineTick(10, 1, 30, 101)))

	st := e.Stats()
	assert.Equal(t, int64(2), st.Processed)
	assert.Equal(t, int64(2), st.Skipped)
	assert.Equal(t, 2, sink.skipped)
	assert.Equal(t, engineTick(10, 1, 30, 101).Time, e.LastTick().Time)
}

func TestEngineSessionCloseFlattens(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, nil)

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 0, 100)))
	require.NotNil(t, e.Book().Position())

	// 距收盘 4 分钟,触发强平
	require.NoError(t, e.ProcessTick(engineTick(15, 26, 0, 102)))
	assert.Nil(t, e.Book().Position())
	require.Len(t, sink.exits, 1)
	assert.Equal(t, position.ExitSessionEnd, sink.exits[0].Kind)

	// 当日封盘,不再入场
	require.NoError(t, e.ProcessTick(engineTick(15, 27, 0, 100)))
	assert.Nil(t, e.Book().Position())
	assert.Equal(t, int64(1), e.Stats().Entries)
}

func TestEngineBlockedEntriesSurfaceReason(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, func(c *gate.Config) { c.MaxEntriesPerDay = 0 })

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 0, 100)))
	require.NoError(t, e.ProcessTick(engineTick(10, 0, 10, 101)))

	assert.Zero(t, sink.opens)
	require.NotEmpty(t, sink.blocked)
	assert.Contains(t, sink.blocked[0], "daily entry limit reached (0)")
	assert.Equal(t, int64(2), e.Stats().Blocked)
}

func TestEngineRunFlattensOnSourceEOF(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, nil)
	src := &stubSource{ticks: []market.Tick{
		engineTick(10, 0, 0, 100),
		engineTick(10, 0, 10, 103),
	}}

	require.NoError(t, e.Run(context.Background(), src))

	assert.Nil(t, e.Book().Position())
	require.Len(t, sink.exits, 1)
	assert.Equal(t, position.ExitSessionEnd, sink.exits[0].Kind)
	assert.InDelta(t, 103.0, sink.exits[0].ExitPrice, 1e-9)
}

func TestEngineCloseManual(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, nil)

	_, err := e.CloseManual()
	assert.Error(t, err)

	require.NoError(t, e.ProcessTick(engineTick(10, 0, 0, 100)))
	require.NotNil(t, e.Book().Position())

	tr, err := e.CloseManual()
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, position.ExitManual, tr.Kind)
	assert.Nil(t, e.Book().Position())

	tr, err = e.CloseManual()
	require.NoError(t, err)
	assert.Nil(t, tr)
}
