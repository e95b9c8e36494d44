package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/market"
	"banyan/internal/position"
)

func metricsBook() *position.Book {
	return position.NewBook(position.BookConfig{
		Capital:   100000,
		MarginPct: 1.0,
		LotSize:   25,
		Ladder:    []position.TPLevel{{Points: 4, Fraction: 0.5}, {Points: 8, Fraction: 0.5}},
	})
}

func metricsTick(ss int, price float64) market.Tick {
	return market.Tick{
		Time:   time.Date(2026, 3, 2, 10, 0, ss, 0, time.UTC),
		Price:  price,
		Volume: 1000,
	}
}

func TestSinkCountsTicksAndEquity(t *testing.T) {
	set := New()
	sink := NewSink(set, metricsBook())

	sink.OnTick(metricsTick(0, 100))
	sink.OnTick(metricsTick(1, 101))
	sink.OnSkip(assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(set.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.skipped))
	// 空仓时权益就是可用资金
	assert.Equal(t, 100000.0, testutil.ToFloat64(set.equity))
}

func TestSinkTracksPositionLifecycle(t *testing.T) {
	set := New()
	book := metricsBook()
	sink := NewSink(set, book)

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	p, err := book.Open("TEST", position.SideLong, 50, 100.0, ts, 5)
	require.NoError(t, err)
	sink.OnOpen(p)

	assert.Equal(t, 1.0, testutil.ToFloat64(set.entries))
	assert.Equal(t, 50.0, testutil.ToFloat64(set.openQty))
	assert.Equal(t, 5.0, testutil.ToFloat64(set.stopPoints))

	// 部分止盈:剩余仓位与止损距离保持
	ev := position.ExitEvent{
		PositionID: p.ID,
		Kind:       position.ExitTakeProfit,
		Level:      1,
		Price:      104.0,
		Quantity:   25,
		Time:       ts.Add(30 * time.Second),
	}
	tr, err := book.ApplyExit(ev)
	require.NoError(t, err)
	sink.OnExit(ev, *tr)

	assert.Equal(t, 1.0, testutil.ToFloat64(set.exits.WithLabelValues("take_profit")))
	assert.Equal(t, 25.0, testutil.ToFloat64(set.openQty))
	assert.Equal(t, 5.0, testutil.ToFloat64(set.stopPoints))

	// 剩余仓位击穿止损全平:两个仓位类 gauge 归零
	ev = position.ExitEvent{
		PositionID: p.ID,
		Kind:       position.ExitBaseStopLoss,
		Price:      95.0,
		Quantity:   25,
		Time:       ts.Add(60 * time.Second),
	}
	tr, err = book.ApplyExit(ev)
	require.NoError(t, err)
	sink.OnExit(ev, *tr)

	assert.Equal(t, 1.0, testutil.ToFloat64(set.exits.WithLabelValues("base_sl")))
	assert.Equal(t, 0.0, testutil.ToFloat64(set.openQty))
	assert.Equal(t, 0.0, testutil.ToFloat64(set.stopPoints))
}

func TestReasonClassNormalization(t *testing.T) {
	cases := map[string]string{
		"no long signal":                             "no_signal",
		"within trade block 11:00-11:15":             "trade_block",
		"outside trading session":                    "outside_session",
		"inside session open buffer":                 "open_buffer",
		"inside session close buffer":                "close_buffer",
		"in no-trade open window":                    "no_trade_open",
		"in no-trade close window":                   "no_trade_close",
		"daily entry limit reached (100)":            "entry_limit",
		"daily loss limit hit (-2500.00)":            "loss_limit",
		"cooldown active (42s remaining)":            "cooldown",
		"need 3 green ticks, have 1":                 "confirmation",
		"price 99.20 below re-entry threshold 99.40": "price_filter",
		"insufficient capital: required 105000.00, available 100000.00": "sizing",
		"quantity must be positive: got 0.00":                           "sizing",
		"a position is already open: ab12cd34":                          "position_open",
		"something nobody anticipated":                                  "other",
	}
	for reason, want := range cases {
		assert.Equal(t, want, reasonClass(reason), reason)
	}
}

func TestBlockedLabelCardinalityStaysBounded(t *testing.T) {
	set := New()
	sink := NewSink(set, nil)

	// 同类拒绝带不同数字,只能产生一条时间序列
	sink.OnBlocked(market.Tick{}, "cooldown active (42s remaining)")
	sink.OnBlocked(market.Tick{}, "cooldown active (17s remaining)")
	sink.OnBlocked(market.Tick{}, "cooldown active (3s remaining)")

	assert.Equal(t, 1, testutil.CollectAndCount(set.blocked))
	assert.Equal(t, 3.0, testutil.ToFloat64(set.blocked.WithLabelValues("cooldown")))
}

func TestRegistryGathersAllFamilies(t *testing.T) {
	set := New()
	book := metricsBook()
	sink := NewSink(set, book)

	sink.OnTick(metricsTick(0, 100))
	sink.OnSkip(assert.AnError)
	sink.OnBlocked(market.Tick{}, "no long signal")

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	p, err := book.Open("TEST", position.SideLong, 25, 100.0, ts, 5)
	require.NoError(t, err)
	sink.OnOpen(p)
	ev := position.ExitEvent{PositionID: p.ID, Kind: position.ExitSessionEnd, Price: 101, Quantity: 25, Time: ts.Add(time.Minute)}
	tr, err := book.ApplyExit(ev)
	require.NoError(t, err)
	sink.OnExit(ev, *tr)

	families, err := set.Registry().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 8)
}
