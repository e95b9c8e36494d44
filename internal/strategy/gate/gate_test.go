package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
)

func newTestSession(t *testing.T, tweak func(*market.SessionSpec)) *market.Session {
	t.Helper()
	spec := market.SessionSpec{Timezone: "UTC", Start: "09:15", End: "15:30"}
	if tweak != nil {
		tweak(&spec)
	}
	sess, err := market.NewSession(spec)
	require.NoError(t, err)
	return sess
}

// 基准配置:确认门槛与过滤全关,单独的测试再按需打开。
func newTestGate(t *testing.T, tweakSpec func(*market.SessionSpec), tweakCfg func(*Config)) *Gate {
	t.Helper()
	cfg := Config{
		MaxEntriesPerDay: 100,
		ConfirmWindow:    1200 * time.Second,
	}
	if tweakCfg != nil {
		tweakCfg(&cfg)
	}
	return New(cfg, newTestSession(t, tweakSpec))
}

func dayTick(hh, mm, ss int, price float64) market.Tick {
	return market.Tick{
		Time:   time.Date(2025, 6, 2, hh, mm, ss, 0, time.UTC),
		Price:  price,
		Volume: 1000,
	}
}

func TestGateRequiresLongSignal(t *testing.T) {
	g := newTestGate(t, nil, nil)
	ok, reason := g.CanEnter(dayTick(10, 0, 0, 100), signal.None)
	assert.False(t, ok)
	assert.Equal(t, "no long signal", reason)
}

func TestGateTradeBlockFirst(t *testing.T) {
	g := newTestGate(t, func(s *market.SessionSpec) {
		s.Blocks = []string{"12:00-12:30"}
	}, nil)

	ok, reason := g.CanEnter(dayTick(12, 15, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Contains(t, reason, "within trade block 12:00-12:30")

	ok, _ = g.CanEnter(dayTick(12, 31, 0, 100), signal.Long)
	assert.True(t, ok)
}

func TestGateSessionAndBuffers(t *testing.T) {
	g := newTestGate(t, func(s *market.SessionSpec) {
		s.OpenBufferMinutes = 20
		s.CloseBufferMinutes = 40
	}, nil)

	ok, reason := g.CanEnter(dayTick(8, 0, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "outside trading session", reason)

	ok, reason = g.CanEnter(dayTick(9, 20, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "inside session open buffer", reason)

	ok, reason = g.CanEnter(dayTick(15, 0, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "inside session close buffer", reason)

	ok, _ = g.CanEnter(dayTick(12, 0, 0, 100), signal.Long)
	assert.True(t, ok)
}

func TestGateNoTradeWindows(t *testing.T) {
	g := newTestGate(t, func(s *market.SessionSpec) {
		s.NoTradeOpenMinutes = 5
		s.NoTradeCloseMinutes = 10
	}, nil)

	ok, reason := g.CanEnter(dayTick(9, 17, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "in no-trade open window", reason)

	ok, reason = g.CanEnter(dayTick(15, 25, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "in no-trade close window", reason)
}

func TestGateDailyEntryLimit(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) { c.MaxEntriesPerDay = 2 })
	g.ObserveTick(dayTick(10, 0, 0, 100))

	g.OnEntry(dayTick(10, 0, 0, 100).Time)
	g.OnEntry(dayTick(10, 5, 0, 100).Time)

	ok, reason := g.CanEnter(dayTick(10, 10, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily entry limit reached (2)")
}

func TestGateDailyLossLimit(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) { c.DailyLossLimit = 1000 })
	g.ObserveTick(dayTick(10, 0, 0, 100))

	g.OnExit(position.ExitEvent{
		Kind: position.ExitSessionEnd, Price: 100, Time: dayTick(10, 0, 0, 100).Time,
	}, -1200)

	ok, reason := g.CanEnter(dayTick(10, 5, 0, 100), signal.Long)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss limit hit")
}

func TestGateCooldown(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) { c.Cooldown = 60 * time.Second })
	g.OnEntry(dayTick(10, 0, 0, 100).Time)

	ok, reason := g.CanEnter(dayTick(10, 0, 30, 100), signal.Long)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown active")

	ok, _ = g.CanEnter(dayTick(10, 1, 10, 100), signal.Long)
	assert.True(t, ok)
}

func TestGateConfirmationEscalation(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) {
		c.ConfirmBase = 2
		c.ConfirmStep = 1
		c.ConfirmMax = 4
	})

	// 两个绿 tick 满足基准门槛
	g.ObserveTick(dayTick(10, 0, 0, 100))
	g.ObserveTick(dayTick(10, 0, 1, 101))
	g.ObserveTick(dayTick(10, 0, 2, 102))
	ok, _ := g.CanEnter(dayTick(10, 0, 2, 102), signal.Long)
	assert.True(t, ok)

	// 亏损离场后门槛抬到 3
	g.OnExit(position.ExitEvent{
		Kind: position.ExitBaseStopLoss, Price: 101, Time: dayTick(10, 1, 0, 101).Time,
	}, -500)
	assert.Equal(t, 3, g.Required())

	ok, reason := g.CanEnter(dayTick(10, 1, 1, 102), signal.Long)
	assert.False(t, ok)
	assert.Equal(t, "need 3 green ticks, have 2", reason)

	g.ObserveTick(dayTick(10, 1, 2, 103))
	ok, _ = g.CanEnter(dayTick(10, 1, 2, 103), signal.Long)
	assert.True(t, ok)

	// 连续第二次亏损继续抬升
	g.OnExit(position.ExitEvent{
		Kind: position.ExitTrailingStop, Price: 102, Time: dayTick(10, 2, 0, 102).Time,
	}, -300)
	assert.Equal(t, 4, g.Required())

	// 止盈离场恢复基准
	g.OnExit(position.ExitEvent{
		Kind: position.ExitTakeProfit, Level: 1, Price: 108, Time: dayTick(10, 3, 0, 108).Time,
	}, 800)
	assert.Equal(t, 2, g.Required())
}

func TestGateRecoveryFilterScenario(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) {
		c.RecoveryFilter = true
		c.PriceBuffer = 2
		c.FilterDuration = 180 * time.Second
	})
	exitAt := dayTick(10, 0, 0, 100)
	g.OnExit(position.ExitEvent{
		Kind: position.ExitBaseStopLoss, Price: 100, Time: exitAt.Time,
	}, -500)

	// +30s 价格 101:低于 102 门槛,拦截
	ok, reason := g.CanEnter(dayTick(10, 0, 30, 101), signal.Long)
	assert.False(t, ok)
	assert.Contains(t, reason, "below re-entry threshold 102.00")

	// +30s 价格 103:已收复,放行
	ok, _ = g.CanEnter(dayTick(10, 0, 30, 103), signal.Long)
	assert.True(t, ok)

	// +200s 价格 100.5:门槛未到但过滤已过期,放行
	ok, _ = g.CanEnter(dayTick(10, 3, 20, 100.5), signal.Long)
	assert.True(t, ok)
}

func TestGateRecoveryFilterOnlyAfterLossExit(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) {
		c.RecoveryFilter = true
		c.PriceBuffer = 2
		c.FilterDuration = 180 * time.Second
	})
	g.OnExit(position.ExitEvent{
		Kind: position.ExitTakeProfit, Level: 1, Price: 100, Time: dayTick(10, 0, 0, 100).Time,
	}, 400)

	ok, _ := g.CanEnter(dayTick(10, 0, 30, 99), signal.Long)
	assert.True(t, ok)
}

func TestGateLastExitKindSupersedesOlderLoss(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) {
		c.RecoveryFilter = true
		c.PriceBuffer = 2
		c.FilterDuration = 180 * time.Second
	})
	g.OnExit(position.ExitEvent{
		Kind: position.ExitBaseStopLoss, Price: 100, Time: dayTick(10, 0, 0, 100).Time,
	}, -500)
	// 随后的止盈离场解除过滤
	g.OnExit(position.ExitEvent{
		Kind: position.ExitTakeProfit, Level: 1, Price: 101, Time: dayTick(10, 1, 0, 101).Time,
	}, 300)

	ok, _ := g.CanEnter(dayTick(10, 1, 30, 99), signal.Long)
	assert.True(t, ok)
}

func TestGateDayRollover(t *testing.T) {
	g := newTestGate(t, nil, func(c *Config) { c.ConfirmBase = 1 })
	g.ObserveTick(dayTick(10, 0, 0, 100))
	g.OnEntry(dayTick(10, 0, 0, 100).Time)
	g.OnExit(position.ExitEvent{
		Kind: position.ExitBaseStopLoss, Price: 99, Time: dayTick(10, 1, 0, 99).Time,
	}, -500)
	require.Equal(t, 1, g.EntriesToday())
	require.Equal(t, 2, g.Required())

	next := market.Tick{
		Time:   time.Date(2025, 6, 3, 9, 30, 0, 0, time.UTC),
		Price:  100,
		Volume: 1000,
	}
	g.ObserveTick(next)
	assert.Zero(t, g.EntriesToday())
	assert.Zero(t, g.PnLToday())
	assert.Equal(t, 1, g.Required())
	assert.Zero(t, g.Streak())
}
