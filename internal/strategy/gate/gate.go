// Package gate 决定一个做多候选此刻是否允许入场。
// 检查按固定顺序排成流水线,第一个不通过的检查立刻短路,
// 其原因字符串就是对外的诊断输出。除显式的 OnEntry/OnExit
// 回调外,CanEnter 本身不改任何状态,可安全重复调用。
package gate

import (
	"fmt"
	"time"

	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/strategy/adaptive"
)

// Config 闸门参数。DailyLossLimit 为 0 表示不启用日亏损限制,
// Cooldown 为 0 表示无入场冷却。确认门槛从 ConfirmBase 起,
// 每次亏损型离场抬升 ConfirmStep 直到 ConfirmMax,窗口语义与
// 止损回归一致。
type Config struct {
	MaxEntriesPerDay int
	DailyLossLimit   float64
	Cooldown         time.Duration

	ConfirmBase   int
	ConfirmStep   int
	ConfirmMax    int
	ConfirmWindow time.Duration

	RecoveryFilter bool
	PriceBuffer    float64
	FilterDuration time.Duration

	Streak signal.StreakConfig
}

type lastExit struct {
	kind  position.ExitKind
	price float64
	time  time.Time
	valid bool
}

// Gate 入场闸门状态:日内计数、冷却、确认门槛与离场后的
// 价格恢复过滤。跨日自动清零。
type Gate struct {
	cfg     Config
	session *market.Session
	streak  *signal.Streak
	confirm *adaptive.Ladder

	day          string
	entriesToday int
	pnlToday     float64
	lastEntry    time.Time
	hasEntry     bool
	exit         lastExit
}

func New(cfg Config, sess *market.Session) *Gate {
	return &Gate{
		cfg:     cfg,
		session: sess,
		streak:  signal.NewStreak(cfg.Streak),
		confirm: adaptive.NewLadder(float64(cfg.ConfirmBase), float64(cfg.ConfirmStep),
			float64(cfg.ConfirmMax), cfg.ConfirmWindow),
	}
}

// ObserveTick 每个 tick 调用一次:处理跨日清零并推进绿 tick 计数。
func (g *Gate) ObserveTick(t market.Tick) {
	day := g.session.DayKey(t.Time)
	if day != g.day {
		if g.day != "" {
			logger.Infof("[gate] 新交易日 %s,日内状态清零", day)
		}
		g.day = day
		g.entriesToday = 0
		g.pnlToday = 0
		g.hasEntry = false
		g.exit = lastExit{}
		g.streak.Reset()
		g.confirm.Reset()
	}
	g.streak.Observe(t.Price)
}

// OnEntry 记录一次成功开仓。
func (g *Gate) OnEntry(t time.Time) {
	g.entriesToday++
	g.lastEntry = t
	g.hasEntry = true
}

// OnExit 消费一次离场:累计当日盈亏,亏损型离场抬升确认门槛
// 并武装价格恢复过滤,其余种类把门槛放回基准。
func (g *Gate) OnExit(ev position.ExitEvent, netPnL float64) {
	g.pnlToday += netPnL
	g.exit = lastExit{kind: ev.Kind, price: ev.Price, time: ev.Time, valid: true}
	if ev.Kind.IsLoss() {
		g.confirm.Trigger(ev.Time)
		if g.cfg.RecoveryFilter {
			logger.Infof("[gate] %s 离场 @ %.2f,%.0fs 内价格须回到 %.2f 以上才可再入场",
				ev.Reason(), ev.Price, g.cfg.FilterDuration.Seconds(), ev.Price+g.cfg.PriceBuffer)
		}
		return
	}
	g.confirm.Reset()
}

// Required 当前生效的确认门槛。
func (g *Gate) Required() int { return int(g.confirm.Value()) }

// Streak 当前连续绿 tick 数。
func (g *Gate) Streak() int { return g.streak.Count() }

// EntriesToday 今日已入场次数。
func (g *Gate) EntriesToday() int { return g.entriesToday }

// PnLToday 今日累计净盈亏。
func (g *Gate) PnLToday() float64 { return g.pnlToday }

// CanEnter 依序执行全部检查,返回是否放行及第一个拦截原因。
func (g *Gate) CanEnter(t market.Tick, dir signal.Direction) (bool, string) {
	if dir != signal.Long {
		return false, "no long signal"
	}
	if blk, ok := g.session.BlockAt(t.Time); ok {
		return false, fmt.Sprintf("within trade block %s", blk)
	}
	if !g.session.Contains(t.Time) {
		return false, "outside trading session"
	}
	if g.session.InOpenBuffer(t.Time) {
		return false, "inside session open buffer"
	}
	if g.session.InCloseBuffer(t.Time) {
		return false, "inside session close buffer"
	}
	if g.session.InNoTradeHead(t.Time) {
		return false, "in no-trade open window"
	}
	if g.session.InNoTradeTail(t.Time) {
		return false, "in no-trade close window"
	}
	if g.entriesToday >= g.cfg.MaxEntriesPerDay {
		return false, fmt.Sprintf("daily entry limit reached (%d)", g.cfg.MaxEntriesPerDay)
	}
	if g.cfg.DailyLossLimit > 0 && g.pnlToday <= -g.cfg.DailyLossLimit {
		return false, fmt.Sprintf("daily loss limit hit (%.2f)", g.pnlToday)
	}
	if g.cfg.Cooldown > 0 && g.hasEntry {
		if since := t.Time.Sub(g.lastEntry); since < g.cfg.Cooldown {
			return false, fmt.Sprintf("cooldown active (%.0fs remaining)",
				(g.cfg.Cooldown - since).Seconds())
		}
	}
	if required := g.Required(); g.streak.Count() < required {
		return false, fmt.Sprintf("need %d green ticks, have %d", required, g.streak.Count())
	}
	if g.cfg.RecoveryFilter && g.exit.valid && g.exit.kind.IsLoss() {
		if elapsed := t.Time.Sub(g.exit.time); elapsed <= g.cfg.FilterDuration {
			if threshold := g.exit.price + g.cfg.PriceBuffer; t.Price < threshold {
				return false, fmt.Sprintf("price %.2f below re-entry threshold %.2f", t.Price, threshold)
			}
		}
	}
	return true, ""
}
