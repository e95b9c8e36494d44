package backtest

import (
	"context"
	"strings"
	"time"

	"banyan/internal/config"
	"banyan/internal/engine"
	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/gate"
)

const defaultSnapshotEvery = 500

// Runner 在一份配置上跑一次完整回放。每次 Run 都重建全部
// 组件,互不共享状态,可安全用于并行扫描。
type Runner struct {
	cfg *config.Config

	// SnapshotEvery 每多少个 tick 采样一次资金曲线,0 取默认值。
	SnapshotEvery int
}

func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run 回放全量数据并汇总指标。回放始终全速推进,忽略配置
// 中的 speed。
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	sess, err := market.NewSession(r.cfg.SessionSpec())
	if err != nil {
		return nil, err
	}
	bookCfg, err := r.cfg.BookConfig()
	if err != nil {
		return nil, err
	}
	gateCfg, err := r.cfg.EntryGate()
	if err != nil {
		return nil, err
	}
	book := position.NewBook(bookCfg)

	every := r.SnapshotEvery
	if every <= 0 {
		every = defaultSnapshotEvery
	}
	col := newCollector(book, r.cfg.Capital.Initial, every)

	eng := engine.New(engine.Params{
		Symbol:     strings.ToUpper(strings.TrimSpace(r.cfg.Instrument.Symbol)),
		Session:    sess,
		Book:       book,
		Producer:   signal.NewMomentum(r.cfg.Momentum()),
		Gate:       gate.New(gateCfg, sess),
		Regression: adaptive.NewRegression(r.cfg.Regression()),
		Sink:       col,
	})

	replayCfg := r.cfg.ReplayConfig(sess.Location())
	replayCfg.Speed = 0
	src, err := market.NewReplaySource(replayCfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := eng.Run(ctx, src); err != nil {
		return nil, err
	}

	trades := book.Trades()
	sum := position.Summarize(trades)
	es := eng.Stats()
	stats := RunStats{
		InitialCapital: r.cfg.Capital.Initial,
		FinalCapital:   book.Capital(),
		NetPnL:         sum.NetPnL,
		Trades:         sum.Trades,
		Wins:           sum.Wins,
		Losses:         sum.Losses,
		WinRate:        sum.WinRate,
		ProfitFactor:   sum.ProfitFactor,
		MaxDrawdownPct: col.maxDrawdown * 100,
		EquityPeak:     col.peak,
		EquityValley:   col.valley,
		KindCounts:     sum.KindCounts,
		Processed:      es.Processed,
		Skipped:        es.Skipped,
		Entries:        es.Entries,
		Blocked:        es.Blocked,
		Snapshots:      len(col.points),
		FinishedAt:     time.Now(),
	}
	if stats.InitialCapital > 0 {
		stats.ReturnPct = stats.NetPnL / stats.InitialCapital * 100
	}
	return &Result{Stats: stats, Trades: trades, Equity: col.points}, nil
}

// collector 挂在引擎事件流上采样资金曲线。与引擎同线程,
// 无需加锁。
type collector struct {
	engine.NopSink

	book  *position.Book
	every int
	count int

	peak        float64
	valley      float64
	maxDrawdown float64
	points      []EquityPoint
}

func newCollector(book *position.Book, initial float64, every int) *collector {
	return &collector{book: book, every: every, peak: initial}
}

func (c *collector) OnTick(t market.Tick) {
	c.count++
	if c.count%c.every != 0 {
		return
	}
	c.sample(t.Time, c.book.Equity(t.Price))
}

// OnExit 每笔平仓后都补一个采样点,资金跳变不会被抽样错过。
func (c *collector) OnExit(ev position.ExitEvent, _ position.Trade) {
	c.sample(ev.Time, c.book.Equity(ev.Price))
}

func (c *collector) sample(ts time.Time, equity float64) {
	if equity > c.peak {
		c.peak = equity
	}
	if c.valley == 0 || equity < c.valley {
		c.valley = equity
	}
	dd := 0.0
	if c.peak > 0 {
		dd = (c.peak - equity) / c.peak
		if dd > c.maxDrawdown {
			c.maxDrawdown = dd
		}
	}
	c.points = append(c.points, EquityPoint{Time: ts, Equity: equity, Drawdown: dd})
}
