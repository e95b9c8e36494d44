package apihttp

import (
	"sync"
	"time"

	"banyan/internal/engine"
	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/gate"
)

// TickView 快照中的最近一笔有效行情。
type TickView struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// PositionView 在场持仓的只读视图。
type PositionView struct {
	ID         string    `json:"id"`
	Side       string    `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Remaining  float64   `json:"remaining"`
	Lots       float64   `json:"lots"`
	StopPrice  float64   `json:"stop_price"`
	StopPoints float64   `json:"stop_points"`
	TrailArmed bool      `json:"trail_armed"`
	TrailStop  float64   `json:"trail_stop"`
	Unrealized float64   `json:"unrealized"`
}

// ExitView 最近一次平仓。
type ExitView struct {
	Time   time.Time `json:"time"`
	Reason string    `json:"reason"`
	Price  float64   `json:"price"`
	NetPnL float64   `json:"net_pnl"`
}

// GateView 入场闸门的当日状态。
type GateView struct {
	EntriesToday  int     `json:"entries_today"`
	PnLToday      float64 `json:"pnl_today"`
	RequiredTicks int     `json:"required_ticks"`
	GreenStreak   int     `json:"green_streak"`
}

// Snapshot 一份完整的运行时快照。UpdatedAt 取最近事件的 tick
// 时间而非墙钟,回放与实盘语义一致。
type Snapshot struct {
	Symbol           string        `json:"symbol"`
	Stats            engine.Stats  `json:"stats"`
	Equity           float64       `json:"equity"`
	Capital          float64       `json:"capital"`
	StopPoints       float64       `json:"next_stop_points"`
	RegressionActive bool          `json:"regression_active"`
	Gate             GateView      `json:"gate"`
	LastTick         *TickView     `json:"last_tick,omitempty"`
	Position         *PositionView `json:"position,omitempty"`
	LastExit         *ExitView     `json:"last_exit,omitempty"`
	LastBlock        string        `json:"last_block,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// StatusBoard 挂在引擎事件流上维护运行快照。簿、闸门和回归
// 状态只在引擎线程上读取,HTTP goroutine 拿到的是持锁复制出
// 的副本,两边互不阻塞。
type StatusBoard struct {
	book       *position.Book
	gate       *gate.Gate
	regression *adaptive.Regression

	mu   sync.RWMutex
	snap Snapshot
}

var _ engine.Sink = (*StatusBoard)(nil)

func NewStatusBoard(symbol string, book *position.Book, g *gate.Gate, reg *adaptive.Regression) *StatusBoard {
	b := &StatusBoard{book: book, gate: g, regression: reg}
	b.snap.Symbol = symbol
	if book != nil {
		b.snap.Equity = book.Capital()
		b.snap.Capital = book.Capital()
	}
	if reg != nil {
		b.snap.StopPoints = reg.StopPoints()
	}
	return b
}

// Snapshot 返回当前快照的副本。指针字段由写侧每次整体重建,
// 读到的对象不会再被修改,可以安全外发。
func (b *StatusBoard) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func (b *StatusBoard) OnTick(t market.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Stats.Processed++
	b.snap.LastTick = &TickView{Time: t.Time, Price: t.Price, Volume: t.Volume}
	b.refreshLocked(t.Price, t.Time)
}

func (b *StatusBoard) OnSkip(error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Stats.Skipped++
}

func (b *StatusBoard) OnOpen(p *position.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Stats.Entries++
	b.refreshLocked(p.EntryPrice, p.EntryTime)
}

func (b *StatusBoard) OnExit(ev position.ExitEvent, tr position.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Stats.Exits++
	b.snap.LastExit = &ExitView{
		Time:   ev.Time,
		Reason: ev.Reason(),
		Price:  ev.Price,
		NetPnL: tr.NetPnL,
	}
	b.refreshLocked(ev.Price, ev.Time)
}

func (b *StatusBoard) OnBlocked(_ market.Tick, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Stats.Blocked++
	b.snap.LastBlock = reason
}

// refreshLocked 在引擎线程上重读簿与策略状态,调用方持写锁。
func (b *StatusBoard) refreshLocked(price float64, ts time.Time) {
	if b.book != nil {
		b.snap.Equity = b.book.Equity(price)
		b.snap.Capital = b.book.Capital()
		b.snap.Position = positionView(b.book.Position(), price)
	}
	if b.regression != nil {
		b.snap.StopPoints = b.regression.StopPoints()
		b.snap.RegressionActive = b.regression.Active()
	}
	if b.gate != nil {
		b.snap.Gate = GateView{
			EntriesToday:  b.gate.EntriesToday(),
			PnLToday:      b.gate.PnLToday(),
			RequiredTicks: b.gate.Required(),
			GreenStreak:   b.gate.Streak(),
		}
	}
	b.snap.UpdatedAt = ts
}

func positionView(p *position.Position, price float64) *PositionView {
	if p == nil {
		return nil
	}
	v := &PositionView{
		ID:         p.ID,
		Side:       p.Side.String(),
		EntryTime:  p.EntryTime,
		EntryPrice: p.EntryPrice,
		Remaining:  p.Remaining,
		Lots:       p.Lots(),
		StopPrice:  p.StopPrice,
		StopPoints: p.StopPoints,
		TrailArmed: p.TrailArmed,
		TrailStop:  p.TrailStop,
	}
	if price > 0 {
		v.Unrealized = p.UnrealizedAt(price)
	}
	return v
}
