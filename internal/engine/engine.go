// Package engine 是逐 tick 的编排核心:校验行情、评估离场、
// 推进回归与闸门状态、在允许时开新仓。每个品种一个实例,
// 严格单线程,一个 tick 的完整流水线结束后才开始下一个,
// 所有时间语义都来自 tick 时间戳而非墙钟,因此回放与实盘
// 行为一致。
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/exit"
	"banyan/internal/strategy/gate"
)

// ErrNoTick 引擎尚未处理过任何有效行情,没有可用的成交价。
var ErrNoTick = errors.New("no tick seen yet")

// Params 引擎依赖。全部由装配层构造后一次性传入,
// 引擎自身不读任何全局状态。
type Params struct {
	Symbol     string
	Session    *market.Session
	Book       *position.Book
	Producer   signal.Producer
	Gate       *gate.Gate
	Regression *adaptive.Regression
	Sink       Sink
}

// Stats 运行计数。
type Stats struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Entries   int64 `json:"entries"`
	Exits     int64 `json:"exits"`
	Blocked   int64 `json:"blocked"`
}

type Engine struct {
	symbol     string
	session    *market.Session
	book       *position.Book
	producer   signal.Producer
	gate       *gate.Gate
	regression *adaptive.Regression
	sink       Sink

	stats        Stats
	lastGood     market.Tick
	day          string
	closedForDay bool
}

func New(p Params) *Engine {
	sink := p.Sink
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		symbol:     p.Symbol,
		session:    p.Session,
		book:       p.Book,
		producer:   p.Producer,
		gate:       p.Gate,
		regression: p.Regression,
		sink:       sink,
	}
}

// ProcessTick 运行单个 tick 的完整流水线。坏数据记一笔后跳过,
// 返回非 nil 仅当出现不可恢复的状态矛盾,此时必须停止喂入。
func (e *Engine) ProcessTick(t market.Tick) error {
	if err := t.Validate(e.lastGood.Time); err != nil {
		e.stats.Skipped++
		logger.Warnf("[engine] 跳过坏 tick: %v", err)
		e.sink.OnSkip(err)
		return nil
	}
	e.sink.OnTick(t)

	if day := e.session.DayKey(t.Time); day != e.day {
		e.day = day
		e.closedForDay = false
	}

	// 临近收盘先强平,当日不再评估任何入场
	if e.session.CloseDue(t.Time) {
		if err := e.flatten(t, position.ExitSessionEnd); err != nil {
			return e.fatal(err)
		}
		e.closedForDay = true
		e.advance(t)
		e.stats.Processed++
		e.lastGood = t
		return nil
	}

	if p := e.book.Position(); p != nil {
		if ev := exit.Evaluate(p, t); ev != nil {
			tr, err := e.book.ApplyExit(*ev)
			if err != nil {
				return e.fatal(err)
			}
			e.stats.Exits++
			e.regression.OnExit(ev.Kind, ev.Time)
			e.gate.OnExit(*ev, tr.NetPnL)
			e.sink.OnExit(*ev, *tr)
		}
	}

	dir := e.advance(t)

	if dir == signal.Long && e.book.Position() == nil && !e.closedForDay {
		e.tryEnter(t)
	}

	e.stats.Processed++
	e.lastGood = t
	return nil
}

// advance 推进闸门与信号状态,返回当前方向候选。
func (e *Engine) advance(t market.Tick) signal.Direction {
	e.gate.ObserveTick(t)
	return e.producer.Observe(t)
}

func (e *Engine) tryEnter(t market.Tick) {
	ok, reason := e.gate.CanEnter(t, signal.Long)
	if !ok {
		e.stats.Blocked++
		logger.Debugf("[engine] 入场被拦截: %s", reason)
		e.sink.OnBlocked(t, reason)
		return
	}
	qty := e.book.SizedQuantity(t.Price)
	p, err := e.book.Open(e.symbol, position.SideLong, qty, t.Price, t.Time, e.regression.StopPoints())
	if err != nil {
		e.stats.Blocked++
		logger.Warnf("[engine] 开仓失败: %v", err)
		e.sink.OnBlocked(t, err.Error())
		return
	}
	e.stats.Entries++
	e.gate.OnEntry(t.Time)
	e.sink.OnOpen(p)
}

func (e *Engine) flatten(t market.Tick, kind position.ExitKind) error {
	tr, err := e.book.ForceClose(t.Price, t.Time, kind)
	if err != nil {
		return err
	}
	if tr == nil {
		return nil
	}
	e.stats.Exits++
	ev := position.ExitEvent{
		PositionID: tr.PositionID,
		Kind:       kind,
		Price:      t.Price,
		Quantity:   tr.Quantity,
		Time:       t.Time,
	}
	e.regression.OnExit(kind, t.Time)
	e.gate.OnExit(ev, tr.NetPnL)
	e.sink.OnExit(ev, *tr)
	return nil
}

// CloseManual 以最近一笔有效价立即平掉持仓,返回成交记录;
// 无持仓时返回 (nil, nil)。供外部指令(API)调用。
func (e *Engine) CloseManual() (*position.Trade, error) {
	if e.lastGood.Time.IsZero() {
		return nil, ErrNoTick
	}
	p := e.book.Position()
	if p == nil {
		return nil, nil
	}
	tr, err := e.book.ForceClose(e.lastGood.Price, e.lastGood.Time, position.ExitManual)
	if err != nil {
		return nil, err
	}
	e.stats.Exits++
	ev := position.ExitEvent{
		PositionID: tr.PositionID,
		Kind:       position.ExitManual,
		Price:      e.lastGood.Price,
		Quantity:   tr.Quantity,
		Time:       e.lastGood.Time,
	}
	e.regression.OnExit(position.ExitManual, e.lastGood.Time)
	e.gate.OnExit(ev, tr.NetPnL)
	e.sink.OnExit(ev, *tr)
	return tr, nil
}

func (e *Engine) fatal(err error) error {
	if e.lastGood.Time.IsZero() {
		return fmt.Errorf("engine halted: %w (no tick processed yet)", err)
	}
	return fmt.Errorf("engine halted: %w (last good tick #%d @ %s)",
		err, e.stats.Processed, e.lastGood.Time.Format(time.RFC3339))
}

// Run 消费行情源直到数据耗尽或取消。回放源在数据走完后关闭
// 通道;两种结束路径都会把残留持仓按收盘强平落账。
func (e *Engine) Run(ctx context.Context, src market.Source) error {
	ch, err := src.Subscribe(ctx, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", e.symbol, err)
	}
	logger.Infof("[engine] %s 开始处理行情", e.symbol)
	for t := range ch {
		if err := e.ProcessTick(t); err != nil {
			return err
		}
	}
	if !e.lastGood.Time.IsZero() {
		if err := e.flatten(e.lastGood, position.ExitSessionEnd); err != nil {
			return e.fatal(err)
		}
	}
	logger.Infof("[engine] %s 行情结束: 处理 %d 跳过 %d 入场 %d 离场 %d",
		e.symbol, e.stats.Processed, e.stats.Skipped, e.stats.Entries, e.stats.Exits)
	return ctx.Err()
}

// Stats 当前运行计数的副本。
func (e *Engine) Stats() Stats { return e.stats }

// Book 返回持仓簿,供查询接口读取流水与权益。
func (e *Engine) Book() *position.Book { return e.book }

// LastTick 最近一笔有效 tick。
func (e *Engine) LastTick() market.Tick { return e.lastGood }

// Symbol 本引擎绑定的品种。
func (e *Engine) Symbol() string { return e.symbol }
