package engine

import (
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
)

// Sink 接收引擎逐 tick 产生的事件,供日志持久化、指标和
// 通知等旁路消费。实现方不得阻塞:引擎在处理线程上同步派发。
type Sink interface {
	OnTick(t market.Tick)
	OnSkip(err error)
	OnOpen(p *position.Position)
	OnExit(ev position.ExitEvent, tr position.Trade)
	OnBlocked(t market.Tick, reason string)
}

// NopSink 空实现,嵌入后只需覆写关心的回调。
type NopSink struct{}

func (NopSink) OnTick(market.Tick)                        {}
func (NopSink) OnSkip(error)                              {}
func (NopSink) OnOpen(*position.Position)                 {}
func (NopSink) OnExit(position.ExitEvent, position.Trade) {}
func (NopSink) OnBlocked(market.Tick, string)             {}

// Fanout 把事件派发给多个下游。单个下游 panic 只记日志,
// 不影响其余下游,也不中断引擎。
type Fanout []Sink

var _ Sink = (Fanout)(nil)

func emit(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[engine] 事件下游 panic (%s): %v", name, r)
		}
	}()
	fn()
}

func (f Fanout) OnTick(t market.Tick) {
	for _, s := range f {
		emit("tick", func() { s.OnTick(t) })
	}
}

func (f Fanout) OnSkip(err error) {
	for _, s := range f {
		emit("skip", func() { s.OnSkip(err) })
	}
}

func (f Fanout) OnOpen(p *position.Position) {
	for _, s := range f {
		emit("open", func() { s.OnOpen(p) })
	}
}

func (f Fanout) OnExit(ev position.ExitEvent, tr position.Trade) {
	for _, s := range f {
		emit("exit", func() { s.OnExit(ev, tr) })
	}
}

func (f Fanout) OnBlocked(t market.Tick, reason string) {
	for _, s := range f {
		emit("blocked", func() { s.OnBlocked(t, reason) })
	}
}
