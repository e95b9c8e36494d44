package metrics

import (
	"banyan/internal/engine"
	"banyan/internal/market"
	"banyan/internal/position"
)

// Sink 在引擎线程内更新指标。持仓簿与引擎同线程,读取其状态
// 不需要加锁;采集器本身并发安全,抓取端随时可读。
type Sink struct {
	set  *Set
	book *position.Book
}

var _ engine.Sink = (*Sink)(nil)

func NewSink(set *Set, book *position.Book) *Sink {
	return &Sink{set: set, book: book}
}

func (s *Sink) OnTick(t market.Tick) {
	s.set.ticks.Inc()
	if s.book != nil {
		s.set.equity.Set(s.book.Equity(t.Price))
	}
}

func (s *Sink) OnSkip(error) {
	s.set.skipped.Inc()
}

func (s *Sink) OnOpen(p *position.Position) {
	s.set.entries.Inc()
	s.set.openQty.Set(p.Remaining)
	s.set.stopPoints.Set(p.StopPoints)
}

func (s *Sink) OnExit(ev position.ExitEvent, _ position.Trade) {
	s.set.exits.WithLabelValues(kindLabel(ev.Kind.String())).Inc()
	if s.book == nil {
		return
	}
	if p := s.book.Position(); p != nil {
		s.set.openQty.Set(p.Remaining)
	} else {
		s.set.openQty.Set(0)
		s.set.stopPoints.Set(0)
	}
}

func (s *Sink) OnBlocked(_ market.Tick, reason string) {
	s.set.blocked.WithLabelValues(reasonClass(reason)).Inc()
}
