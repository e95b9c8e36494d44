package journal

import (
	"context"

	"banyan/internal/engine"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
)

// Sink 把引擎事件落入流水库。写入失败只记日志,绝不把错误
// 抛回引擎线程。高频事件(tick、跳过、拦截)不落库,由指标
// 侧计数。
type Sink struct {
	ctx   context.Context
	store *Store
}

var _ engine.Sink = (*Sink)(nil)

// NewSink 构造流水 sink。ctx 用于限定写库超时与退出。
func NewSink(ctx context.Context, store *Store) *Sink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Sink{ctx: ctx, store: store}
}

func (s *Sink) OnTick(market.Tick) {}

func (s *Sink) OnSkip(error) {}

func (s *Sink) OnBlocked(market.Tick, string) {}

// OnOpen 记录开仓事件。
func (s *Sink) OnOpen(p *position.Position) {
	if s == nil || s.store == nil || p == nil {
		return
	}
	err := s.store.AppendEvent(s.ctx, Event{
		Kind:       "open",
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Price:      p.EntryPrice,
		Quantity:   p.InitialQty,
		Reason:     p.Side.String(),
		Payload:    p,
		TickTime:   p.EntryTime,
	})
	if err != nil {
		logger.Errorf("[journal] 开仓事件写入失败: %v", err)
	}
}

// OnExit 落成交并记录出场事件。
func (s *Sink) OnExit(ev position.ExitEvent, tr position.Trade) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.UpsertTrade(s.ctx, tr); err != nil {
		logger.Errorf("[journal] 成交写入失败 (%s): %v", tr.ID, err)
	}
	err := s.store.AppendEvent(s.ctx, Event{
		Kind:       "exit",
		PositionID: tr.PositionID,
		Symbol:     tr.Symbol,
		Price:      ev.Price,
		Quantity:   ev.Quantity,
		Reason:     ev.Reason(),
		Payload:    tr,
		TickTime:   ev.Time,
	})
	if err != nil {
		logger.Errorf("[journal] 出场事件写入失败: %v", err)
	}
}
