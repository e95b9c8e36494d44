package notifier

import (
	"sync"
	"time"

	"banyan/internal/engine"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/pkg/circuit"
	"banyan/internal/position"
)

// Sink 把开平仓事件异步推送出去。发送走独立协程,引擎线程只
// 投递到缓冲队列,队列满了就丢弃并记日志,推送永远不能拖慢
// 行情处理。连续推送失败会触发熔断,静默期内直接丢弃,避免
// 通道故障时每条消息都空耗重试。
type Sink struct {
	notifier TextNotifier
	queue    chan string
	breaker  *circuit.Breaker

	closeOnce sync.Once
	done      chan struct{}
}

var _ engine.Sink = (*Sink)(nil)

func NewSink(n TextNotifier) *Sink {
	if n == nil {
		n = Nop{}
	}
	s := &Sink{
		notifier: n,
		queue:    make(chan string, 64),
		breaker:  circuit.NewBreaker("notifier", 5, 2*time.Minute),
		done:     make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Sink) worker() {
	defer close(s.done)
	for msg := range s.queue {
		if !s.breaker.Allow() {
			logger.Warnf("[notifier] 熔断开启,丢弃通知")
			continue
		}
		if err := s.notifier.SendText(msg); err != nil {
			s.breaker.RecordFailure()
			logger.Warnf("[notifier] 推送失败: %v", err)
			continue
		}
		s.breaker.RecordSuccess()
	}
}

// Close 排空队列并停掉发送协程。必须在引擎循环停止后调用。
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}

func (s *Sink) enqueue(text string) {
	select {
	case s.queue <- text:
	default:
		logger.Warnf("[notifier] 队列已满,丢弃通知")
	}
}

func (s *Sink) OnTick(market.Tick) {}

func (s *Sink) OnSkip(error) {}

func (s *Sink) OnBlocked(market.Tick, string) {}

func (s *Sink) OnOpen(p *position.Position) {
	if p == nil {
		return
	}
	s.enqueue(OpenMessage(p).RenderMarkdown())
}

func (s *Sink) OnExit(ev position.ExitEvent, tr position.Trade) {
	s.enqueue(ExitMessage(ev, tr).RenderMarkdown())
}
