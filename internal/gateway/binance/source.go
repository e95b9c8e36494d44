// Package binance 基于 go-binance SDK 的逐笔行情源:订阅合约
// aggTrade 流并转成引擎可消费的 tick。断线按指数退避重连,
// 通道写满时丢弃并计数,绝不阻塞交易线程。
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"banyan/internal/logger"
	"banyan/internal/market"
)

// Source 实现 market.Source,单品种。
type Source struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.Symbol == "" {
		return nil, fmt.Errorf("binance feed requires a symbol")
	}
	if final.WSProxyURL != "" {
		futures.SetWsProxyUrl(final.WSProxyURL)
	}
	return &Source{cfg: final}, nil
}

// Subscribe 启动 aggTrade 订阅协程。重复调用会先取消上一次订阅。
func (s *Source) Subscribe(ctx context.Context, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = s.cfg.Buffer
	}
	out := make(chan market.Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runTradeLoop(subCtx, out, opts)
	}()
	return out, nil
}

func (s *Source) runTradeLoop(ctx context.Context, out chan<- market.Tick, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			t, ok := s.convertAggTrade(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- t:
				s.recordTick()
			default:
				s.recordSkip()
				logger.Warnf("[binance] %s 通道已满,丢弃 tick @ %.2f", s.cfg.Symbol, t.Price)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsAggTradeServe(s.cfg.Symbol, handler, errHandler)
		if err != nil {
			s.recordReconnect(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		logger.Infof("[binance] %s aggTrade 已连接", s.cfg.Symbol)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// convertAggTrade 把成交事件转成 tick。价格非正或符号不符时丢弃,
// 时间取撮合时间而非推送时间。
func (s *Source) convertAggTrade(ev *futures.WsAggTradeEvent) (market.Tick, bool) {
	if ev == nil {
		return market.Tick{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		s.recordSkip()
		return market.Tick{}, false
	}
	if sym := strings.ToUpper(strings.TrimSpace(ev.Symbol)); sym != "" && sym != s.cfg.Symbol {
		s.recordSkip()
		return market.Tick{}, false
	}
	return market.Tick{
		Time:   time.UnixMilli(ev.TradeTime),
		Price:  price,
		Volume: parseFloat(ev.Quantity),
	}, true
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}

func (s *Source) recordTick() {
	s.statsMu.Lock()
	s.stats.Ticks++
	s.statsMu.Unlock()
}

func (s *Source) recordSkip() {
	s.statsMu.Lock()
	s.stats.Skipped++
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}
