package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"banyan/internal/config"
	"banyan/internal/engine"
	"banyan/internal/gateway/notifier"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/scheduler"
	"banyan/internal/store/journal"
	apihttp "banyan/internal/transport/http/api"
)

// LiveService 驱动实时引擎:订阅行情、处理连接事件通知、
// 结束时把成交按交易日聚合落库。
type LiveService struct {
	cfg     *config.Config
	symbol  string
	eng     *engine.Engine
	driver  *engine.Driver
	feed    market.Source
	board   *apihttp.StatusBoard
	journal *journal.Store
	notify  *notifier.Sink
	loc     *time.Location
}

// Run 阻塞运行引擎事件循环,直到行情耗尽或 ctx 取消。两种
// 结束路径都先写完日汇总再返回。
func (s *LiveService) Run(ctx context.Context) error {
	if s == nil || s.cfg == nil {
		return fmt.Errorf("live service not initialized")
	}
	logger.Infof("[live] %s 实时引擎启动 feed=%s", s.symbol, s.cfg.Feed.Mode)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go scheduler.NewAligned(time.Minute, 0).Start(hbCtx, s.logHeartbeat)

	err := s.driver.Run(ctx)
	if flushErr := s.flushDailySummaries(); flushErr != nil {
		logger.Warnf("[live] 日汇总落库失败: %v", flushErr)
	}
	if errors.Is(err, context.Canceled) {
		logger.Infof("[live] %s 收到退出信号,引擎已停", s.symbol)
		return nil
	}
	return err
}

// Close 释放实时服务持有的资源。必须在引擎循环退出后调用:
// 通知队列要等事件派发结束才能排空。
func (s *LiveService) Close() {
	if s == nil {
		return
	}
	if s.notify != nil {
		s.notify.Close()
	}
	if s.feed != nil {
		_ = s.feed.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

// CloseManual 把手动平仓指令排进引擎事件循环。
func (s *LiveService) CloseManual(ctx context.Context) (*position.Trade, error) {
	if s == nil || s.driver == nil {
		return nil, fmt.Errorf("live service not initialized")
	}
	return s.driver.CloseManual(ctx)
}

// logHeartbeat 每分钟打一行运行计数,长时间无行情时靠它确认
// 进程还活着。引擎状态走状态板快照,不直接碰引擎线程的数据。
func (s *LiveService) logHeartbeat() {
	snap := s.board.Snapshot()
	fs := s.feed.Stats()
	logger.Infof("[live] %s 心跳: processed=%d skipped=%d entries=%d exits=%d blocked=%d capital=%.2f feed_ticks=%d reconnects=%d",
		s.symbol, snap.Stats.Processed, snap.Stats.Skipped, snap.Stats.Entries,
		snap.Stats.Exits, snap.Stats.Blocked, snap.Capital, fs.Ticks, fs.Reconnects)
}

// flushDailySummaries 按交易日聚合本次运行的全部成交写入日汇总,
// 期末资金沿成交顺序逐笔累计。
func (s *LiveService) flushDailySummaries() error {
	if s.journal == nil {
		return nil
	}
	trades := s.eng.Book().Trades()
	if len(trades) == 0 {
		return nil
	}

	type dayBucket struct {
		trades     []position.Trade
		endCapital float64
	}
	capital := s.cfg.Capital.Initial
	byDay := make(map[string]*dayBucket)
	for _, tr := range trades {
		day := tr.ExitTime.In(s.loc).Format("2006-01-02")
		b := byDay[day]
		if b == nil {
			b = &dayBucket{}
			byDay[day] = b
		}
		capital += tr.NetPnL
		b.trades = append(b.trades, tr)
		b.endCapital = capital
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, day := range days {
		b := byDay[day]
		sum := position.Summarize(b.trades)
		if err := s.journal.UpsertDailySummary(ctx, day, s.symbol, sum, b.endCapital); err != nil {
			return err
		}
	}
	logger.Infof("[live] 已写入 %d 个交易日汇总", len(days))
	return nil
}

// liveSubscribeOptions 在订阅回调里挂接连接事件通知。首次连上
// 发启动成功,之后的重连与断线各发一条。回调在行情源的重连
// 循环里顺序触发,闭包状态无需加锁。
func liveSubscribeOptions(symbol string, tg notifier.TextNotifier) market.SubscribeOptions {
	connected := false
	return market.SubscribeOptions{
		Buffer: 2048,
		OnConnect: func() {
			if tg == nil {
				return
			}
			if !connected {
				connected = true
				_ = tg.SendText(fmt.Sprintf("*Banyan 启动成功* ✅\n%s 行情已连接并开始订阅", symbol))
				return
			}
			_ = tg.SendText(fmt.Sprintf("%s 行情已恢复 ✅", symbol))
		},
		OnDisconnect: func(err error) {
			if tg == nil {
				return
			}
			msg := symbol + " 行情断线 ⚠️"
			if err != nil {
				msg += "\n错误: " + err.Error()
			}
			_ = tg.SendText(msg)
		},
	}
}
