// Package scheduler 提供按墙钟对齐的周期执行器,实时服务的
// 心跳日志用它保证整分触发。
package scheduler

import (
	"context"
	"time"

	"banyan/internal/logger"
)

// Aligned 按 Interval 对齐到墙钟边界执行任务:Interval 为一分钟
// 时在每分钟的第 0 秒触发,Offset 在边界上再加一段固定延迟。
type Aligned struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewAligned(interval, offset time.Duration) *Aligned {
	return &Aligned{Interval: interval, Offset: offset, nowFn: time.Now}
}

// Start 阻塞执行直到 ctx 取消。任务在调用方协程内运行,一轮
// 跑过了边界就立即补一轮。
func (s *Aligned) Start(ctx context.Context, task func()) {
	if task == nil || s.Interval <= 0 {
		logger.Warnf("[scheduler] 参数无效 interval=%s,不启动", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	if s.RunImmediately {
		task()
	}
	for {
		wait := s.untilNext(s.nowFn())
		if wait <= 0 {
			task()
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		task()
	}
}

// untilNext 计算距下一个对齐触发点的等待时长。
func (s *Aligned) untilNext(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
	return next.Sub(now)
}
