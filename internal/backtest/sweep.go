package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"banyan/internal/config"
	"banyan/internal/logger"
)

// ErrSweepRunning 同一时刻只允许一次扫描在跑。
var ErrSweepRunning = fmt.Errorf("a sweep is already running")

// Sweep 把一份基准配置跑过整个参数网格。每个组合克隆独立
// 配置与引擎,互不共享任何状态;结果逐个落入 ResultStore。
type Sweep struct {
	base      *config.Config
	store     *ResultStore
	parallel  int
	maxCombos int

	active atomic.Bool
	mu     sync.Mutex
	last   SweepStatus
}

// SweepStatus 最近一次(或进行中)扫描的进度。
type SweepStatus struct {
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
}

func NewSweep(base *config.Config, store *ResultStore) *Sweep {
	parallel := base.Sweep.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	return &Sweep{
		base:      base,
		store:     store,
		parallel:  parallel,
		maxCombos: base.Sweep.MaxCombinations,
	}
}

// Status 返回当前进度快照。
func (s *Sweep) Status() SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.last
	st.Running = s.active.Load()
	return st
}

// Run 展开并执行全部组合,阻塞到扫描结束。单个组合失败只
// 标记该组合,不中断其余;ctx 取消则整体停止。
func (s *Sweep) Run(ctx context.Context, spec SweepSpec) (int, error) {
	combos, err := spec.Combinations(s.maxCombos)
	if err != nil {
		return 0, err
	}
	started, ok := s.claim(spec.Name, len(combos))
	if !ok {
		return 0, ErrSweepRunning
	}
	defer s.active.Store(false)
	return s.runCombos(ctx, spec.Name, combos, started)
}

// Begin 非阻塞启动一次扫描,立即返回组合总数,执行留在后台
// goroutine。已有扫描在跑时返回 ErrSweepRunning。供 API 触发用。
func (s *Sweep) Begin(ctx context.Context, spec SweepSpec) (int, error) {
	combos, err := spec.Combinations(s.maxCombos)
	if err != nil {
		return 0, err
	}
	started, ok := s.claim(spec.Name, len(combos))
	if !ok {
		return 0, ErrSweepRunning
	}
	go func() {
		defer s.active.Store(false)
		if _, err := s.runCombos(ctx, spec.Name, combos, started); err != nil {
			logger.Errorf("[sweep] %s 中断: %v", spec.Name, err)
		}
	}()
	return len(combos), nil
}

// claim 抢占执行权并重置进度。拿不到说明已有扫描在跑。
func (s *Sweep) claim(name string, total int) (time.Time, bool) {
	if !s.active.CompareAndSwap(false, true) {
		return time.Time{}, false
	}
	started := time.Now()
	s.mu.Lock()
	s.last = SweepStatus{Name: name, Total: total, StartedAt: started}
	s.mu.Unlock()
	return started, true
}

func (s *Sweep) runCombos(ctx context.Context, name string, combos []Combination, started time.Time) (int, error) {
	total := len(combos)
	logger.Infof("[sweep] %s 启动: %d 个组合, 并行 %d", name, total, s.parallel)

	stride := total / 10
	if stride < 1 {
		stride = 1
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, combo := range combos {
		combo := combo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.runOne(gctx, name, combo)
			n := int(done.Add(1))
			s.mu.Lock()
			s.last.Completed = n
			s.mu.Unlock()
			if n%stride == 0 || n == total {
				elapsed := time.Since(started)
				eta := time.Duration(0)
				if n > 0 {
					eta = elapsed / time.Duration(n) * time.Duration(total-n)
				}
				logger.Infof("[sweep] %s 进度 %d/%d 已用 %s 预计剩余 %s",
					name, n, total, elapsed.Round(time.Second), eta.Round(time.Second))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return int(done.Load()), err
	}
	logger.Infof("[sweep] %s 完成: %d 个组合, 总耗时 %s",
		name, total, time.Since(started).Round(time.Second))
	return total, nil
}

// runOne 执行单个组合。组合内部的失败记入结果库后吞掉,
// 让其余组合继续跑。
func (s *Sweep) runOne(ctx context.Context, sweepName string, combo Combination) {
	run := Run{
		ID:     uuid.New().String()[:8],
		Sweep:  sweepName,
		Tag:    combo.Tag,
		Status: RunStatusRunning,
		Params: combo.Params,
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		logger.Errorf("[sweep] 组合 %s 登记失败: %v", combo.Tag, err)
		return
	}

	cfg := s.base.Clone()
	if err := ApplyParams(cfg, combo.Params); err != nil {
		s.fail(ctx, run.ID, combo.Tag, err)
		return
	}
	res, err := NewRunner(cfg).Run(ctx)
	if err != nil {
		s.fail(ctx, run.ID, combo.Tag, err)
		return
	}

	if err := s.store.InsertTrades(ctx, run.ID, res.Trades); err != nil {
		logger.Warnf("[sweep] 组合 %s 成交写入失败: %v", combo.Tag, err)
	}
	if err := s.store.InsertSnapshots(ctx, run.ID, res.Equity); err != nil {
		logger.Warnf("[sweep] 组合 %s 资金曲线写入失败: %v", combo.Tag, err)
	}
	if err := s.store.UpdateRunSummary(ctx, run.ID, RunStatusDone, res.Stats, ""); err != nil {
		logger.Errorf("[sweep] 组合 %s 指标落库失败: %v", combo.Tag, err)
		return
	}
	logger.Infof("[sweep] 组合 %s 完成: pnl=%.2f (%.2f%%) 交易 %d 笔 回撤 %.2f%%",
		combo.Tag, res.Stats.NetPnL, res.Stats.ReturnPct, res.Stats.Trades, res.Stats.MaxDrawdownPct)
}

func (s *Sweep) fail(ctx context.Context, id, tag string, cause error) {
	logger.Warnf("[sweep] 组合 %s 失败: %v", tag, cause)
	if err := s.store.UpdateRunStatus(ctx, id, RunStatusFailed, cause.Error()); err != nil {
		logger.Errorf("[sweep] 组合 %s 状态更新失败: %v", tag, err)
	}
}
