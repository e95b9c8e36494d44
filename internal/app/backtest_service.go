package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"banyan/internal/backtest"
	"banyan/internal/config"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/report"
)

// RunBacktest 在一份配置上跑一次完整回放,统计落日志,资金
// 曲线报表写到 report.output_dir。
func RunBacktest(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	start := time.Now()
	res, err := backtest.NewRunner(cfg).Run(ctx)
	if err != nil {
		return err
	}
	st := res.Stats
	logger.Infof("[backtest] 完成: 交易 %d 胜率 %.1f%% 净盈亏 %.2f 最大回撤 %.2f%% 耗时 %s",
		st.Trades, st.WinRate, st.NetPnL, st.MaxDrawdownPct, time.Since(start).Truncate(time.Millisecond))

	if len(res.Equity) == 0 {
		logger.Warnf("[backtest] 无资金曲线采样点,跳过报表")
		return nil
	}

	loc := time.UTC
	if sess, err := market.NewSession(cfg.SessionSpec()); err == nil {
		loc = sess.Location()
	}
	input := report.EquityInput{
		Title:    strings.ToUpper(strings.TrimSpace(cfg.Instrument.Symbol)),
		Points:   res.Equity,
		Stats:    &st,
		Location: loc,
	}
	html, err := report.RenderEquityHTML(input)
	if err != nil {
		return fmt.Errorf("渲染资金曲线失败: %w", err)
	}
	dir := cfg.Report.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102_150405")
	htmlPath := filepath.Join(dir, fmt.Sprintf("equity_%s_%s.html", strings.ToLower(input.Title), stamp))
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return err
	}
	logger.Infof("[backtest] 报表已写入 %s", htmlPath)

	if cfg.Report.RenderPNG {
		img, err := report.RenderEquityPNG(ctx, input)
		if err != nil {
			logger.Warnf("[backtest] PNG 渲染跳过: %v", err)
			return nil
		}
		pngPath := filepath.Join(dir, img.Filename)
		if err := os.WriteFile(pngPath, img.Bytes, 0o644); err != nil {
			return err
		}
		logger.Infof("[backtest] 截图已写入 %s", pngPath)
	}
	return nil
}

// RunSweep 加载扫描规格并阻塞跑完整个参数网格,结束后打印
// 净盈亏前五的组合。
func RunSweep(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	specs, err := backtest.NewSpecRegistry(cfg.Sweep.SpecPath)
	if err != nil {
		return fmt.Errorf("加载扫描规格失败: %w", err)
	}
	store, err := backtest.NewResultStore(cfg.Sweep.ResultsPath)
	if err != nil {
		return fmt.Errorf("打开扫描结果库失败: %w", err)
	}
	defer func() { _ = store.Close() }()

	spec := specs.Spec()
	done, err := backtest.NewSweep(cfg, store).Run(ctx, spec)
	if err != nil {
		return err
	}
	logger.Infof("[sweep] %s 扫描完成: %d 个组合,结果在 %s", spec.Name, done, cfg.Sweep.ResultsPath)

	top, err := store.ListRuns(ctx, spec.Name, 5)
	if err != nil || len(top) == 0 {
		return nil
	}
	logger.Infof("[sweep] 净盈亏前 %d:", len(top))
	for i, run := range top {
		logger.Infof("  %d. %-40s net=%.2f win=%.1f%% dd=%.2f%%",
			i+1, run.Tag, run.Stats.NetPnL, run.Stats.WinRate, run.Stats.MaxDrawdownPct)
	}
	return nil
}
