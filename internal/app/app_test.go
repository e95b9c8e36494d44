package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/backtest"
	"banyan/internal/config"
	"banyan/internal/gateway/notifier"
	"banyan/internal/market"
	"banyan/internal/store/journal"
)

// 回放夹具(UTC):预热后止盈、止损、再入场与收盘强平,
// 净盈亏 -405,期末资金 99595。
var fixtureTicks = []string{
	"2026-03-02 10:00:00,100.00",
	"2026-03-02 10:00:01,100.10",
	"2026-03-02 10:00:02,100.20",
	"2026-03-02 10:00:03,100.30",
	"2026-03-02 10:00:04,100.40",
	"2026-03-02 10:00:05,104.50",
	"2026-03-02 10:00:06,99.40",
	"2026-03-02 10:00:07,99.30",
	"2026-03-02 10:00:08,99.20",
	"2026-03-02 10:00:09,99.10",
	"2026-03-02 10:00:10,100.20",
	"2026-03-02 10:00:11,101.20",
	"2026-03-02 10:00:12,102.20",
	"2026-03-02 10:00:13,102.50",
	"2026-03-02 15:26:00,102.80",
}

const appFixtureYAML = `
app:
  log_level: warn
  http_addr: "127.0.0.1:0"
  log_path: ""
instrument:
  symbol: TEST
  mappings:
    TEST:
      lot_size: 25
      tick_size: 0.05
session:
  timezone: UTC
  start: "09:15"
  end: "15:30"
  start_buffer_minutes: 0
  end_buffer_minutes: 0
  close_before_end_minutes: 5
risk:
  base_sl_points: 5
  tp_points: [4]
  tp_percents: [1.0]
  trail_enabled: false
  sl_regression:
    enabled: false
gate:
  max_entries_per_day: 10
  cooldown_seconds: 0
  confirm_ticks: 2
  confirm_step: 1
  confirm_max_ticks: 5
  confirm_window_seconds: 600
  price_recovery_filter: false
signal:
  fast_ema_period: 3
  slow_ema_period: 5
  min_warmup_ticks: 5
  noise_filter: false
capital:
  initial: 100000
  slippage_points: 0
costs:
  commission_pct: 0
  commission_min_per_trade: 0
  stt_sell_pct: 0
  exchange_pct: 0
  gst_pct: 0
feed:
  mode: replay
  replay:
    path: %s
journal:
  enabled: true
  path: %s
sweep:
  spec_path: ""
  results_path: %s
  parallel: 1
  max_combinations: 16
`

func writeTicksCSV(t *testing.T, dir string, rows []string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,price\n")
	for _, row := range rows {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func appFixtureConfig(t *testing.T, dir, csvPath string) *config.Config {
	t.Helper()
	content := fmt.Sprintf(appFixtureYAML, csvPath,
		filepath.Join(dir, "journal.db"), filepath.Join(dir, "sweeps.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

type stubSource struct {
	stats market.SourceStats
}

func (s *stubSource) Subscribe(ctx context.Context, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	ch := make(chan market.Tick)
	close(ch)
	return ch, nil
}

func (s *stubSource) Stats() market.SourceStats { return s.stats }
func (s *stubSource) Close() error              { return nil }

func TestBuilderAssemblesLiveStack(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTicksCSV(t, dir, fixtureTicks)
	cfg := appFixtureConfig(t, dir, csvPath)

	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		a.live.Close()
		a.sweeps.Close()
	})

	require.NotNil(t, a.LiveService())
	require.NotNil(t, a.api)
	require.NotNil(t, a.sweeps)
	assert.NotNil(t, a.sweeps.results)
	assert.NotNil(t, a.sweeps.sweep)
	// spec_path 为空,扫描触发接口不可用但其余照常
	assert.Nil(t, a.sweeps.specs)

	require.NotNil(t, a.Summary)
	assert.Equal(t, "TEST", a.Summary.Instrument.Symbol)
	assert.Equal(t, 25, a.Summary.Instrument.LotSize)
	assert.InDelta(t, 0.05, a.Summary.Instrument.TickSize, 1e-9)
	assert.Equal(t, "replay", a.Summary.Feed.Mode)
	assert.Equal(t, csvPath, a.Summary.Feed.Detail)

	assert.NotNil(t, a.live.journal)
	assert.Nil(t, a.live.notify)
}

func TestBuilderHonorsOverrides(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTicksCSV(t, dir, fixtureTicks)
	cfg := appFixtureConfig(t, dir, csvPath)
	cfg.Journal.Enabled = false
	cfg.Sweep.ResultsPath = ""

	src := &stubSource{}
	a, err := NewAppBuilder(cfg,
		WithFeed(func(*config.Config, *time.Location) (market.Source, error) { return src, nil }),
		WithNotifier(func(config.NotifyConfig) notifier.TextNotifier { return notifier.Nop{} }),
	).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.live.Close)

	assert.Same(t, src, a.live.feed)
	assert.Nil(t, a.live.journal)
	assert.Nil(t, a.sweeps)
	// 非空通知器会挂上异步发送队列
	require.NotNil(t, a.live.notify)
}

// 回放耗尽后整个应用要自行退出(含 HTTP 服务),并把成交
// 流水与当日汇总写进流水库。
func TestAppRunReplayWritesJournal(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTicksCSV(t, dir, fixtureTicks)
	cfg := appFixtureConfig(t, dir, csvPath)

	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("app did not stop after replay finished")
	}

	js, err := journal.Open(cfg.Journal.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Close() })
	ctx := context.Background()

	n, err := js.CountTrades(ctx, "2026-03-02", "TEST")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	days, err := js.ListDailySummaries(ctx, 5)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].Day)
	assert.Equal(t, "TEST", days[0].Symbol)
	assert.Equal(t, 3, days[0].Trades)
	assert.InDelta(t, -405.0, days[0].NetPnL, 1e-6)
	assert.InDelta(t, 99595.0, days[0].EndCapital, 1e-6)
}

func TestBuildFeedRejectsUnknownMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Feed.Mode = "smoke"
	_, err := buildFeed(cfg, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未知行情源类型")
}

func TestRunBacktestWritesReport(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTicksCSV(t, dir, fixtureTicks)
	cfg := appFixtureConfig(t, dir, csvPath)
	cfg.Report.OutputDir = filepath.Join(dir, "reports")

	require.NoError(t, RunBacktest(context.Background(), cfg))

	entries, err := os.ReadDir(cfg.Report.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "equity_test_"), name)
	assert.True(t, strings.HasSuffix(name, ".html"), name)

	html, err := os.ReadFile(filepath.Join(cfg.Report.OutputDir, name))
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
}

func TestRunSweepCompletesGrid(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTicksCSV(t, dir, fixtureTicks)
	cfg := appFixtureConfig(t, dir, csvPath)
	specPath := filepath.Join(dir, "sweep.yaml")
	spec := "name: app-grid\ngrids:\n  risk.base_sl_points: [5, 10]\n"
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o644))
	cfg.Sweep.SpecPath = specPath

	require.NoError(t, RunSweep(context.Background(), cfg))

	store, err := backtest.NewResultStore(cfg.Sweep.ResultsPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	runs, err := store.ListRuns(context.Background(), "app-grid", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, backtest.RunStatusDone, run.Status)
	}
}
