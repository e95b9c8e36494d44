package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"banyan/internal/backtest"
	"banyan/internal/config"
	"banyan/internal/engine"
	"banyan/internal/gateway/notifier"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/metrics"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/store/journal"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/gate"
	apihttp "banyan/internal/transport/http/api"
)

// AppBuilder 按配置组装整条实时链路。各构建步骤都是可替换的
// 函数字段,测试与回放通过 With* 选项注入替身。
type AppBuilder struct {
	cfg *config.Config

	feedFn     func(*config.Config, *time.Location) (market.Source, error)
	journalFn  func(config.JournalConfig) (*journal.Store, error)
	notifierFn func(config.NotifyConfig) notifier.TextNotifier
	sweepFn    func(*config.Config) (*sweepStack, error)
	apiFn      func(apihttp.Config) (*apihttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		feedFn:     buildFeed,
		journalFn:  openJournal,
		notifierFn: newTelegram,
		sweepFn:    buildSweepStack,
		apiFn:      newAPIServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openJournal(cfg config.JournalConfig) (*journal.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return journal.Open(cfg.Path)
}

func newTelegram(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

func newAPIServer(cfg apihttp.Config) (*apihttp.Server, error) {
	return apihttp.NewServer(cfg)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	sess, err := market.NewSession(cfg.SessionSpec())
	if err != nil {
		return nil, fmt.Errorf("初始化交易时段失败: %w", err)
	}
	bookCfg, err := cfg.BookConfig()
	if err != nil {
		return nil, err
	}
	gateCfg, err := cfg.EntryGate()
	if err != nil {
		return nil, err
	}

	symbol := strings.ToUpper(strings.TrimSpace(cfg.Instrument.Symbol))
	book := position.NewBook(bookCfg)
	entryGate := gate.New(gateCfg, sess)
	regression := adaptive.NewRegression(cfg.Regression())

	set := metrics.New()
	board := apihttp.NewStatusBoard(symbol, book, entryGate, regression)

	js, err := b.journalFn(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("打开交易流水库失败: %w", err)
	}
	success := false
	defer func() {
		if !success && js != nil {
			_ = js.Close()
		}
	}()
	if js != nil {
		logger.Infof("✓ 交易流水库已就绪: %s", cfg.Journal.Path)
	}

	tg := b.notifierFn(cfg.Notify)

	sinks := engine.Fanout{board, metrics.NewSink(set, book)}
	if js != nil {
		sinks = append(sinks, journal.NewSink(ctx, js))
	}
	var notifySink *notifier.Sink
	if tg != nil {
		notifySink = notifier.NewSink(tg)
		sinks = append(sinks, notifySink)
		logger.Infof("✓ Telegram 通知已启用")
	}
	defer func() {
		if !success && notifySink != nil {
			notifySink.Close()
		}
	}()

	eng := engine.New(engine.Params{
		Symbol:     symbol,
		Session:    sess,
		Book:       book,
		Producer:   signal.NewMomentum(cfg.Momentum()),
		Gate:       entryGate,
		Regression: regression,
		Sink:       sinks,
	})

	feed, err := b.feedFn(cfg, sess.Location())
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	defer func() {
		if !success {
			_ = feed.Close()
		}
	}()

	driver := engine.NewDriver(eng, feed, liveSubscribeOptions(symbol, tg))

	sweeps, err := b.sweepFn(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !success && sweeps != nil {
			sweeps.Close()
		}
	}()

	apiCfg := apihttp.Config{
		Addr:     cfg.App.HTTPAddr,
		Board:    board,
		Feed:     feed,
		Journal:  js,
		Closer:   driver,
		Metrics:  set,
		Location: sess.Location(),
	}
	if sweeps != nil {
		apiCfg.Results = sweeps.results
		apiCfg.Sweep = sweeps.sweep
		apiCfg.Specs = sweeps.specs
	}
	api, err := b.apiFn(apiCfg)
	if err != nil {
		return nil, err
	}

	live := &LiveService{
		cfg:     cfg,
		symbol:  symbol,
		eng:     eng,
		driver:  driver,
		feed:    feed,
		board:   board,
		journal: js,
		notify:  notifySink,
		loc:     sess.Location(),
	}

	success = true
	return &App{
		cfg:     cfg,
		live:    live,
		api:     api,
		sweeps:  sweeps,
		Summary: newStartupSummary(cfg, bookCfg),
	}, nil
}

// sweepStack 是参数扫描的持久化三件套。results 缺路径时整组
// 不启用,spec 文件损坏只降级告警,不拦启动。
type sweepStack struct {
	specs   *backtest.SpecRegistry
	results *backtest.ResultStore
	sweep   *backtest.Sweep
}

func (s *sweepStack) Close() {
	if s == nil {
		return
	}
	if s.results != nil {
		_ = s.results.Close()
	}
}

func buildSweepStack(cfg *config.Config) (*sweepStack, error) {
	path := strings.TrimSpace(cfg.Sweep.ResultsPath)
	if path == "" {
		return nil, nil
	}
	store, err := backtest.NewResultStore(path)
	if err != nil {
		return nil, fmt.Errorf("打开扫描结果库失败: %w", err)
	}
	st := &sweepStack{results: store, sweep: backtest.NewSweep(cfg, store)}
	if specPath := strings.TrimSpace(cfg.Sweep.SpecPath); specPath != "" {
		specs, err := backtest.NewSpecRegistry(specPath)
		if err != nil {
			logger.Warnf("[sweep] 扫描规格不可用,POST /api/sweeps 将返回 503: %v", err)
		} else {
			st.specs = specs
		}
	}
	return st, nil
}

func WithFeed(fn func(*config.Config, *time.Location) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.feedFn = fn
		}
	}
}

func WithJournal(fn func(config.JournalConfig) (*journal.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.journalFn = fn
		}
	}
}

func WithNotifier(fn func(config.NotifyConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

func WithSweepStack(fn func(*config.Config) (*sweepStack, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sweepFn = fn
		}
	}
}

func WithAPIServer(fn func(apihttp.Config) (*apihttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.apiFn = fn
		}
	}
}
