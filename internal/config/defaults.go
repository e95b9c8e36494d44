package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9991"
	defaultAppLogPath  = "data/logs/banyan.log"

	defaultSymbol   = "NIFTY"
	defaultTickSize = 0.05

	defaultSessionTZ      = "Asia/Kolkata"
	defaultSessionStart   = "09:15"
	defaultSessionEnd     = "15:30"
	defaultStartBufferMin = 20
	defaultEndBufferMin   = 40
	defaultCloseAheadMin  = 5

	defaultBaseSLPoints    = 15.0
	defaultTrailActivation = 5.0
	defaultTrailDistance   = 5.0
	defaultRegrStepPoints  = 5.0
	defaultRegrMinPoints   = 5.0
	defaultRegrWindowSec   = 1200

	defaultMaxEntriesPerDay  = 100
	defaultCooldownSec       = 60
	defaultConfirmTicks      = 3
	defaultConfirmStep       = 1
	defaultConfirmMaxTicks   = 5
	defaultConfirmWindowSec  = 1200
	defaultPriceBufferPoints = 2.0
	defaultFilterDurationSec = 180

	defaultFastEMA       = 18
	defaultSlowEMA       = 42
	defaultWarmupTicks   = 50
	defaultNoisePct      = 0.0001
	defaultNoiseMinTicks = 1.0

	defaultCapital        = 100000.0
	defaultSlippagePoints = 0.05
	defaultMarginPct      = 1.0

	defaultCommissionPct = 0.03
	defaultSTTSellPct    = 0.025
	defaultExchangePct   = 0.003
	defaultGSTPct        = 18.0

	defaultFeedMode       = "replay"
	defaultReplayProgress = 50000
	defaultWSPingSec      = 25
	defaultJournalPath    = "data/banyan.db"
	defaultSweepSpecPath  = "configs/sweep.yaml"
	defaultSweepResults   = "data/sweeps.db"
	defaultSweepMaxCombos = 256
	defaultReportDir      = "data/reports"
)

// 默认止盈阶梯与内置品种映射,配置文件可整体覆盖。
var (
	defaultTPPoints   = []float64{5, 12, 15, 17}
	defaultTPPercents = []float64{0.4, 0.3, 0.2, 0.1}

	defaultInstruments = map[string]InstrumentSpec{
		"NIFTY":     {LotSize: 75, TickSize: 0.05},
		"BANKNIFTY": {LotSize: 35, TickSize: 0.05},
		"FINNIFTY":  {LotSize: 65, TickSize: 0.05},
		"SENSEX":    {LotSize: 20, TickSize: 0.05},
	}
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Instrument.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Gate.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Capital.applyDefaults(keys)
	c.Costs.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
	c.Sweep.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (i *InstrumentConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("instrument.symbol", &i.Symbol, defaultSymbol),
	)
	if len(i.Mappings) == 0 {
		i.Mappings = make(map[string]InstrumentSpec, len(defaultInstruments))
		for name, spec := range defaultInstruments {
			i.Mappings[name] = spec
		}
		return
	}
	for name, spec := range i.Mappings {
		if spec.TickSize <= 0 {
			spec.TickSize = defaultTickSize
			i.Mappings[name] = spec
		}
	}
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultSessionTZ),
		stringFieldDefault("session.start", &s.Start, defaultSessionStart),
		stringFieldDefault("session.end", &s.End, defaultSessionEnd),
		fieldDefault{
			key:   "session.start_buffer_minutes",
			need:  func() bool { return s.StartBufferMinutes <= 0 },
			apply: func() { s.StartBufferMinutes = defaultStartBufferMin },
		},
		fieldDefault{
			key:   "session.end_buffer_minutes",
			need:  func() bool { return s.EndBufferMinutes <= 0 },
			apply: func() { s.EndBufferMinutes = defaultEndBufferMin },
		},
		fieldDefault{
			key:   "session.close_before_end_minutes",
			need:  func() bool { return s.CloseBeforeEndMinutes <= 0 },
			apply: func() { s.CloseBeforeEndMinutes = defaultCloseAheadMin },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.base_sl_points",
			need:  func() bool { return r.BaseSLPoints <= 0 },
			apply: func() { r.BaseSLPoints = defaultBaseSLPoints },
		},
		boolFieldDefault("risk.trail_enabled", &r.TrailEnabled, true),
		fieldDefault{
			key:   "risk.trail_activation_points",
			need:  func() bool { return r.TrailActivationPoints <= 0 },
			apply: func() { r.TrailActivationPoints = defaultTrailActivation },
		},
		fieldDefault{
			key:   "risk.trail_distance_points",
			need:  func() bool { return r.TrailDistancePoints <= 0 },
			apply: func() { r.TrailDistancePoints = defaultTrailDistance },
		},
	)
	if len(r.TPPoints) == 0 && len(r.TPPercents) == 0 {
		r.TPPoints = append([]float64(nil), defaultTPPoints...)
		r.TPPercents = append([]float64(nil), defaultTPPercents...)
	}
	reg := &r.Regression
	applyFieldDefaults(keys,
		boolFieldDefault("risk.sl_regression.enabled", &reg.Enabled, true),
		fieldDefault{
			key:   "risk.sl_regression.step_points",
			need:  func() bool { return reg.StepPoints <= 0 },
			apply: func() { reg.StepPoints = defaultRegrStepPoints },
		},
		fieldDefault{
			key:   "risk.sl_regression.min_points",
			need:  func() bool { return reg.MinPoints <= 0 },
			apply: func() { reg.MinPoints = defaultRegrMinPoints },
		},
		fieldDefault{
			key:   "risk.sl_regression.window_seconds",
			need:  func() bool { return reg.WindowSeconds <= 0 },
			apply: func() { reg.WindowSeconds = defaultRegrWindowSec },
		},
	)
	// 回归上限缺省跟随基础止损距离
	if !keys.isSet("risk.sl_regression.max_points") && reg.MaxPoints <= 0 {
		reg.MaxPoints = r.BaseSLPoints
	}
}

func (g *GateConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "gate.max_entries_per_day",
			need:  func() bool { return g.MaxEntriesPerDay <= 0 },
			apply: func() { g.MaxEntriesPerDay = defaultMaxEntriesPerDay },
		},
		fieldDefault{
			key:   "gate.cooldown_seconds",
			need:  func() bool { return g.CooldownSeconds <= 0 },
			apply: func() { g.CooldownSeconds = defaultCooldownSec },
		},
		fieldDefault{
			key:   "gate.confirm_ticks",
			need:  func() bool { return g.ConfirmTicks <= 0 },
			apply: func() { g.ConfirmTicks = defaultConfirmTicks },
		},
		fieldDefault{
			key:   "gate.confirm_step",
			need:  func() bool { return g.ConfirmStep <= 0 },
			apply: func() { g.ConfirmStep = defaultConfirmStep },
		},
		fieldDefault{
			key:   "gate.confirm_max_ticks",
			need:  func() bool { return g.ConfirmMaxTicks <= 0 },
			apply: func() { g.ConfirmMaxTicks = defaultConfirmMaxTicks },
		},
		fieldDefault{
			key:   "gate.confirm_window_seconds",
			need:  func() bool { return g.ConfirmWindowSeconds <= 0 },
			apply: func() { g.ConfirmWindowSeconds = defaultConfirmWindowSec },
		},
		boolFieldDefault("gate.price_recovery_filter", &g.PriceRecoveryFilter, true),
		fieldDefault{
			key:   "gate.price_buffer_points",
			need:  func() bool { return g.PriceBufferPoints <= 0 },
			apply: func() { g.PriceBufferPoints = defaultPriceBufferPoints },
		},
		fieldDefault{
			key:   "gate.filter_duration_seconds",
			need:  func() bool { return g.FilterDurationSeconds <= 0 },
			apply: func() { g.FilterDurationSeconds = defaultFilterDurationSec },
		},
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "signal.fast_ema_period",
			need:  func() bool { return s.FastEMAPeriod <= 0 },
			apply: func() { s.FastEMAPeriod = defaultFastEMA },
		},
		fieldDefault{
			key:   "signal.slow_ema_period",
			need:  func() bool { return s.SlowEMAPeriod <= 0 },
			apply: func() { s.SlowEMAPeriod = defaultSlowEMA },
		},
		fieldDefault{
			key:   "signal.min_warmup_ticks",
			need:  func() bool { return s.MinWarmupTicks <= 0 },
			apply: func() { s.MinWarmupTicks = defaultWarmupTicks },
		},
		boolFieldDefault("signal.noise_filter", &s.NoiseFilter, true),
		fieldDefault{
			key:   "signal.noise_pct",
			need:  func() bool { return s.NoisePct <= 0 },
			apply: func() { s.NoisePct = defaultNoisePct },
		},
		fieldDefault{
			key:   "signal.noise_min_ticks",
			need:  func() bool { return s.NoiseMinTicks <= 0 },
			apply: func() { s.NoiseMinTicks = defaultNoiseMinTicks },
		},
	)
}

func (c *CapitalConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "capital.initial",
			need:  func() bool { return c.Initial <= 0 },
			apply: func() { c.Initial = defaultCapital },
		},
		fieldDefault{
			key:   "capital.slippage_points",
			need:  func() bool { return c.SlippagePoints <= 0 },
			apply: func() { c.SlippagePoints = defaultSlippagePoints },
		},
		fieldDefault{
			key:   "capital.margin_pct",
			need:  func() bool { return c.MarginPct <= 0 },
			apply: func() { c.MarginPct = defaultMarginPct },
		},
	)
}

func (c *CostsConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "costs.commission_pct",
			need:  func() bool { return c.CommissionPct <= 0 },
			apply: func() { c.CommissionPct = defaultCommissionPct },
		},
		fieldDefault{
			key:   "costs.stt_sell_pct",
			need:  func() bool { return c.STTSellPct <= 0 },
			apply: func() { c.STTSellPct = defaultSTTSellPct },
		},
		fieldDefault{
			key:   "costs.exchange_pct",
			need:  func() bool { return c.ExchangePct <= 0 },
			apply: func() { c.ExchangePct = defaultExchangePct },
		},
		fieldDefault{
			key:   "costs.gst_pct",
			need:  func() bool { return c.GSTPct <= 0 },
			apply: func() { c.GSTPct = defaultGSTPct },
		},
	)
	if c.CommissionMinPerTrade < 0 {
		c.CommissionMinPerTrade = 0
	}
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("feed.mode", &f.Mode, defaultFeedMode),
		fieldDefault{
			key:   "feed.replay.progress_every",
			need:  func() bool { return f.Replay.ProgressEvery <= 0 },
			apply: func() { f.Replay.ProgressEvery = defaultReplayProgress },
		},
		fieldDefault{
			key:   "feed.ws.ping_seconds",
			need:  func() bool { return f.WS.PingSeconds <= 0 },
			apply: func() { f.WS.PingSeconds = defaultWSPingSec },
		},
	)
	f.Mode = strings.ToLower(strings.TrimSpace(f.Mode))
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("journal.enabled", &j.Enabled, true),
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sweep.spec_path", &s.SpecPath, defaultSweepSpecPath),
		stringFieldDefault("sweep.results_path", &s.ResultsPath, defaultSweepResults),
		fieldDefault{
			key:   "sweep.max_combinations",
			need:  func() bool { return s.MaxCombinations <= 0 },
			apply: func() { s.MaxCombinations = defaultSweepMaxCombos },
		},
	)
	if s.Parallel < 0 {
		s.Parallel = 0
	}
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.output_dir", &r.OutputDir, defaultReportDir),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
