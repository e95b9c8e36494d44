package config

import "strings"

// Config 是 Banyan 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Instrument InstrumentConfig `toml:"instrument"`
	Session    SessionConfig    `toml:"session"`
	Risk       RiskConfig       `toml:"risk"`
	Gate       GateConfig       `toml:"gate"`
	Signal     SignalConfig     `toml:"signal"`
	Capital    CapitalConfig    `toml:"capital"`
	Costs      CostsConfig      `toml:"costs"`
	Feed       FeedConfig       `toml:"feed"`
	Journal    JournalConfig    `toml:"journal"`
	Sweep      SweepConfig      `toml:"sweep"`
	Notify     NotifyConfig     `toml:"notify"`
	Report     ReportConfig     `toml:"report"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// InstrumentConfig 指定交易品种;合约乘数与最小跳动从映射表
// 解析,激活品种必须能在表中找到。
type InstrumentConfig struct {
	Symbol   string                    `toml:"symbol"`
	Mappings map[string]InstrumentSpec `toml:"mappings"`
}

// InstrumentSpec 单个品种的合约参数。
type InstrumentSpec struct {
	LotSize  int     `toml:"lot_size"`
	TickSize float64 `toml:"tick_size"`
}

// Resolve 按品种名查映射表,大小写不敏感。
func (i InstrumentConfig) Resolve() (InstrumentSpec, bool) {
	sym := strings.TrimSpace(i.Symbol)
	for name, spec := range i.Mappings {
		if strings.EqualFold(strings.TrimSpace(name), sym) {
			return spec, true
		}
	}
	return InstrumentSpec{}, false
}

// Clone 返回深拷贝。参数扫描按组合逐份修改配置,实例间不得
// 共享任何引用字段。
func (c *Config) Clone() *Config {
	out := *c
	if c.Instrument.Mappings != nil {
		out.Instrument.Mappings = make(map[string]InstrumentSpec, len(c.Instrument.Mappings))
		for k, v := range c.Instrument.Mappings {
			out.Instrument.Mappings[k] = v
		}
	}
	out.Risk.TPPoints = append([]float64(nil), c.Risk.TPPoints...)
	out.Risk.TPPercents = append([]float64(nil), c.Risk.TPPercents...)
	out.Gate.TradeBlocks = append([]string(nil), c.Gate.TradeBlocks...)
	return &out
}

type SessionConfig struct {
	Timezone              string `toml:"timezone"`
	Start                 string `toml:"start"`
	End                   string `toml:"end"`
	StartBufferMinutes    int    `toml:"start_buffer_minutes"`
	EndBufferMinutes      int    `toml:"end_buffer_minutes"`
	CloseBeforeEndMinutes int    `toml:"close_before_end_minutes"`
}

// RiskConfig 离场侧参数:基础止损、止盈阶梯、移动止损与止损回归。
type RiskConfig struct {
	BaseSLPoints          float64          `toml:"base_sl_points"`
	TPPoints              []float64        `toml:"tp_points"`
	TPPercents            []float64        `toml:"tp_percents"` // 各档平仓比例,小数,合计须为 1.0
	TrailEnabled          bool             `toml:"trail_enabled"`
	TrailActivationPoints float64          `toml:"trail_activation_points"`
	TrailDistancePoints   float64          `toml:"trail_distance_points"`
	Regression            RegressionConfig `toml:"sl_regression"`
}

// RegressionConfig 连续亏损后逐步收缩止损距离的参数。
type RegressionConfig struct {
	Enabled       bool    `toml:"enabled"`
	MaxPoints     float64 `toml:"max_points"` // 缺省跟随 base_sl_points
	StepPoints    float64 `toml:"step_points"`
	MinPoints     float64 `toml:"min_points"`
	WindowSeconds int     `toml:"window_seconds"`
}

// GateConfig 入场闸门参数。
type GateConfig struct {
	MaxEntriesPerDay      int      `toml:"max_entries_per_day"`
	MaxDailyLoss          float64  `toml:"max_daily_loss"` // 0 表示不启用
	CooldownSeconds       int      `toml:"cooldown_seconds"`
	ConfirmTicks          int      `toml:"confirm_ticks"`
	ConfirmStep           int      `toml:"confirm_step"`
	ConfirmMaxTicks       int      `toml:"confirm_max_ticks"`
	ConfirmWindowSeconds  int      `toml:"confirm_window_seconds"`
	PriceRecoveryFilter   bool     `toml:"price_recovery_filter"`
	PriceBufferPoints     float64  `toml:"price_buffer_points"`
	FilterDurationSeconds int      `toml:"filter_duration_seconds"`
	TradeBlocks           []string `toml:"trade_blocks"` // "HH:MM-HH:MM"
	NoTradeStartMinutes   int      `toml:"no_trade_start_minutes"`
	NoTradeEndMinutes     int      `toml:"no_trade_end_minutes"`
}

type SignalConfig struct {
	FastEMAPeriod  int     `toml:"fast_ema_period"`
	SlowEMAPeriod  int     `toml:"slow_ema_period"`
	MinWarmupTicks int     `toml:"min_warmup_ticks"`
	NoiseFilter    bool    `toml:"noise_filter"`
	NoisePct       float64 `toml:"noise_pct"` // 小数,0.0001 即 0.01%
	NoiseMinTicks  float64 `toml:"noise_min_ticks"`
}

type CapitalConfig struct {
	Initial        float64 `toml:"initial"`
	SlippagePoints float64 `toml:"slippage_points"`
	MarginPct      float64 `toml:"margin_pct"` // 名义金额的占用比例,(0,1]
}

type CostsConfig struct {
	CommissionPct         float64 `toml:"commission_pct"`
	CommissionMinPerTrade float64 `toml:"commission_min_per_trade"`
	STTSellPct            float64 `toml:"stt_sell_pct"`
	ExchangePct           float64 `toml:"exchange_pct"`
	GSTPct                float64 `toml:"gst_pct"`
}

// FeedConfig 行情来源,mode 决定启用 replay/binance/ws 三者之一。
type FeedConfig struct {
	Mode    string            `toml:"mode"`
	Replay  ReplayFeedConfig  `toml:"replay"`
	Binance BinanceFeedConfig `toml:"binance"`
	WS      WSFeedConfig      `toml:"ws"`
}

type ReplayFeedConfig struct {
	Path          string  `toml:"path"`
	Speed         float64 `toml:"speed"` // 0 表示全速回放
	ProgressEvery int     `toml:"progress_every"`
}

type BinanceFeedConfig struct {
	Symbol string `toml:"symbol"`
}

type WSFeedConfig struct {
	URL              string `toml:"url"`
	AuthHeader       string `toml:"auth_header"`
	AuthToken        string `toml:"auth_token"`
	SubscribeMessage string `toml:"subscribe_message"` // 连接后原样发送的订阅帧,可空
	PingSeconds      int    `toml:"ping_seconds"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type SweepConfig struct {
	SpecPath        string `toml:"spec_path"`
	ResultsPath     string `toml:"results_path"`
	Parallel        int    `toml:"parallel"` // 0 表示取 CPU 核数
	MaxCombinations int    `toml:"max_combinations"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	RenderPNG bool   `toml:"render_png"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
