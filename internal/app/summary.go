package app

import (
	"fmt"
	"strings"

	"banyan/internal/config"
	"banyan/internal/position"
)

// StartupSummary 启动时打印一屏配置摘要,方便在日志里核对
// 本次运行的关键参数。
type StartupSummary struct {
	Instrument InstrumentSummary
	Session    SessionSummary
	Risk       RiskSummary
	Gate       GateSummary
	Feed       FeedSummary
	Services   ServiceSummary
}

type InstrumentSummary struct {
	Symbol   string
	LotSize  int
	TickSize float64
}

type SessionSummary struct {
	Timezone       string
	Start, End     string
	StartBufferMin int
	EndBufferMin   int
	CloseAheadMin  int
	TradeBlocks    []string
}

type RiskSummary struct {
	BaseSLPoints    float64
	Ladder          []position.TPLevel
	TrailEnabled    bool
	TrailActivation float64
	TrailDistance   float64
	RegrEnabled     bool
	RegrMax         float64
	RegrMin         float64
	RegrStep        float64
	RegrWindowSec   int
}

type GateSummary struct {
	MaxEntriesPerDay int
	MaxDailyLoss     float64
	CooldownSec      int
	ConfirmTicks     int
	ConfirmMaxTicks  int
	RecoveryFilter   bool
}

type FeedSummary struct {
	Mode   string
	Detail string
}

type ServiceSummary struct {
	HTTPAddr    string
	JournalPath string
	SweepSpec   string
	Telegram    bool
}

func newStartupSummary(cfg *config.Config, bookCfg position.BookConfig) *StartupSummary {
	detail := "-"
	switch cfg.Feed.Mode {
	case "replay":
		detail = cfg.Feed.Replay.Path
	case "binance":
		detail = strings.ToUpper(cfg.Feed.Binance.Symbol)
	case "ws":
		detail = cfg.Feed.WS.URL
	}
	journalPath := ""
	if cfg.Journal.Enabled {
		journalPath = cfg.Journal.Path
	}
	return &StartupSummary{
		Instrument: InstrumentSummary{
			Symbol:   strings.ToUpper(strings.TrimSpace(cfg.Instrument.Symbol)),
			LotSize:  bookCfg.LotSize,
			TickSize: bookCfg.TickSize,
		},
		Session: SessionSummary{
			Timezone:       cfg.Session.Timezone,
			Start:          cfg.Session.Start,
			End:            cfg.Session.End,
			StartBufferMin: cfg.Session.StartBufferMinutes,
			EndBufferMin:   cfg.Session.EndBufferMinutes,
			CloseAheadMin:  cfg.Session.CloseBeforeEndMinutes,
			TradeBlocks:    append([]string(nil), cfg.Gate.TradeBlocks...),
		},
		Risk: RiskSummary{
			BaseSLPoints:    cfg.Risk.BaseSLPoints,
			Ladder:          bookCfg.Ladder,
			TrailEnabled:    cfg.Risk.TrailEnabled,
			TrailActivation: cfg.Risk.TrailActivationPoints,
			TrailDistance:   cfg.Risk.TrailDistancePoints,
			RegrEnabled:     cfg.Risk.Regression.Enabled,
			RegrMax:         cfg.Risk.Regression.MaxPoints,
			RegrMin:         cfg.Risk.Regression.MinPoints,
			RegrStep:        cfg.Risk.Regression.StepPoints,
			RegrWindowSec:   cfg.Risk.Regression.WindowSeconds,
		},
		Gate: GateSummary{
			MaxEntriesPerDay: cfg.Gate.MaxEntriesPerDay,
			MaxDailyLoss:     cfg.Gate.MaxDailyLoss,
			CooldownSec:      cfg.Gate.CooldownSeconds,
			ConfirmTicks:     cfg.Gate.ConfirmTicks,
			ConfirmMaxTicks:  cfg.Gate.ConfirmMaxTicks,
			RecoveryFilter:   cfg.Gate.PriceRecoveryFilter,
		},
		Feed: FeedSummary{Mode: cfg.Feed.Mode, Detail: detail},
		Services: ServiceSummary{
			HTTPAddr:    cfg.App.HTTPAddr,
			JournalPath: journalPath,
			SweepSpec:   cfg.Sweep.SpecPath,
			Telegram:    cfg.Notify.Telegram.Enabled,
		},
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[交易品种 (INSTRUMENT)]")
	fmt.Printf("  代码: %s\n", s.Instrument.Symbol)
	fmt.Printf("  手数: %d\n", s.Instrument.LotSize)
	fmt.Printf("  最小跳动: %.2f\n", s.Instrument.TickSize)
	fmt.Println()

	fmt.Println("[交易时段 (SESSION)]")
	fmt.Printf("  时区: %s\n", s.Session.Timezone)
	fmt.Printf("  区间: %s - %s\n", s.Session.Start, s.Session.End)
	fmt.Printf("  开盘缓冲: %d 分钟 / 收盘缓冲: %d 分钟\n", s.Session.StartBufferMin, s.Session.EndBufferMin)
	fmt.Printf("  收盘前强平: %d 分钟\n", s.Session.CloseAheadMin)
	fmt.Printf("  禁入区间: %s\n", formatList(s.Session.TradeBlocks))
	fmt.Println()

	fmt.Println("[风控 (RISK)]")
	fmt.Printf("  基础止损: %.1f 点\n", s.Risk.BaseSLPoints)
	fmt.Printf("  止盈阶梯: %s\n", formatLadder(s.Risk.Ladder))
	if s.Risk.TrailEnabled {
		fmt.Printf("  追踪止损: 激活 +%.1f 点,距离 %.1f 点\n", s.Risk.TrailActivation, s.Risk.TrailDistance)
	} else {
		fmt.Println("  追踪止损: 关闭")
	}
	if s.Risk.RegrEnabled {
		fmt.Printf("  止损回归: %.1f → %.1f 点,每 %ds 无新高收 %.1f 点\n",
			s.Risk.RegrMax, s.Risk.RegrMin, s.Risk.RegrWindowSec, s.Risk.RegrStep)
	} else {
		fmt.Println("  止损回归: 关闭")
	}
	fmt.Println()

	fmt.Println("[入场闸门 (ENTRY GATE)]")
	fmt.Printf("  单日限次: %d\n", s.Gate.MaxEntriesPerDay)
	if s.Gate.MaxDailyLoss > 0 {
		fmt.Printf("  单日最大亏损: %.0f\n", s.Gate.MaxDailyLoss)
	} else {
		fmt.Println("  单日最大亏损: 不限")
	}
	fmt.Printf("  冷却: %ds / 确认: %d-%d tick\n", s.Gate.CooldownSec, s.Gate.ConfirmTicks, s.Gate.ConfirmMaxTicks)
	fmt.Printf("  价格恢复过滤: %s\n", onOff(s.Gate.RecoveryFilter))
	fmt.Println()

	fmt.Println("[行情源 (FEED)]")
	fmt.Printf("  模式: %s\n", s.Feed.Mode)
	fmt.Printf("  目标: %s\n", s.Feed.Detail)
	fmt.Println()

	fmt.Println("[服务 (SERVICES)]")
	fmt.Printf("  HTTP: %s\n", s.Services.HTTPAddr)
	if s.Services.JournalPath != "" {
		fmt.Printf("  流水库: %s\n", s.Services.JournalPath)
	} else {
		fmt.Println("  流水库: 关闭")
	}
	fmt.Printf("  扫描规格: %s\n", s.Services.SweepSpec)
	fmt.Printf("  Telegram: %s\n", onOff(s.Services.Telegram))
	fmt.Println(strings.Repeat("=", 80))
}

func formatLadder(levels []position.TPLevel) string {
	if len(levels) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(levels))
	for _, lv := range levels {
		parts = append(parts, fmt.Sprintf("+%.0f点×%.0f%%", lv.Points, lv.Fraction*100))
	}
	return strings.Join(parts, " ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func onOff(b bool) string {
	if b {
		return "启用"
	}
	return "关闭"
}
