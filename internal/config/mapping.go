package config

import (
	"fmt"
	"time"

	"banyan/internal/market"
	"banyan/internal/position"
	"banyan/internal/signal"
	"banyan/internal/strategy/adaptive"
	"banyan/internal/strategy/gate"
)

// 本文件把配置切面映射为各组件的参数结构。引擎装配与参数
// 扫描共用这些映射,避免两处重复拼装。

// SessionSpec 汇总交易时段与闸门侧的时间限制。
func (c *Config) SessionSpec() market.SessionSpec {
	return market.SessionSpec{
		Timezone:            c.Session.Timezone,
		Start:               c.Session.Start,
		End:                 c.Session.End,
		OpenBufferMinutes:   c.Session.StartBufferMinutes,
		CloseBufferMinutes:  c.Session.EndBufferMinutes,
		CloseAheadMinutes:   c.Session.CloseBeforeEndMinutes,
		NoTradeOpenMinutes:  c.Gate.NoTradeStartMinutes,
		NoTradeCloseMinutes: c.Gate.NoTradeEndMinutes,
		Blocks:              c.Gate.TradeBlocks,
	}
}

// BookConfig 组装持仓簿参数,品种参数取自映射表。
func (c *Config) BookConfig() (position.BookConfig, error) {
	spec, ok := c.Instrument.Resolve()
	if !ok {
		return position.BookConfig{}, fmt.Errorf("instrument.symbol %s not found in instrument.mappings", c.Instrument.Symbol)
	}
	return position.BookConfig{
		Capital:         c.Capital.Initial,
		SlippagePoints:  c.Capital.SlippagePoints,
		MarginPct:       c.Capital.MarginPct,
		LotSize:         spec.LotSize,
		TickSize:        spec.TickSize,
		Ladder:          c.Risk.Ladder(),
		TrailEnabled:    c.Risk.TrailEnabled,
		TrailActivation: c.Risk.TrailActivationPoints,
		TrailDistance:   c.Risk.TrailDistancePoints,
		Costs: position.CostConfig{
			CommissionPct: c.Costs.CommissionPct,
			MinCommission: c.Costs.CommissionMinPerTrade,
			STTPct:        c.Costs.STTSellPct,
			ExchangePct:   c.Costs.ExchangePct,
			GSTPct:        c.Costs.GSTPct,
		},
	}, nil
}

// Ladder 把平行的点数/比例数组拼成止盈阶梯。
func (r RiskConfig) Ladder() []position.TPLevel {
	n := len(r.TPPoints)
	if len(r.TPPercents) < n {
		n = len(r.TPPercents)
	}
	out := make([]position.TPLevel, n)
	for i := 0; i < n; i++ {
		out[i] = position.TPLevel{Points: r.TPPoints[i], Fraction: r.TPPercents[i]}
	}
	return out
}

// Regression 映射止损回归参数。停用时退化为恒定的基础止损
// 距离:上下限同值、步长为零,触发与复位都不再改变距离。
func (c *Config) Regression() adaptive.RegressionConfig {
	r := c.Risk.Regression
	if !r.Enabled {
		return adaptive.RegressionConfig{
			MaxPoints: c.Risk.BaseSLPoints,
			MinPoints: c.Risk.BaseSLPoints,
		}
	}
	return adaptive.RegressionConfig{
		MaxPoints: r.MaxPoints,
		StepSize:  r.StepPoints,
		MinPoints: r.MinPoints,
		Window:    time.Duration(r.WindowSeconds) * time.Second,
	}
}

// EntryGate 组装入场闸门参数,连涨计数的噪声过滤沿用信号侧
// 设置与品种最小跳动。
func (c *Config) EntryGate() (gate.Config, error) {
	spec, ok := c.Instrument.Resolve()
	if !ok {
		return gate.Config{}, fmt.Errorf("instrument.symbol %s not found in instrument.mappings", c.Instrument.Symbol)
	}
	return gate.Config{
		MaxEntriesPerDay: c.Gate.MaxEntriesPerDay,
		DailyLossLimit:   c.Gate.MaxDailyLoss,
		Cooldown:         time.Duration(c.Gate.CooldownSeconds) * time.Second,
		ConfirmBase:      c.Gate.ConfirmTicks,
		ConfirmStep:      c.Gate.ConfirmStep,
		ConfirmMax:       c.Gate.ConfirmMaxTicks,
		ConfirmWindow:    time.Duration(c.Gate.ConfirmWindowSeconds) * time.Second,
		RecoveryFilter:   c.Gate.PriceRecoveryFilter,
		PriceBuffer:      c.Gate.PriceBufferPoints,
		FilterDuration:   time.Duration(c.Gate.FilterDurationSeconds) * time.Second,
		Streak: signal.StreakConfig{
			TickSize:      spec.TickSize,
			NoiseFilter:   c.Signal.NoiseFilter,
			NoisePct:      c.Signal.NoisePct,
			NoiseMinTicks: c.Signal.NoiseMinTicks,
		},
	}, nil
}

// Momentum 映射动量信号参数。
func (c *Config) Momentum() signal.MomentumConfig {
	return signal.MomentumConfig{
		FastPeriod:  c.Signal.FastEMAPeriod,
		SlowPeriod:  c.Signal.SlowEMAPeriod,
		WarmupTicks: c.Signal.MinWarmupTicks,
	}
}

// ReplayConfig 映射 CSV 回放参数,时间戳按交易时段时区解析。
func (c *Config) ReplayConfig(loc *time.Location) market.ReplayConfig {
	return market.ReplayConfig{
		Path:          c.Feed.Replay.Path,
		Speed:         c.Feed.Replay.Speed,
		Location:      loc,
		ProgressEvery: c.Feed.Replay.ProgressEvery,
	}
}
