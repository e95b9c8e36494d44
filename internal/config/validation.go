package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"banyan/internal/market"
)

// Validate 重新执行全部校验。参数扫描在套用组合后调用,
// 把非法组合挡在运行前。
func (c *Config) Validate() error { return validate(c) }

// validate 对配置进行基础校验,任一失败都会让 Load 直接报错。
func validate(c *Config) error {
	if err := c.Instrument.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Gate.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if err := c.Capital.validate(); err != nil {
		return err
	}
	if err := c.Costs.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Journal.validate(); err != nil {
		return err
	}
	if err := c.Sweep.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (i *InstrumentConfig) validate() error {
	if strings.TrimSpace(i.Symbol) == "" {
		return fmt.Errorf("instrument.symbol cannot be empty")
	}
	if len(i.Mappings) == 0 {
		return fmt.Errorf("instrument.mappings requires at least one entry")
	}
	for name, spec := range i.Mappings {
		if spec.LotSize <= 0 {
			return fmt.Errorf("instrument.mappings.%s.lot_size must be > 0", name)
		}
		if spec.TickSize <= 0 {
			return fmt.Errorf("instrument.mappings.%s.tick_size must be > 0", name)
		}
	}
	if _, ok := i.Resolve(); !ok {
		return fmt.Errorf("instrument.symbol %s not found in instrument.mappings", i.Symbol)
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := time.LoadLocation(strings.TrimSpace(s.Timezone)); err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	start, err := market.ParseClock(s.Start)
	if err != nil {
		return fmt.Errorf("session.start: %w", err)
	}
	end, err := market.ParseClock(s.End)
	if err != nil {
		return fmt.Errorf("session.end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("session.end must be after session.start")
	}
	if s.StartBufferMinutes < 0 || s.EndBufferMinutes < 0 || s.CloseBeforeEndMinutes < 0 {
		return fmt.Errorf("session buffer minutes must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.BaseSLPoints <= 0 {
		return fmt.Errorf("risk.base_sl_points must be > 0")
	}
	if len(r.TPPoints) == 0 {
		return fmt.Errorf("risk.tp_points requires at least one level")
	}
	if len(r.TPPoints) != len(r.TPPercents) {
		return fmt.Errorf("risk.tp_points and risk.tp_percents must have equal length (%d vs %d)",
			len(r.TPPoints), len(r.TPPercents))
	}
	prev := 0.0
	sum := 0.0
	for idx, pts := range r.TPPoints {
		if pts <= prev {
			return fmt.Errorf("risk.tp_points must be strictly ascending and > 0 (level %d)", idx+1)
		}
		prev = pts
		frac := r.TPPercents[idx]
		if frac <= 0 || frac > 1 {
			return fmt.Errorf("risk.tp_percents entries must be in (0,1] (level %d)", idx+1)
		}
		sum += frac
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("risk.tp_percents must sum to 1.0, got %.6f", sum)
	}
	if r.TrailEnabled {
		if r.TrailActivationPoints <= 0 {
			return fmt.Errorf("risk.trail_activation_points must be > 0")
		}
		if r.TrailDistancePoints <= 0 {
			return fmt.Errorf("risk.trail_distance_points must be > 0")
		}
	}
	return r.Regression.validate()
}

func (r *RegressionConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxPoints <= 0 {
		return fmt.Errorf("risk.sl_regression.max_points must be > 0")
	}
	if r.MinPoints <= 0 || r.MinPoints > r.MaxPoints {
		return fmt.Errorf("risk.sl_regression.min_points must be in (0, max_points]")
	}
	if r.StepPoints <= 0 {
		return fmt.Errorf("risk.sl_regression.step_points must be > 0")
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("risk.sl_regression.window_seconds must be > 0")
	}
	return nil
}

func (g *GateConfig) validate() error {
	if g.MaxEntriesPerDay < 0 {
		return fmt.Errorf("gate.max_entries_per_day must be >= 0")
	}
	if g.MaxDailyLoss < 0 {
		return fmt.Errorf("gate.max_daily_loss must be >= 0")
	}
	if g.CooldownSeconds < 0 {
		return fmt.Errorf("gate.cooldown_seconds must be >= 0")
	}
	if g.ConfirmTicks < 1 {
		return fmt.Errorf("gate.confirm_ticks must be >= 1")
	}
	if g.ConfirmStep < 0 {
		return fmt.Errorf("gate.confirm_step must be >= 0")
	}
	if g.ConfirmMaxTicks < g.ConfirmTicks {
		return fmt.Errorf("gate.confirm_max_ticks must be >= gate.confirm_ticks")
	}
	if g.ConfirmWindowSeconds < 0 {
		return fmt.Errorf("gate.confirm_window_seconds must be >= 0")
	}
	if g.PriceBufferPoints < 0 {
		return fmt.Errorf("gate.price_buffer_points must be >= 0")
	}
	if g.FilterDurationSeconds < 0 {
		return fmt.Errorf("gate.filter_duration_seconds must be >= 0")
	}
	if g.NoTradeStartMinutes < 0 || g.NoTradeEndMinutes < 0 {
		return fmt.Errorf("gate no-trade minutes must be >= 0")
	}
	for _, raw := range g.TradeBlocks {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := market.ParseTimeBlock(raw); err != nil {
			return fmt.Errorf("gate.trade_blocks: %w", err)
		}
	}
	return nil
}

func (s *SignalConfig) validate() error {
	if s.FastEMAPeriod < 1 {
		return fmt.Errorf("signal.fast_ema_period must be >= 1")
	}
	if s.SlowEMAPeriod <= s.FastEMAPeriod {
		return fmt.Errorf("signal.slow_ema_period must be > signal.fast_ema_period")
	}
	if s.MinWarmupTicks < 0 {
		return fmt.Errorf("signal.min_warmup_ticks must be >= 0")
	}
	if s.NoisePct < 0 {
		return fmt.Errorf("signal.noise_pct must be >= 0")
	}
	if s.NoiseMinTicks < 0 {
		return fmt.Errorf("signal.noise_min_ticks must be >= 0")
	}
	return nil
}

func (c *CapitalConfig) validate() error {
	if c.Initial <= 0 {
		return fmt.Errorf("capital.initial must be > 0")
	}
	if c.SlippagePoints < 0 {
		return fmt.Errorf("capital.slippage_points must be >= 0")
	}
	if c.MarginPct <= 0 || c.MarginPct > 1 {
		return fmt.Errorf("capital.margin_pct must be in (0, 1]")
	}
	return nil
}

func (c *CostsConfig) validate() error {
	if c.CommissionPct < 0 || c.CommissionMinPerTrade < 0 || c.STTSellPct < 0 ||
		c.ExchangePct < 0 || c.GSTPct < 0 {
		return fmt.Errorf("costs rates must be >= 0")
	}
	return nil
}

func (f *FeedConfig) validate() error {
	switch f.Mode {
	case "replay":
		if strings.TrimSpace(f.Replay.Path) == "" {
			return fmt.Errorf("feed.replay.path required when feed.mode=replay")
		}
	case "binance":
		if strings.TrimSpace(f.Binance.Symbol) == "" {
			return fmt.Errorf("feed.binance.symbol required when feed.mode=binance")
		}
	case "ws":
		if strings.TrimSpace(f.WS.URL) == "" {
			return fmt.Errorf("feed.ws.url required when feed.mode=ws")
		}
	default:
		return fmt.Errorf("feed.mode must be one of replay/binance/ws, got %s", f.Mode)
	}
	if f.Replay.Speed < 0 {
		return fmt.Errorf("feed.replay.speed must be >= 0")
	}
	return nil
}

func (j *JournalConfig) validate() error {
	if j.Enabled && strings.TrimSpace(j.Path) == "" {
		return fmt.Errorf("journal.path cannot be empty when journal is enabled")
	}
	return nil
}

func (s *SweepConfig) validate() error {
	if s.MaxCombinations <= 0 {
		return fmt.Errorf("sweep.max_combinations must be > 0")
	}
	if s.Parallel < 0 {
		return fmt.Errorf("sweep.parallel must be >= 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
