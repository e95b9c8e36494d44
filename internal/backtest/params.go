package backtest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"banyan/internal/config"
)

// paramSetters 列出可被扫描覆盖的配置键。yaml 里的数字可能以
// int/float/字符串形式到达,统一经 toFloat/toInt 收敛。
var paramSetters = map[string]func(*config.Config, any) error{
	"risk.base_sl_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.BaseSLPoints, v)
	},
	"risk.tp_points": func(c *config.Config, v any) error {
		return setFloatList(&c.Risk.TPPoints, v)
	},
	"risk.tp_percents": func(c *config.Config, v any) error {
		return setFloatList(&c.Risk.TPPercents, v)
	},
	"risk.trail_enabled": func(c *config.Config, v any) error {
		return setBool(&c.Risk.TrailEnabled, v)
	},
	"risk.trail_activation_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.TrailActivationPoints, v)
	},
	"risk.trail_distance_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.TrailDistancePoints, v)
	},
	"risk.sl_regression.enabled": func(c *config.Config, v any) error {
		return setBool(&c.Risk.Regression.Enabled, v)
	},
	"risk.sl_regression.max_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.Regression.MaxPoints, v)
	},
	"risk.sl_regression.step_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.Regression.StepPoints, v)
	},
	"risk.sl_regression.min_points": func(c *config.Config, v any) error {
		return setFloat(&c.Risk.Regression.MinPoints, v)
	},
	"risk.sl_regression.window_seconds": func(c *config.Config, v any) error {
		return setInt(&c.Risk.Regression.WindowSeconds, v)
	},
	"gate.max_entries_per_day": func(c *config.Config, v any) error {
		return setInt(&c.Gate.MaxEntriesPerDay, v)
	},
	"gate.max_daily_loss": func(c *config.Config, v any) error {
		return setFloat(&c.Gate.MaxDailyLoss, v)
	},
	"gate.cooldown_seconds": func(c *config.Config, v any) error {
		return setInt(&c.Gate.CooldownSeconds, v)
	},
	"gate.confirm_ticks": func(c *config.Config, v any) error {
		return setInt(&c.Gate.ConfirmTicks, v)
	},
	"gate.confirm_step": func(c *config.Config, v any) error {
		return setInt(&c.Gate.ConfirmStep, v)
	},
	"gate.confirm_max_ticks": func(c *config.Config, v any) error {
		return setInt(&c.Gate.ConfirmMaxTicks, v)
	},
	"gate.confirm_window_seconds": func(c *config.Config, v any) error {
		return setInt(&c.Gate.ConfirmWindowSeconds, v)
	},
	"gate.price_recovery_filter": func(c *config.Config, v any) error {
		return setBool(&c.Gate.PriceRecoveryFilter, v)
	},
	"gate.price_buffer_points": func(c *config.Config, v any) error {
		return setFloat(&c.Gate.PriceBufferPoints, v)
	},
	"gate.filter_duration_seconds": func(c *config.Config, v any) error {
		return setInt(&c.Gate.FilterDurationSeconds, v)
	},
	"signal.fast_ema_period": func(c *config.Config, v any) error {
		return setInt(&c.Signal.FastEMAPeriod, v)
	},
	"signal.slow_ema_period": func(c *config.Config, v any) error {
		return setInt(&c.Signal.SlowEMAPeriod, v)
	},
	"signal.min_warmup_ticks": func(c *config.Config, v any) error {
		return setInt(&c.Signal.MinWarmupTicks, v)
	},
	"signal.noise_filter": func(c *config.Config, v any) error {
		return setBool(&c.Signal.NoiseFilter, v)
	},
	"signal.noise_pct": func(c *config.Config, v any) error {
		return setFloat(&c.Signal.NoisePct, v)
	},
	"signal.noise_min_ticks": func(c *config.Config, v any) error {
		return setFloat(&c.Signal.NoiseMinTicks, v)
	},
	"capital.initial": func(c *config.Config, v any) error {
		return setFloat(&c.Capital.Initial, v)
	},
	"capital.slippage_points": func(c *config.Config, v any) error {
		return setFloat(&c.Capital.SlippagePoints, v)
	},
	"capital.margin_pct": func(c *config.Config, v any) error {
		return setFloat(&c.Capital.MarginPct, v)
	},
	"costs.commission_pct": func(c *config.Config, v any) error {
		return setFloat(&c.Costs.CommissionPct, v)
	},
	"costs.stt_sell_pct": func(c *config.Config, v any) error {
		return setFloat(&c.Costs.STTSellPct, v)
	},
}

// SweepableKeys 返回全部可扫描键,升序。
func SweepableKeys() []string {
	keys := make([]string, 0, len(paramSetters))
	for k := range paramSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyParams 把单个组合的覆盖项写入配置并重新校验。
func ApplyParams(cfg *config.Config, params map[string]any) error {
	for key, val := range params {
		setter, ok := paramSetters[key]
		if !ok {
			return fmt.Errorf("unknown sweep key %q", key)
		}
		if err := setter(cfg, val); err != nil {
			return fmt.Errorf("sweep key %q: %w", key, err)
		}
	}
	return cfg.Validate()
}

func setFloat(dst *float64, v any) error {
	f, err := toFloat(v)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setInt(dst *int, v any) error {
	f, err := toFloat(v)
	if err != nil {
		return err
	}
	*dst = int(f)
	return nil
}

func setBool(dst *bool, v any) error {
	switch val := v.(type) {
	case bool:
		*dst = val
		return nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("expected bool, got %q", val)
		}
		*dst = b
		return nil
	default:
		return fmt.Errorf("expected bool, got %T", v)
	}
}

func setFloatList(dst *[]float64, v any) error {
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("expected list, got %T", v)
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, err := toFloat(item)
		if err != nil {
			return err
		}
		out = append(out, f)
	}
	*dst = out
	return nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
