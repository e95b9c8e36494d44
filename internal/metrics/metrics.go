// Package metrics 暴露引擎运行指标。所有采集器注册在独立的
// Registry 上,由 HTTP 层以 /metrics 挂出,不污染全局默认注册表。
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Set 持有全部采集器与其注册表。
type Set struct {
	registry *prometheus.Registry

	ticks   prometheus.Counter
	skipped prometheus.Counter
	entries prometheus.Counter
	exits   *prometheus.CounterVec
	blocked *prometheus.CounterVec

	openQty    prometheus.Gauge
	stopPoints prometheus.Gauge
	equity     prometheus.Gauge
}

func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banyan_ticks_total",
			Help: "Valid ticks processed",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banyan_ticks_skipped_total",
			Help: "Ticks rejected by validation",
		}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banyan_entries_total",
			Help: "Positions opened",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banyan_exits_total",
			Help: "Exits split by kind",
		}, []string{"kind"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banyan_entry_blocked_total",
			Help: "Entry attempts rejected by the gate, split by reason class",
		}, []string{"reason"}),
		openQty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "banyan_open_quantity",
			Help: "Remaining quantity of the open position, 0 when flat",
		}),
		stopPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "banyan_current_stop_points",
			Help: "Stop distance of the open position in points, 0 when flat",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "banyan_equity",
			Help: "Mark-to-market equity at the last tick",
		}),
	}
	s.registry.MustRegister(s.ticks, s.skipped, s.entries, s.exits, s.blocked,
		s.openQty, s.stopPoints, s.equity)
	return s
}

// Registry 供 promhttp 挂载。
func (s *Set) Registry() *prometheus.Registry { return s.registry }

// kindLabel 把平仓种类转成 snake_case 标签值,如 "Base SL" → "base_sl"。
func kindLabel(kind string) string {
	return strings.ReplaceAll(strings.ToLower(kind), " ", "_")
}

// reasonClass 把闸门的拒绝文案归并为有限的标签值。拒绝原因里
// 带有随 tick 变化的数字(剩余冷却秒数、价格),直接作标签会把
// 基数撑爆,这里只保留类别。
func reasonClass(reason string) string {
	switch {
	case reason == "no long signal":
		return "no_signal"
	case strings.HasPrefix(reason, "within trade block"):
		return "trade_block"
	case reason == "outside trading session":
		return "outside_session"
	case reason == "inside session open buffer":
		return "open_buffer"
	case reason == "inside session close buffer":
		return "close_buffer"
	case reason == "in no-trade open window":
		return "no_trade_open"
	case reason == "in no-trade close window":
		return "no_trade_close"
	case strings.HasPrefix(reason, "daily entry limit"):
		return "entry_limit"
	case strings.HasPrefix(reason, "daily loss limit"):
		return "loss_limit"
	case strings.HasPrefix(reason, "cooldown active"):
		return "cooldown"
	case strings.Contains(reason, "green ticks"):
		return "confirmation"
	case strings.Contains(reason, "re-entry threshold"):
		return "price_filter"
	case strings.Contains(reason, "insufficient capital"),
		strings.Contains(reason, "quantity must be positive"):
		return "sizing"
	case strings.Contains(reason, "already open"):
		return "position_open"
	default:
		return "other"
	}
}
