package signal

import (
	talib "github.com/markcheno/go-talib"

	"banyan/internal/logger"
	"banyan/internal/market"
)

// MomentumConfig 动量信号参数。预热期内只收集价格不出信号,
// 实际预热长度至少要覆盖慢线周期。
type MomentumConfig struct {
	FastPeriod  int
	SlowPeriod  int
	WarmupTicks int
}

// Momentum 快慢 EMA 动量信号:快线在慢线上方给出做多候选。
// 预热窗口用 talib 批量计算 EMA 种子,之后逐 tick 增量更新,
// 避免每个 tick 重算整段序列。
type Momentum struct {
	cfg    MomentumConfig
	warm   []float64
	fast   float64
	slow   float64
	seeded bool
}

var _ Producer = (*Momentum)(nil)

func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg, warm: make([]float64, 0, cfg.WarmupTicks)}
}

func (m *Momentum) need() int {
	n := m.cfg.WarmupTicks
	if m.cfg.SlowPeriod > n {
		n = m.cfg.SlowPeriod
	}
	return n
}

func (m *Momentum) Observe(t market.Tick) Direction {
	if !m.seeded {
		m.warm = append(m.warm, t.Price)
		if len(m.warm) < m.need() {
			return None
		}
		fast := talib.Ema(m.warm, m.cfg.FastPeriod)
		slow := talib.Ema(m.warm, m.cfg.SlowPeriod)
		m.fast = fast[len(fast)-1]
		m.slow = slow[len(slow)-1]
		m.seeded = true
		m.warm = nil
		logger.Infof("[signal] 预热完成 (%d ticks), fast=%.2f slow=%.2f",
			m.need(), m.fast, m.slow)
		return m.direction()
	}
	m.fast += 2.0 / float64(m.cfg.FastPeriod+1) * (t.Price - m.fast)
	m.slow += 2.0 / float64(m.cfg.SlowPeriod+1) * (t.Price - m.slow)
	return m.direction()
}

func (m *Momentum) direction() Direction {
	if m.fast > m.slow {
		return Long
	}
	return None
}

// Ready 预热是否完成。
func (m *Momentum) Ready() bool { return m.seeded }

// Values 当前快慢线取值,未预热完成时两者为 0。
func (m *Momentum) Values() (fast, slow float64) { return m.fast, m.slow }
