package adaptive

import (
	"fmt"
	"time"

	"banyan/internal/logger"
	"banyan/internal/position"
)

// RegressionConfig 止损回归参数。距离单位为点,窗口从周期内
// 第一次亏损离场起算。
type RegressionConfig struct {
	MaxPoints float64
	StepSize  float64
	MinPoints float64
	Window    time.Duration
}

// Regression 止损回归状态机:连续亏损型离场逐步收缩下一笔
// 开仓的止损距离,盈利或中性离场立即恢复到最大值。
// 只影响后续开仓,从不回头修改在场持仓。
type Regression struct {
	cfg    RegressionConfig
	ladder *Ladder
}

func NewRegression(cfg RegressionConfig) *Regression {
	return &Regression{
		cfg:    cfg,
		ladder: NewLadder(cfg.MaxPoints, cfg.StepSize, cfg.MinPoints, cfg.Window),
	}
}

// OnExit 消费一次离场。分类只看离场种类:止损与移动止损算
// 亏损型(移动止损即使净盈利也算,它同样指示动能反转);
// 止盈、收盘平仓与人工平仓结束周期并恢复最大距离。
func (r *Regression) OnExit(kind position.ExitKind, t time.Time) {
	switch kind {
	case position.ExitBaseStopLoss, position.ExitTrailingStop:
		v := r.ladder.Trigger(t)
		logger.Infof("[regression] 亏损离场 (%s) 第 %d 步,下一笔止损距离 %.1f 点",
			kind, r.ladder.Steps(), v)
	case position.ExitTakeProfit, position.ExitSessionEnd, position.ExitManual:
		if r.ladder.Active() {
			logger.Infof("[regression] %s 结束回归周期,止损距离恢复 %.1f 点",
				kind, r.cfg.MaxPoints)
		}
		r.ladder.Reset()
	default:
		panic(fmt.Sprintf("adaptive: unknown exit kind %d", int(kind)))
	}
}

// StopPoints 下一笔开仓应使用的止损距离。
func (r *Regression) StopPoints() float64 { return r.ladder.Value() }

// Steps 当前周期步数。
func (r *Regression) Steps() int { return r.ladder.Steps() }

// Active 是否处于回归周期中。
func (r *Regression) Active() bool { return r.ladder.Active() }
