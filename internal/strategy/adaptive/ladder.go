// Package adaptive 提供带时间窗的阶梯计数器,以及构建在其上的
// 止损回归状态机。阶梯是通用件:止损距离的逐步收缩和入场确认
// 门槛的逐步抬升共用同一套步进/复位/过期语义,只是方向相反。
package adaptive

import "time"

// Ladder 带时间窗的阶梯值。Reset 态取基准值;每次 Trigger 向
// 极限值走一步并夹在极限处;周期从第一次触发计时,超过窗口的
// 下一次触发开启新周期(从基准重新走第一步)。
type Ladder struct {
	base   float64
	step   float64 // 已带方向
	limit  float64
	window time.Duration

	value      float64
	steps      int
	cycleStart time.Time
}

// NewLadder 构造阶梯。step 取绝对值,方向由 base 与 limit 的
// 相对位置决定,因此回归(向下)与确认门槛(向上)都可用。
func NewLadder(base, step, limit float64, window time.Duration) *Ladder {
	if step < 0 {
		step = -step
	}
	if limit < base {
		step = -step
	}
	return &Ladder{base: base, step: step, limit: limit, window: window, value: base}
}

// Trigger 记录一次触发并返回新值。
func (l *Ladder) Trigger(t time.Time) float64 {
	if l.cycleStart.IsZero() || t.Sub(l.cycleStart) > l.window {
		l.cycleStart = t
		l.steps = 1
		l.value = l.clamp(l.base + l.step)
		return l.value
	}
	l.steps++
	l.value = l.clamp(l.value + l.step)
	return l.value
}

// Reset 回到基准值并结束当前周期。
func (l *Ladder) Reset() {
	l.value = l.base
	l.steps = 0
	l.cycleStart = time.Time{}
}

func (l *Ladder) clamp(v float64) float64 {
	if l.step > 0 && v > l.limit {
		return l.limit
	}
	if l.step < 0 && v < l.limit {
		return l.limit
	}
	return v
}

// Value 当前阶梯值。
func (l *Ladder) Value() float64 { return l.value }

// Steps 当前周期内已走的步数。
func (l *Ladder) Steps() int { return l.steps }

// Active 是否处于活跃周期。
func (l *Ladder) Active() bool { return !l.cycleStart.IsZero() }

// CycleStart 当前周期首次触发的时间,非活跃时为零值。
func (l *Ladder) CycleStart() time.Time { return l.cycleStart }
