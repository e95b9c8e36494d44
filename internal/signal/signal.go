// Package signal 从原始 tick 流计算方向性入场候选。
// 产出只有 Long 与 None 两种:做多候选或无意见,
// 是否真正入场由闸门与引擎决定。
package signal

import "banyan/internal/market"

// Direction 方向候选。
type Direction int

const (
	None Direction = iota
	Long
)

func (d Direction) String() string {
	if d == Long {
		return "long"
	}
	return "none"
}

// Producer 逐 tick 推进内部指标并给出当前方向候选。
// 预热完成前一律返回 None。
type Producer interface {
	Observe(t market.Tick) Direction
	Ready() bool
}
