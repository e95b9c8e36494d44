package position

import (
	"fmt"
	"time"
)

// ExitKind 标识一次平仓的触发来源。它是封闭枚举:
// 所有分支逻辑必须穷举处理,未知值直接 panic。
type ExitKind int

const (
	// ExitBaseStopLoss 基础止损触发。
	ExitBaseStopLoss ExitKind = iota
	// ExitTrailingStop 移动止损触发。
	ExitTrailingStop
	// ExitTakeProfit 分级止盈触发,事件中携带档位序号。
	ExitTakeProfit
	// ExitSessionEnd 交易时段结束强制平仓。
	ExitSessionEnd
	// ExitManual 外部指令平仓(API / 人工)。
	ExitManual
)

func (k ExitKind) String() string {
	switch k {
	case ExitBaseStopLoss:
		return "Base SL"
	case ExitTrailingStop:
		return "Trailing Stop"
	case ExitTakeProfit:
		return "Take Profit"
	case ExitSessionEnd:
		return "Session End"
	case ExitManual:
		return "Manual Exit"
	default:
		panic(fmt.Sprintf("position: unknown exit kind %d", int(k)))
	}
}

// IsLoss 判断该平仓种类是否计为"亏损型离场"。
// 止损与移动止损一律算亏损型,即使离场时净盈亏为正;
// 止盈、收盘平仓和人工平仓不算。
func (k ExitKind) IsLoss() bool {
	switch k {
	case ExitBaseStopLoss, ExitTrailingStop:
		return true
	case ExitTakeProfit, ExitSessionEnd, ExitManual:
		return false
	default:
		panic(fmt.Sprintf("position: unknown exit kind %d", int(k)))
	}
}

// ExitEvent 描述对某个持仓执行的一次(部分或全部)平仓。
type ExitEvent struct {
	PositionID string    `json:"position_id"`
	Kind       ExitKind  `json:"kind"`
	Level      int       `json:"level,omitempty"` // 止盈档位,1 起;其余种类为 0
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Time       time.Time `json:"time"`
}

// Reason 返回人类可读的离场原因,止盈带档位序号。
func (e ExitEvent) Reason() string {
	if e.Kind == ExitTakeProfit {
		return fmt.Sprintf("Take Profit %d", e.Level)
	}
	return e.Kind.String()
}
