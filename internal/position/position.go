package position

import (
	"fmt"
	"time"
)

// Side 持仓方向。
type Side int

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		panic(fmt.Sprintf("position: unknown side %d", int(s)))
	}
}

// Sign 返回方向符号:多头 +1,空头 -1,用于盈亏和价位的镜像计算。
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// TPLevel 单个止盈档:距开仓价的点数与应平掉的初始仓位比例。
// 各档按点数升序排列,比例之和应为 1。
type TPLevel struct {
	Points   float64 `json:"points"`
	Fraction float64 `json:"fraction"`
}

// Position 一笔在场持仓及其全部风控状态。
// 风控字段(水位、移动止损、止盈消耗)由离场评估与簿记在
// 每个 tick 上推进,开仓参数在生命周期内不变。
type Position struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"` // 已含滑点
	InitialQty float64   `json:"initial_qty"`
	Remaining  float64   `json:"remaining"`
	LotSize    int       `json:"lot_size"`
	TickSize   float64   `json:"tick_size"`

	StopPoints float64   `json:"stop_points"` // 开仓时生效的止损距离
	StopPrice  float64   `json:"stop_price"`
	Levels     []float64 `json:"levels"` // 各止盈档的绝对价位,升序
	Ladder     []TPLevel `json:"ladder"`
	Consumed   []bool    `json:"consumed"` // 已触发档位不再复活

	TrailEnabled    bool    `json:"trail_enabled"`
	TrailActivation float64 `json:"trail_activation"`
	TrailDistance   float64 `json:"trail_distance"`
	TrailArmed      bool    `json:"trail_armed"`
	TrailStop       float64 `json:"trail_stop"`
	HighWater       float64 `json:"high_water"` // 空头持仓记录的是最低价水位

	Realized   float64       `json:"realized"`
	EntryCosts CostBreakdown `json:"entry_costs"`
	ExitCosts  CostBreakdown `json:"exit_costs"`
	Reserved   float64       `json:"reserved"`
}

// Lots 当前剩余仓位折算的手数。
func (p *Position) Lots() float64 {
	if p.LotSize > 1 {
		return p.Remaining / float64(p.LotSize)
	}
	return p.Remaining
}

// UnrealizedAt 按给定现价计算浮动盈亏(未扣平仓费用)。
func (p *Position) UnrealizedAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Remaining * p.Side.Sign()
}

// ObserveTrailing 用最新价推进移动止损状态:先更新水位,
// 未激活时判断是否达到激活利润,已激活则只向有利方向棘轮。
// 同一价格重复调用结果不变。
func (p *Position) ObserveTrailing(price float64) {
	if !p.TrailEnabled || p.Remaining <= 0 {
		return
	}
	sign := p.Side.Sign()
	if p.HighWater == 0 || (price-p.HighWater)*sign > 0 {
		p.HighWater = price
	}
	if !p.TrailArmed {
		if (price-p.EntryPrice)*sign >= p.TrailActivation {
			p.TrailArmed = true
			p.TrailStop = price - p.TrailDistance*sign
		}
		return
	}
	if next := p.HighWater - p.TrailDistance*sign; (next-p.TrailStop)*sign > 0 {
		p.TrailStop = next
	}
}

// NextLevel 返回第一个未消耗止盈档的下标,全部消耗时返回 -1。
func (p *Position) NextLevel() int {
	for i, done := range p.Consumed {
		if !done {
			return i
		}
	}
	return -1
}

// LevelQuantity 计算触发第 i 档(0 起)时应平掉的数量。
// 非末档按初始仓位比例折算为整数手(至少 1 手)并截断到剩余量,
// 末档平掉全部剩余,舍入零头归入末档。
func (p *Position) LevelQuantity(i int) float64 {
	if i < 0 || i >= len(p.Ladder) {
		return 0
	}
	if i == len(p.Ladder)-1 {
		return p.Remaining
	}
	lot := float64(p.LotSize)
	if lot <= 1 {
		qty := float64(int(p.InitialQty * p.Ladder[i].Fraction))
		if qty < 1 {
			qty = 1
		}
		if qty > p.Remaining {
			qty = p.Remaining
		}
		return qty
	}
	totalLots := int(p.InitialQty / lot)
	lots := int(float64(totalLots) * p.Ladder[i].Fraction)
	if lots < 1 {
		lots = 1
	}
	if remLots := int(p.Remaining / lot); lots > remLots {
		lots = remLots
	}
	return float64(lots) * lot
}

// InvariantViolation 标记不可恢复的内部状态矛盾,
// 例如平仓数量超过剩余持仓。调用方应立即终止处理。
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}
