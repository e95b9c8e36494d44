// Package exit 对在场持仓逐 tick 评估离场条件。
// 评估本身无状态:全部风控状态都挂在持仓上,落账由持仓簿完成,
// 因此对同一 (持仓, tick) 重复评估得到相同结论。
package exit

import (
	"banyan/internal/market"
	"banyan/internal/position"
)

// Evaluate 按固定优先级检查离场条件并返回至多一个离场事件:
//
//  1. 基础止损,全部剩余仓位;
//  2. 移动止损(先推进水位与棘轮),全部剩余仓位;
//  3. 止盈阶梯,每个 tick 至多触发一个未消耗的最低档。
//
// 跳空同时越过止损价与止盈价时止损优先。价格恰好触及边界
// (等于止损价或止盈价)即触发。无可触发条件返回 nil。
func Evaluate(p *position.Position, t market.Tick) *position.ExitEvent {
	if p == nil || p.Remaining <= 0 {
		return nil
	}
	p.ObserveTrailing(t.Price)
	sign := p.Side.Sign()

	if (t.Price-p.StopPrice)*sign <= 0 {
		return &position.ExitEvent{
			PositionID: p.ID,
			Kind:       position.ExitBaseStopLoss,
			Price:      t.Price,
			Quantity:   p.Remaining,
			Time:       t.Time,
		}
	}
	if p.TrailArmed && (t.Price-p.TrailStop)*sign <= 0 {
		return &position.ExitEvent{
			PositionID: p.ID,
			Kind:       position.ExitTrailingStop,
			Price:      t.Price,
			Quantity:   p.Remaining,
			Time:       t.Time,
		}
	}
	for i, lvl := range p.Levels {
		if p.Consumed[i] {
			continue
		}
		if (t.Price-lvl)*sign < 0 {
			// 阶梯升序,更高档位必然也未触及
			break
		}
		qty := p.LevelQuantity(i)
		if qty <= 0 {
			break
		}
		return &position.ExitEvent{
			PositionID: p.ID,
			Kind:       position.ExitTakeProfit,
			Level:      i + 1,
			Price:      t.Price,
			Quantity:   qty,
			Time:       t.Time,
		}
	}
	return nil
}
