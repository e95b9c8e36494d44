package position

import "github.com/shopspring/decimal"

// CostConfig 印度市场口径的逐边交易成本参数,全部为百分比
// (0.03 表示 0.03%),MinCommission 为单笔佣金下限。
type CostConfig struct {
	CommissionPct float64 `json:"commission_pct"`
	MinCommission float64 `json:"min_commission"`
	STTPct        float64 `json:"stt_pct"`
	ExchangePct   float64 `json:"exchange_pct"`
	GSTPct        float64 `json:"gst_pct"`
}

// CostBreakdown 单边成交的费用拆解。
type CostBreakdown struct {
	Turnover   float64 `json:"turnover"`
	Commission float64 `json:"commission"`
	STT        float64 `json:"stt"`
	Exchange   float64 `json:"exchange"`
	GST        float64 `json:"gst"`
	Total      float64 `json:"total"`
}

// Add 费用逐项累加,用于在持仓上聚合多次部分平仓。
func (b CostBreakdown) Add(o CostBreakdown) CostBreakdown {
	return CostBreakdown{
		Turnover:   b.Turnover + o.Turnover,
		Commission: b.Commission + o.Commission,
		STT:        b.STT + o.STT,
		Exchange:   b.Exchange + o.Exchange,
		GST:        b.GST + o.GST,
		Total:      b.Total + o.Total,
	}
}

var hundred = decimal.NewFromInt(100)

// Breakdown 计算一边成交的全部费用。佣金取
// max(单笔下限, 成交额×佣金率),STT 只对卖出边征收,
// GST 按佣金与交易所费之和的比例计。内部用 decimal
// 运算避免分项累计的浮点漂移。
func (c CostConfig) Breakdown(price, qty float64, isBuy bool) CostBreakdown {
	turnover := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	commission := decimal.Max(
		decimal.NewFromFloat(c.MinCommission),
		turnover.Mul(decimal.NewFromFloat(c.CommissionPct)).Div(hundred),
	)
	stt := decimal.Zero
	if !isBuy {
		stt = turnover.Mul(decimal.NewFromFloat(c.STTPct)).Div(hundred)
	}
	exchange := turnover.Mul(decimal.NewFromFloat(c.ExchangePct)).Div(hundred)
	gst := commission.Add(exchange).Mul(decimal.NewFromFloat(c.GSTPct)).Div(hundred)
	total := commission.Add(stt).Add(exchange).Add(gst)
	return CostBreakdown{
		Turnover:   turnover.InexactFloat64(),
		Commission: commission.InexactFloat64(),
		STT:        stt.InexactFloat64(),
		Exchange:   exchange.InexactFloat64(),
		GST:        gst.InexactFloat64(),
		Total:      total.InexactFloat64(),
	}
}
