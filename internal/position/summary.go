package position

import "math"

// Summary 基于成交流水的聚合绩效指标。
// 盈亏分类按逐笔净盈亏(已扣平仓边费用),GrossLoss 为负数,
// ProfitFactor = 总盈利 / |总亏损|。
type Summary struct {
	Trades       int            `json:"trades"`
	Wins         int            `json:"wins"`
	Losses       int            `json:"losses"`
	WinRate      float64        `json:"win_rate"` // 百分比
	GrossProfit  float64        `json:"gross_profit"`
	GrossLoss    float64        `json:"gross_loss"`
	NetPnL       float64        `json:"net_pnl"`
	TotalCosts   float64        `json:"total_costs"`
	AvgWin       float64        `json:"avg_win"`
	AvgLoss      float64        `json:"avg_loss"`
	BestTrade    float64        `json:"best_trade"`
	WorstTrade   float64        `json:"worst_trade"`
	ProfitFactor float64        `json:"profit_factor"`
	KindCounts   map[string]int `json:"kind_counts"`
}

// Summarize 汇总一组成交记录。空切片返回零值(KindCounts 非 nil)。
func Summarize(trades []Trade) Summary {
	s := Summary{KindCounts: make(map[string]int)}
	for _, t := range trades {
		s.Trades++
		s.NetPnL += t.NetPnL
		s.TotalCosts += t.Costs.Total
		s.KindCounts[t.Reason]++
		if t.NetPnL > 0 {
			s.Wins++
			s.GrossProfit += t.NetPnL
		} else if t.NetPnL < 0 {
			s.Losses++
			s.GrossLoss += t.NetPnL
		}
		if t.NetPnL > s.BestTrade {
			s.BestTrade = t.NetPnL
		}
		if t.NetPnL < s.WorstTrade {
			s.WorstTrade = t.NetPnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = 100 * float64(s.Wins) / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = math.Abs(s.GrossLoss) / float64(s.Losses)
	}
	if s.GrossLoss != 0 {
		s.ProfitFactor = s.GrossProfit / math.Abs(s.GrossLoss)
	}
	return s
}

// Summary 当前流水的聚合指标。
func (b *Book) Summary() Summary {
	return Summarize(b.trades)
}
