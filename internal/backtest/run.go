// Package backtest 在历史 CSV 上驱动引擎:单次回放产出收益
// 指标与成交清单,参数扫描把同一份数据跑过整个参数网格并
// 持久化每个组合的结果。
package backtest

import (
	"time"

	"banyan/internal/position"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunStats 一次回放的汇总指标。
type RunStats struct {
	InitialCapital float64        `json:"initial_capital"`
	FinalCapital   float64        `json:"final_capital"`
	NetPnL         float64        `json:"net_pnl"`
	ReturnPct      float64        `json:"return_pct"`
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`
	ProfitFactor   float64        `json:"profit_factor"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	EquityPeak     float64        `json:"equity_peak"`
	EquityValley   float64        `json:"equity_valley"`
	KindCounts     map[string]int `json:"kind_counts"`
	Processed      int64          `json:"processed"`
	Skipped        int64          `json:"skipped"`
	Entries        int64          `json:"entries"`
	Blocked        int64          `json:"blocked"`
	Snapshots      int            `json:"snapshots"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// EquityPoint 资金曲线上的一个采样点。
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Equity   float64   `json:"equity"`
	Drawdown float64   `json:"drawdown"` // 距峰值的回撤比例
}

// Result 单次回放的完整产出。
type Result struct {
	Stats  RunStats         `json:"stats"`
	Trades []position.Trade `json:"trades"`
	Equity []EquityPoint    `json:"equity"`
}

// Run 参数扫描中的一个组合任务。
type Run struct {
	ID          string         `json:"id"`
	Sweep       string         `json:"sweep"`
	Tag         string         `json:"tag"`
	Status      string         `json:"status"`
	Params      map[string]any `json:"params"`
	Stats       RunStats       `json:"stats"`
	Message     string         `json:"message"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
