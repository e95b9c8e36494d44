package model

import "gorm.io/datatypes"

// TradeModel 一条已落账的平仓腿,同一持仓的多次部分平仓各占
// 一行。时间戳统一存毫秒,day 冗余存出场日便于按日查询。
type TradeModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	TradeUID   string         `gorm:"column:trade_uid;uniqueIndex"`
	PositionID string         `gorm:"column:position_id;index"`
	Symbol     string         `gorm:"column:symbol;index"`
	Side       string         `gorm:"column:side"`
	EntryTime  int64          `gorm:"column:entry_time"`
	ExitTime   int64          `gorm:"column:exit_time;index"`
	EntryPrice float64        `gorm:"column:entry_price"`
	ExitPrice  float64        `gorm:"column:exit_price"`
	Quantity   float64        `gorm:"column:quantity"`
	Lots       float64        `gorm:"column:lots"`
	GrossPnL   float64        `gorm:"column:gross_pnl"`
	NetPnL     float64        `gorm:"column:net_pnl"`
	Costs      datatypes.JSON `gorm:"column:costs;type:TEXT"`
	Kind       int            `gorm:"column:kind"`
	Level      int            `gorm:"column:level"`
	Reason     string         `gorm:"column:reason"`
	DurationMS int64          `gorm:"column:duration_ms"`
	Day        string         `gorm:"column:day;index"`
	CreatedAt  int64          `gorm:"column:created_at"`
}

func (TradeModel) TableName() string { return "trades" }

// EventModel 引擎事件审计流水,只追加。
type EventModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	Kind       string         `gorm:"column:kind;index"`
	PositionID string         `gorm:"column:position_id;index"`
	Symbol     string         `gorm:"column:symbol"`
	Price      float64        `gorm:"column:price"`
	Quantity   float64        `gorm:"column:quantity"`
	Reason     string         `gorm:"column:reason"`
	Payload    datatypes.JSON `gorm:"column:payload;type:TEXT"`
	TickTime   int64          `gorm:"column:tick_time;index"`
	CreatedAt  int64          `gorm:"column:created_at"`
}

func (EventModel) TableName() string { return "events" }

// DailySummaryModel 每交易日收盘后的汇总快照,按日覆盖写。
type DailySummaryModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	Day         string  `gorm:"column:day;uniqueIndex"`
	Symbol      string  `gorm:"column:symbol"`
	Trades      int     `gorm:"column:trades"`
	Wins        int     `gorm:"column:wins"`
	Losses      int     `gorm:"column:losses"`
	WinRate     float64 `gorm:"column:win_rate"`
	GrossProfit float64 `gorm:"column:gross_profit"`
	GrossLoss   float64 `gorm:"column:gross_loss"`
	NetPnL      float64 `gorm:"column:net_pnl"`
	TotalCosts  float64 `gorm:"column:total_costs"`
	EndCapital  float64 `gorm:"column:end_capital"`
	UpdatedAt   int64   `gorm:"column:updated_at"`
}

func (DailySummaryModel) TableName() string { return "daily_summaries" }
