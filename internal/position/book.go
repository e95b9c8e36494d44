package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"banyan/internal/logger"
)

var (
	// ErrPositionOpen 同一品种同一时刻只允许一笔持仓。
	ErrPositionOpen = errors.New("a position is already open")
	// ErrBadQuantity 开仓数量必须为正。
	ErrBadQuantity = errors.New("quantity must be positive")
	// ErrInsufficientCapital 可用资金不足以覆盖成交额加费用。
	ErrInsufficientCapital = errors.New("insufficient capital")
)

// Trade 一次已完成的(部分或全部)平仓记录。
type Trade struct {
	ID         string        `json:"id"`
	PositionID string        `json:"position_id"`
	Symbol     string        `json:"symbol"`
	Side       Side          `json:"side"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Quantity   float64       `json:"quantity"`
	Lots       float64       `json:"lots"`
	GrossPnL   float64       `json:"gross_pnl"`
	Costs      CostBreakdown `json:"costs"`
	NetPnL     float64       `json:"net_pnl"`
	Kind       ExitKind      `json:"kind"`
	Level      int           `json:"level,omitempty"`
	Reason     string        `json:"reason"`
	Duration   time.Duration `json:"duration"`
}

// BookConfig 持仓簿参数。止损距离由调用方逐笔传入
// (回归机制会逐周期调整),不在此固化。
type BookConfig struct {
	Capital         float64
	SlippagePoints  float64
	MarginPct       float64 // 名义金额的占用比例,(0,1],0 视为 1
	LotSize         int
	TickSize        float64
	Ladder          []TPLevel
	TrailEnabled    bool
	TrailActivation float64
	TrailDistance   float64
	Costs           CostConfig
}

// Book 单品种持仓簿:负责开仓、平仓、资金与成交流水,
// 并强制执行单持仓与不可超平两条硬约束。非并发安全,
// 由单线程的引擎循环独占驱动。
type Book struct {
	cfg      BookConfig
	capital  float64
	reserved float64
	open     *Position
	trades   []Trade
}

func NewBook(cfg BookConfig) *Book {
	if cfg.MarginPct <= 0 || cfg.MarginPct > 1 {
		cfg.MarginPct = 1
	}
	return &Book{cfg: cfg, capital: cfg.Capital}
}

// SizedQuantity 按当前可用资金计算整手对齐的开仓数量:
// lots = floor(capital / (lot_size × price × margin_pct))。
func (b *Book) SizedQuantity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	lot := b.cfg.LotSize
	if lot < 1 {
		lot = 1
	}
	lots := int(b.capital / (float64(lot) * price * b.cfg.MarginPct))
	if lots < 0 {
		lots = 0
	}
	return float64(lots * lot)
}

// Open 开立新持仓。市价成交按方向加滑点,止损价与各止盈档
// 价位以滑点后的实际入场价为基准。入场边费用连同成交额一并
// 从可用资金中扣除并计入占用保证金。
func (b *Book) Open(symbol string, side Side, qty, price float64, ts time.Time, stopPoints float64) (*Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %.2f", ErrBadQuantity, qty)
	}
	if b.open != nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionOpen, b.open.ID)
	}
	sign := side.Sign()
	actual := price + b.cfg.SlippagePoints*sign
	costs := b.cfg.Costs.Breakdown(actual, qty, side == SideLong)
	required := costs.Turnover*b.cfg.MarginPct + costs.Total
	if required > b.capital {
		return nil, fmt.Errorf("%w: required %.2f, available %.2f", ErrInsufficientCapital, required, b.capital)
	}

	levels := make([]float64, len(b.cfg.Ladder))
	for i, l := range b.cfg.Ladder {
		levels[i] = actual + l.Points*sign
	}
	p := &Position{
		ID:              uuid.New().String()[:8],
		Symbol:          symbol,
		Side:            side,
		EntryTime:       ts,
		EntryPrice:      actual,
		InitialQty:      qty,
		Remaining:       qty,
		LotSize:         b.cfg.LotSize,
		TickSize:        b.cfg.TickSize,
		StopPoints:      stopPoints,
		StopPrice:       actual - stopPoints*sign,
		Levels:          levels,
		Ladder:          append([]TPLevel(nil), b.cfg.Ladder...),
		Consumed:        make([]bool, len(b.cfg.Ladder)),
		TrailEnabled:    b.cfg.TrailEnabled,
		TrailActivation: b.cfg.TrailActivation,
		TrailDistance:   b.cfg.TrailDistance,
		HighWater:       actual,
		EntryCosts:      costs,
		Reserved:        required,
	}
	b.capital -= required
	b.reserved += required
	b.open = p
	logger.Infof("[book] 开仓 %s %s qty=%.0f entry=%.2f stop=%.2f id=%s",
		symbol, side, qty, actual, p.StopPrice, p.ID)
	return p, nil
}

// ApplyExit 将离场事件落账。超平、在无持仓时平仓或持仓号
// 不匹配都是状态矛盾,返回 *InvariantViolation,调用方必须
// 停机而不是继续。
func (b *Book) ApplyExit(ev ExitEvent) (*Trade, error) {
	p := b.open
	if p == nil {
		return nil, &InvariantViolation{Op: "apply exit", Detail: "no open position"}
	}
	if ev.PositionID != p.ID {
		return nil, &InvariantViolation{Op: "apply exit",
			Detail: fmt.Sprintf("position id mismatch: event %s, open %s", ev.PositionID, p.ID)}
	}
	if ev.Quantity <= 0 {
		return nil, &InvariantViolation{Op: "apply exit",
			Detail: fmt.Sprintf("non-positive quantity %.2f", ev.Quantity)}
	}
	if ev.Quantity > p.Remaining {
		return nil, &InvariantViolation{Op: "apply exit",
			Detail: fmt.Sprintf("quantity %.2f exceeds remaining %.2f", ev.Quantity, p.Remaining)}
	}

	costs := b.cfg.Costs.Breakdown(ev.Price, ev.Quantity, p.Side == SideShort)
	gross := (ev.Price - p.EntryPrice) * ev.Quantity * p.Side.Sign()
	net := gross - costs.Total
	b.capital += p.EntryPrice*ev.Quantity*b.cfg.MarginPct + net
	p.Remaining -= ev.Quantity
	p.Realized += net
	p.ExitCosts = p.ExitCosts.Add(costs)
	if ev.Kind == ExitTakeProfit && ev.Level >= 1 && ev.Level <= len(p.Consumed) {
		p.Consumed[ev.Level-1] = true
	}

	lots := ev.Quantity
	if p.LotSize > 1 {
		lots = ev.Quantity / float64(p.LotSize)
	}
	tr := Trade{
		ID:         uuid.New().String()[:8],
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryTime:  p.EntryTime,
		ExitTime:   ev.Time,
		EntryPrice: p.EntryPrice,
		ExitPrice:  ev.Price,
		Quantity:   ev.Quantity,
		Lots:       lots,
		GrossPnL:   gross,
		Costs:      costs,
		NetPnL:     net,
		Kind:       ev.Kind,
		Level:      ev.Level,
		Reason:     ev.Reason(),
		Duration:   ev.Time.Sub(p.EntryTime),
	}
	b.trades = append(b.trades, tr)

	if p.Remaining == 0 {
		b.reserved -= p.Reserved
		b.open = nil
		logger.Infof("[book] 全部平仓 %s qty=%.0f @ %.2f pnl=%.2f (%s)",
			p.ID, ev.Quantity, ev.Price, net, tr.Reason)
	} else {
		logger.Infof("[book] 部分平仓 %s qty=%.0f @ %.2f pnl=%.2f 剩余=%.0f (%s)",
			p.ID, ev.Quantity, ev.Price, net, p.Remaining, tr.Reason)
	}
	return &tr, nil
}

// ForceClose 以给定价格平掉全部剩余持仓,用于收盘强平或
// 外部指令。无持仓时返回 (nil, nil)。
func (b *Book) ForceClose(price float64, ts time.Time, kind ExitKind) (*Trade, error) {
	p := b.open
	if p == nil {
		return nil, nil
	}
	return b.ApplyExit(ExitEvent{
		PositionID: p.ID,
		Kind:       kind,
		Price:      price,
		Quantity:   p.Remaining,
		Time:       ts,
	})
}

// Position 返回当前持仓,无持仓时为 nil。
func (b *Book) Position() *Position { return b.open }

// Capital 当前可用资金。
func (b *Book) Capital() float64 { return b.capital }

// Reserved 当前占用保证金。
func (b *Book) Reserved() float64 { return b.reserved }

// Equity 按现价估算的权益:可用资金加占用保证金与浮动盈亏。
func (b *Book) Equity(price float64) float64 {
	if b.open == nil {
		return b.capital
	}
	return b.capital + b.open.EntryPrice*b.open.Remaining*b.cfg.MarginPct + b.open.UnrealizedAt(price)
}

// Trades 返回全部成交流水的副本。
func (b *Book) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}
