// Package journal 基于 gorm + SQLite 的成交与事件流水。引擎在
// 处理线程上同步写入,HTTP 层并发读取,重启后历史可回看。
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"banyan/internal/position"
	storemodel "banyan/internal/store/model"
)

// Store 交易流水库。
type Store struct {
	db *gorm.DB
}

// Open 打开(或创建)流水库并完成建表迁移。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.TradeModel{},
		&storemodel.EventModel{},
		&storemodel.DailySummaryModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL:给 HTTP 并发读留一点余量,同时压低锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertTrade 落一条平仓腿。trade_uid 冲突时整行覆盖,重放
// 同一记录是幂等的。
func (s *Store) UpsertTrade(ctx context.Context, tr position.Trade) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("journal 未初始化")
	}
	costs, _ := json.Marshal(tr.Costs)
	m := storemodel.TradeModel{
		TradeUID:   tr.ID,
		PositionID: tr.PositionID,
		Symbol:     strings.ToUpper(strings.TrimSpace(tr.Symbol)),
		Side:       tr.Side.String(),
		EntryTime:  tr.EntryTime.UnixMilli(),
		ExitTime:   tr.ExitTime.UnixMilli(),
		EntryPrice: tr.EntryPrice,
		ExitPrice:  tr.ExitPrice,
		Quantity:   tr.Quantity,
		Lots:       tr.Lots,
		GrossPnL:   tr.GrossPnL,
		NetPnL:     tr.NetPnL,
		Costs:      datatypes.JSON(costs),
		Kind:       int(tr.Kind),
		Level:      tr.Level,
		Reason:     tr.Reason,
		DurationMS: tr.Duration.Milliseconds(),
		Day:        tr.ExitTime.Format("2006-01-02"),
		CreatedAt:  time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trade_uid"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// TradeQuery 流水查询条件,零值字段不参与过滤。
type TradeQuery struct {
	Day    string
	Symbol string
	Limit  int
	Offset int
}

// ListTrades 按出场时间倒序翻页。
func (s *Store) ListTrades(ctx context.Context, q TradeQuery) ([]storemodel.TradeModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal 未初始化")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	query := s.db.WithContext(ctx).Model(&storemodel.TradeModel{})
	if day := strings.TrimSpace(q.Day); day != "" {
		query = query.Where("day = ?", day)
	}
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var out []storemodel.TradeModel
	if err := query.
		Order("exit_time DESC, id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CountTrades 与 ListTrades 同条件的总数。
func (s *Store) CountTrades(ctx context.Context, day, symbol string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("journal 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&storemodel.TradeModel{})
	if day = strings.TrimSpace(day); day != "" {
		query = query.Where("day = ?", day)
	}
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// Event 一条待写入的审计事件。
type Event struct {
	Kind       string
	PositionID string
	Symbol     string
	Price      float64
	Quantity   float64
	Reason     string
	Payload    any
	TickTime   time.Time
}

// AppendEvent 追加审计事件,payload 序列化失败不阻断写入。
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("journal 未初始化")
	}
	var payload datatypes.JSON
	if ev.Payload != nil {
		if raw, err := json.Marshal(ev.Payload); err == nil {
			payload = datatypes.JSON(raw)
		}
	}
	m := storemodel.EventModel{
		Kind:       strings.TrimSpace(ev.Kind),
		PositionID: ev.PositionID,
		Symbol:     strings.ToUpper(strings.TrimSpace(ev.Symbol)),
		Price:      ev.Price,
		Quantity:   ev.Quantity,
		Reason:     ev.Reason,
		Payload:    payload,
		TickTime:   ev.TickTime.UnixMilli(),
		CreatedAt:  time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListEvents 按 tick 时间倒序取最近事件,kind 为空时不过滤。
func (s *Store) ListEvents(ctx context.Context, kind string, limit int) ([]storemodel.EventModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal 未初始化")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := s.db.WithContext(ctx).Model(&storemodel.EventModel{})
	if kind = strings.TrimSpace(kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var out []storemodel.EventModel
	if err := query.
		Order("tick_time DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertDailySummary 收盘后覆盖写当日汇总。
func (s *Store) UpsertDailySummary(ctx context.Context, day, symbol string, sum position.Summary, endCapital float64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("journal 未初始化")
	}
	if strings.TrimSpace(day) == "" {
		return fmt.Errorf("journal: day 必填")
	}
	m := storemodel.DailySummaryModel{
		Day:         strings.TrimSpace(day),
		Symbol:      strings.ToUpper(strings.TrimSpace(symbol)),
		Trades:      sum.Trades,
		Wins:        sum.Wins,
		Losses:      sum.Losses,
		WinRate:     sum.WinRate,
		GrossProfit: sum.GrossProfit,
		GrossLoss:   sum.GrossLoss,
		NetPnL:      sum.NetPnL,
		TotalCosts:  sum.TotalCosts,
		EndCapital:  endCapital,
		UpdatedAt:   time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// ListDailySummaries 最近若干个交易日的汇总,按日期倒序。
func (s *Store) ListDailySummaries(ctx context.Context, limit int) ([]storemodel.DailySummaryModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal 未初始化")
	}
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var out []storemodel.DailySummaryModel
	if err := s.db.WithContext(ctx).
		Order("day DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
