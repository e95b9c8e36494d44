package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"banyan/internal/position"
)

// ResultStore 管理 sweep_runs/sweep_trades/sweep_snapshots 三张表。
// 写入走单连接串行化,读放给 HTTP 层并发。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("result store path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSweepSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSweepSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sweep_runs (
			id TEXT PRIMARY KEY,
			sweep TEXT NOT NULL,
			tag TEXT NOT NULL,
			status TEXT NOT NULL,
			params_json TEXT NOT NULL,
			stats_json TEXT,
			net_pnl REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			max_drawdown_pct REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS sweep_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_uid TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_time INTEGER NOT NULL,
			exit_time INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			gross_pnl REAL NOT NULL,
			net_pnl REAL NOT NULL,
			kind TEXT NOT NULL,
			level INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			FOREIGN KEY(run_id) REFERENCES sweep_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sweep_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			equity REAL NOT NULL,
			drawdown REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES sweep_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_trades_run ON sweep_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_snapshots_run ON sweep_snapshots(run_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 登记一个组合任务。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs
			(id, sweep, tag, status, params_json, net_pnl, return_pct, win_rate,
			 max_drawdown_pct, trades, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, 0, ?, ?, ?)`,
		run.ID, run.Sweep, run.Tag, run.Status, string(paramsJSON), run.Message, now, now)
	return err
}

// UpdateRunSummary 落指标并收尾状态。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sweep_runs
		SET status=?, stats_json=?, net_pnl=?, return_pct=?, win_rate=?, max_drawdown_pct=?,
		    trades=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`,
		status, string(statsJSON), stats.NetPnL, stats.ReturnPct, stats.WinRate,
		stats.MaxDrawdownPct, stats.Trades, message, now, completed, completed, id)
	return err
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sweep_runs
		SET status=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// InsertTrades 批量写入一次回放的成交清单。
func (s *ResultStore) InsertTrades(ctx context.Context, runID string, trades []position.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sweep_trades
			(run_id, trade_uid, symbol, side, entry_time, exit_time, entry_price, exit_price,
			 quantity, gross_pnl, net_pnl, kind, level, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, tr := range trades {
		if _, err := stmt.ExecContext(ctx,
			runID, tr.ID, tr.Symbol, tr.Side.String(),
			tr.EntryTime.UnixMilli(), tr.ExitTime.UnixMilli(),
			tr.EntryPrice, tr.ExitPrice, tr.Quantity, tr.GrossPnL, tr.NetPnL,
			tr.Kind.String(), tr.Level, tr.Reason); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// InsertSnapshots 批量写入资金曲线。
func (s *ResultStore) InsertSnapshots(ctx context.Context, runID string, points []EquityPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sweep_snapshots (run_id, ts, equity, drawdown)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, runID, p.Time.UnixMilli(), p.Equity, p.Drawdown); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRuns 按净盈亏从高到低列出组合,sweep 为空时不过滤。
func (s *ResultStore) ListRuns(ctx context.Context, sweep string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, sweep, tag, status, params_json, stats_json, message,
		       created_at, updated_at, completed_at
		FROM sweep_runs`
	args := []interface{}{}
	if sweep = strings.TrimSpace(sweep); sweep != "" {
		query += ` WHERE sweep=?`
		args = append(args, sweep)
	}
	query += ` ORDER BY net_pnl DESC, created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanSweepRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

// GetRun 读取单个组合。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sweep, tag, status, params_json, stats_json, message,
		       created_at, updated_at, completed_at
		FROM sweep_runs WHERE id=?`, id)
	return scanSweepRun(row)
}

// TradeRow 供查询接口使用的成交行。
type TradeRow struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	TradeUID   string    `json:"trade_uid"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	GrossPnL   float64   `json:"gross_pnl"`
	NetPnL     float64   `json:"net_pnl"`
	Kind       string    `json:"kind"`
	Level      int       `json:"level"`
	Reason     string    `json:"reason"`
}

// ListTrades 按出场时间顺序读取一次回放的成交。
func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]TradeRow, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_uid, symbol, side, entry_time, exit_time, entry_price, exit_price,
		       quantity, gross_pnl, net_pnl, kind, level, reason
		FROM sweep_trades
		WHERE run_id=?
		ORDER BY exit_time ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TradeRow
	for rows.Next() {
		var tr TradeRow
		var entry, exitTS int64
		var reason sql.NullString
		if err := rows.Scan(&tr.ID, &tr.TradeUID, &tr.Symbol, &tr.Side, &entry, &exitTS,
			&tr.EntryPrice, &tr.ExitPrice, &tr.Quantity, &tr.GrossPnL, &tr.NetPnL,
			&tr.Kind, &tr.Level, &reason); err != nil {
			return nil, err
		}
		tr.RunID = runID
		tr.EntryTime = timeFromMillis(entry)
		tr.ExitTime = timeFromMillis(exitTS)
		if reason.Valid {
			tr.Reason = reason.String
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ListSnapshots 按时间顺序读取资金曲线。
func (s *ResultStore) ListSnapshots(ctx context.Context, runID string, limit int) ([]EquityPoint, error) {
	if limit <= 0 || limit > 20000 {
		limit = 5000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, equity, drawdown
		FROM sweep_snapshots
		WHERE run_id=?
		ORDER BY ts ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EquityPoint
	for rows.Next() {
		var ts int64
		var p EquityPoint
		if err := rows.Scan(&ts, &p.Equity, &p.Drawdown); err != nil {
			return nil, err
		}
		p.Time = timeFromMillis(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSweepRun(row scanner) (Run, error) {
	var run Run
	var paramsStr string
	var statsStr, message sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Sweep, &run.Tag, &run.Status, &paramsStr, &statsStr,
		&message, &createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(paramsStr), &run.Params); err != nil {
		return Run{}, err
	}
	if statsStr.Valid && statsStr.String != "" {
		if err := json.Unmarshal([]byte(statsStr.String), &run.Stats); err != nil {
			return Run{}, err
		}
	}
	if message.Valid {
		run.Message = message.String
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
