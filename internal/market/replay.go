package market

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"banyan/internal/logger"
)

// 可被识别的 CSV 列名，全部按小写匹配。
var (
	replayPriceColumns  = []string{"price", "close", "ltp", "last_price", "last"}
	replayTimeColumns   = []string{"timestamp", "time", "datetime", "date"}
	replayVolumeColumns = []string{"volume", "vol", "qty", "quantity"}
)

const defaultReplayVolume = 1000

// ReplayConfig 描述 CSV 回放源。Speed=0 表示全速推进，1 表示按原始节奏，
// N 表示 N 倍速。无时区的时间戳按 Location 解释。
type ReplayConfig struct {
	Path          string
	Speed         float64
	Location      *time.Location
	DefaultVolume float64
	ProgressEvery int
}

// ReplaySource 从 CSV 文件回放 tick，行耗尽后关闭通道。
type ReplaySource struct {
	cfg       ReplayConfig
	totalRows int

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   SourceStats
}

func NewReplaySource(cfg ReplayConfig) (*ReplaySource, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("replay path cannot be empty")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = defaultReplayVolume
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 50000
	}
	total, err := countDataRows(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open replay file failed: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("replay file has no data rows: %s", cfg.Path)
	}
	return &ReplaySource{cfg: cfg, totalRows: total}, nil
}

func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	rows := 0
	for sc.Scan() {
		rows++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if rows > 0 {
		rows-- // header
	}
	return rows, nil
}

func (s *ReplaySource) Subscribe(ctx context.Context, opts SubscribeOptions) (<-chan Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		err := s.run(subCtx, out)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
	}()
	return out, nil
}

func (s *ReplaySource) run(ctx context.Context, out chan<- Tick) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		s.recordError(err)
		return err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, 256*1024))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		s.recordError(err)
		return fmt.Errorf("read replay header failed: %w", err)
	}
	priceIdx, timeIdx, volIdx, err := resolveReplayColumns(header)
	if err != nil {
		s.recordError(err)
		return err
	}

	logger.Infof("[replay] %s: %d 行待回放 (speed=%.1f)", s.cfg.Path, s.totalRows, s.cfg.Speed)

	emitted := 0
	var prevTime time.Time
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.markSkipped()
			logger.Warnf("[replay] 跳过无法解析的行: %v", err)
			continue
		}
		tick, ok := s.parseRow(row, priceIdx, timeIdx, volIdx)
		if !ok {
			s.markSkipped()
			continue
		}
		if s.cfg.Speed > 0 && !prevTime.IsZero() && tick.Time.After(prevTime) {
			wait := time.Duration(float64(tick.Time.Sub(prevTime)) / s.cfg.Speed)
			if !sleepWithContext(ctx, wait) {
				return ctx.Err()
			}
		}
		prevTime = tick.Time

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- tick:
		}
		emitted++
		s.markTick()
		if emitted%s.cfg.ProgressEvery == 0 {
			logger.Infof("[replay] 进度 %d/%d (%.1f%%)", emitted, s.totalRows,
				float64(emitted)/float64(s.totalRows)*100)
		}
	}
	logger.Infof("[replay] 完成：推送 %d 行，跳过 %d 行", emitted, s.Stats().Skipped)
	return nil
}

func (s *ReplaySource) parseRow(row []string, priceIdx, timeIdx, volIdx int) (Tick, bool) {
	if priceIdx >= len(row) || timeIdx >= len(row) {
		return Tick{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(row[priceIdx]), 64)
	if err != nil {
		return Tick{}, false
	}
	ts, err := parseReplayTime(row[timeIdx], s.cfg.Location)
	if err != nil {
		return Tick{}, false
	}
	volume := s.cfg.DefaultVolume
	if volIdx >= 0 && volIdx < len(row) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[volIdx]), 64); err == nil && v > 0 {
			volume = v
		}
	}
	return Tick{Time: ts, Price: price, Volume: volume}, true
}

func resolveReplayColumns(header []string) (priceIdx, timeIdx, volIdx int, err error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	priceIdx = findColumn(index, replayPriceColumns)
	timeIdx = findColumn(index, replayTimeColumns)
	volIdx = findColumn(index, replayVolumeColumns)
	if priceIdx < 0 {
		return 0, 0, 0, fmt.Errorf("replay csv missing price column (tried %v)", replayPriceColumns)
	}
	if timeIdx < 0 {
		return 0, 0, 0, fmt.Errorf("replay csv missing timestamp column (tried %v)", replayTimeColumns)
	}
	return priceIdx, timeIdx, volIdx, nil
}

func findColumn(index map[string]int, candidates []string) int {
	for _, name := range candidates {
		if idx, ok := index[name]; ok {
			return idx
		}
	}
	return -1
}

var naiveTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseTickTime 解析行情时间戳:RFC3339、常见无时区写法(按 loc)
// 或秒/毫秒级 epoch。回放与实时推送共用同一套格式。
func ParseTickTime(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return parseReplayTime(raw, loc)
}

func parseReplayTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range naiveTimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		switch {
		case n >= 1e12:
			return time.UnixMilli(n).In(loc), nil
		case n >= 1e9:
			return time.Unix(n, 0).In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (s *ReplaySource) Stats() SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *ReplaySource) markTick() {
	s.statsMu.Lock()
	s.stats.Ticks++
	s.statsMu.Unlock()
}

func (s *ReplaySource) markSkipped() {
	s.statsMu.Lock()
	s.stats.Skipped++
	s.statsMu.Unlock()
}

func (s *ReplaySource) recordError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
