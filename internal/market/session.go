package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeBlock 表示一段盘中禁止开仓的时间窗，分钟粒度，[Start, End) 自午夜起算。
type TimeBlock struct {
	Start int
	End   int
}

// ParseTimeBlock 解析 "HH:MM-HH:MM" 形式的禁入窗口。
func ParseTimeBlock(s string) (TimeBlock, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return TimeBlock{}, fmt.Errorf("time block must be HH:MM-HH:MM, got %q", s)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return TimeBlock{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return TimeBlock{}, err
	}
	if end <= start {
		return TimeBlock{}, fmt.Errorf("time block end must be after start: %q", s)
	}
	return TimeBlock{Start: start, End: end}, nil
}

func (b TimeBlock) Contains(minute int) bool {
	return minute >= b.Start && minute < b.End
}

func (b TimeBlock) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", b.Start/60, b.Start%60, b.End/60, b.End%60)
}

// ParseClock 解析 "HH:MM" 为自午夜起的分钟数；"24:00" 表示日终。
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock must be HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock hour invalid in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock minute invalid in %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock out of range: %q", s)
	}
	return h*60 + m, nil
}

// SessionSpec 是交易时段的原始配置；NewSession 负责解析与校验。
type SessionSpec struct {
	Timezone            string
	Start               string
	End                 string
	OpenBufferMinutes   int
	CloseBufferMinutes  int
	CloseAheadMinutes   int
	NoTradeOpenMinutes  int
	NoTradeCloseMinutes int
	Blocks              []string
}

// Session 把时段配置编译为基于 tick 时间戳的判定集合。
// 所有判断只依赖传入的时间，不读墙钟，回放与实盘行为一致。
type Session struct {
	loc        *time.Location
	startMin   int
	endMin     int
	openBuf    int
	closeBuf   int
	closeAhead int
	headMin    int
	tailMin    int
	blocks     []TimeBlock
}

func NewSession(spec SessionSpec) (*Session, error) {
	tz := strings.TrimSpace(spec.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session.timezone invalid: %w", err)
	}
	start, err := ParseClock(spec.Start)
	if err != nil {
		return nil, fmt.Errorf("session.start: %w", err)
	}
	end, err := ParseClock(spec.End)
	if err != nil {
		return nil, fmt.Errorf("session.end: %w", err)
	}
	if start == end {
		return nil, fmt.Errorf("session.start and session.end must differ")
	}
	if spec.OpenBufferMinutes < 0 || spec.CloseBufferMinutes < 0 || spec.CloseAheadMinutes < 0 ||
		spec.NoTradeOpenMinutes < 0 || spec.NoTradeCloseMinutes < 0 {
		return nil, fmt.Errorf("session buffer minutes must be >= 0")
	}
	blocks := make([]TimeBlock, 0, len(spec.Blocks))
	for _, raw := range spec.Blocks {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		b, err := ParseTimeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("session.blocks: %w", err)
		}
		blocks = append(blocks, b)
	}
	return &Session{
		loc:        loc,
		startMin:   start,
		endMin:     end,
		openBuf:    spec.OpenBufferMinutes,
		closeBuf:   spec.CloseBufferMinutes,
		closeAhead: spec.CloseAheadMinutes,
		headMin:    spec.NoTradeOpenMinutes,
		tailMin:    spec.NoTradeCloseMinutes,
		blocks:     blocks,
	}, nil
}

func (s *Session) Location() *time.Location { return s.loc }

// DayKey 返回 tick 在交易时区下的日期键，用于按日重置计数。
func (s *Session) DayKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

func (s *Session) minuteOf(t time.Time) int {
	lt := t.In(s.loc)
	return lt.Hour()*60 + lt.Minute()
}

func (s *Session) wraps() bool { return s.startMin > s.endMin }

func (s *Session) contains(minute int) bool {
	if s.wraps() {
		return minute >= s.startMin || minute < s.endMin
	}
	return minute >= s.startMin && minute < s.endMin
}

func (s *Session) sinceOpen(minute int) int {
	if s.wraps() && minute < s.startMin {
		return minute + 24*60 - s.startMin
	}
	return minute - s.startMin
}

func (s *Session) untilClose(minute int) int {
	if s.wraps() && minute >= s.startMin {
		return s.endMin + 24*60 - minute
	}
	return s.endMin - minute
}

// Contains 判断 tick 时间是否落在交易时段内（支持跨午夜时段）。
func (s *Session) Contains(t time.Time) bool {
	return s.contains(s.minuteOf(t))
}

// InOpenBuffer 判断是否处于开盘缓冲期（时段内且距开盘不足 openBuf 分钟）。
func (s *Session) InOpenBuffer(t time.Time) bool {
	m := s.minuteOf(t)
	return s.contains(m) && s.sinceOpen(m) < s.openBuf
}

// InCloseBuffer 判断是否处于收盘缓冲期。
func (s *Session) InCloseBuffer(t time.Time) bool {
	m := s.minuteOf(t)
	return s.contains(m) && s.untilClose(m) <= s.closeBuf
}

func (s *Session) InNoTradeHead(t time.Time) bool {
	if s.headMin <= 0 {
		return false
	}
	m := s.minuteOf(t)
	return s.contains(m) && s.sinceOpen(m) < s.headMin
}

func (s *Session) InNoTradeTail(t time.Time) bool {
	if s.tailMin <= 0 {
		return false
	}
	m := s.minuteOf(t)
	return s.contains(m) && s.untilClose(m) <= s.tailMin
}

// BlockAt 返回覆盖该时间的显式禁入窗口。
func (s *Session) BlockAt(t time.Time) (TimeBlock, bool) {
	m := s.minuteOf(t)
	for _, b := range s.blocks {
		if b.Contains(m) {
			return b, true
		}
	}
	return TimeBlock{}, false
}

// CloseDue 判断是否到达强制平仓时刻：距收盘不足 closeAhead 分钟，或已越过收盘。
func (s *Session) CloseDue(t time.Time) bool {
	m := s.minuteOf(t)
	if s.contains(m) {
		return s.untilClose(m) <= s.closeAhead
	}
	if s.wraps() {
		return true
	}
	return m >= s.endMin
}
