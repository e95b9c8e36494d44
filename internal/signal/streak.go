package signal

// StreakConfig 连续绿 tick 计数的噪声过滤参数。
// 开启过滤后,单 tick 涨跌幅要超过
// max(tickSize × NoiseMinTicks, prevPrice × NoisePct)
// 才算有效运动,阈值内的抖动既不加数也不清零。
type StreakConfig struct {
	TickSize      float64
	NoiseFilter   bool
	NoisePct      float64 // 小数,0.0001 即 0.01%
	NoiseMinTicks float64
}

// Streak 连续向上 tick 计数器,入场确认的原始材料。
type Streak struct {
	cfg     StreakConfig
	prev    float64
	hasPrev bool
	count   int
}

func NewStreak(cfg StreakConfig) *Streak {
	return &Streak{cfg: cfg}
}

// Observe 用最新价推进计数并返回当前连续数。
func (s *Streak) Observe(price float64) int {
	if !s.hasPrev {
		s.prev = price
		s.hasPrev = true
		s.count = 0
		return 0
	}
	if s.cfg.NoiseFilter {
		minMove := s.cfg.TickSize * s.cfg.NoiseMinTicks
		if pct := s.prev * s.cfg.NoisePct; pct > minMove {
			minMove = pct
		}
		switch {
		case price > s.prev+minMove:
			s.count++
		case price < s.prev-minMove:
			s.count = 0
			// 阈值内维持原计数
		}
	} else {
		if price > s.prev {
			s.count++
		} else {
			s.count = 0
		}
	}
	s.prev = price
	return s.count
}

// Count 当前连续绿 tick 数。
func (s *Streak) Count() int { return s.count }

// Reset 清空计数与参考价,用于跨日或重启。
func (s *Streak) Reset() {
	s.prev = 0
	s.hasPrev = false
	s.count = 0
}
