package market

import (
	"fmt"
	"time"
)

// Tick 是单个品种的一次带时间戳的价格/成交量观测。
// Time 必须携带明确的时区偏移；引擎内所有“过期”判断都基于 Tick 时间而非墙钟。
type Tick struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// DataError 标记一条被拒收的行情数据：引擎记录原因后跳过该 tick，运行继续。
type DataError struct {
	Reason string
	Tick   Tick
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad tick at %s: %s", e.Tick.Time.Format(time.RFC3339), e.Reason)
}

// Validate 校验 tick 是否可被引擎接受。last 为上一条已接受 tick 的时间，
// 零值表示尚无历史。时间戳回退或非正价格返回 *DataError。
func (t Tick) Validate(last time.Time) error {
	if t.Time.IsZero() {
		return &DataError{Reason: "zero timestamp", Tick: t}
	}
	if !last.IsZero() && t.Time.Before(last) {
		return &DataError{
			Reason: fmt.Sprintf("timestamp went backwards (last=%s)", last.Format(time.RFC3339)),
			Tick:   t,
		}
	}
	if t.Price <= 0 {
		return &DataError{Reason: fmt.Sprintf("non-positive price %.4f", t.Price), Tick: t}
	}
	return nil
}
