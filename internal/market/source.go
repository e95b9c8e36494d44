package market

import "context"

// SubscribeOptions 控制订阅行为；连接状态回调在源的工作协程中触发。
type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats 汇总一个行情源的运行计数。
type SourceStats struct {
	Ticks      int64  `json:"ticks"`
	Skipped    int64  `json:"skipped"`
	Reconnects int    `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

// Source 产出单一品种按时间非递减排列的 tick 序列。
// 回放源在数据耗尽时关闭通道；实时源仅在 ctx 取消后关闭。
type Source interface {
	Subscribe(ctx context.Context, opts SubscribeOptions) (<-chan Tick, error)

	Stats() SourceStats

	Close() error
}
