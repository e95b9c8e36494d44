package app

import (
	"fmt"
	"time"

	"banyan/internal/config"
	"banyan/internal/gateway/binance"
	"banyan/internal/gateway/wsfeed"
	"banyan/internal/market"
)

// buildFeed 按 feed.mode 构建行情源。replay 把历史 CSV 按调速
// 推给实时引擎,binance/ws 是带自动重连的长连接源。
func buildFeed(cfg *config.Config, loc *time.Location) (market.Source, error) {
	switch cfg.Feed.Mode {
	case "replay":
		return market.NewReplaySource(cfg.ReplayConfig(loc))
	case "binance":
		return binance.New(binance.Config{
			Symbol: cfg.Feed.Binance.Symbol,
		})
	case "ws":
		return wsfeed.New(wsfeed.Config{
			URL:              cfg.Feed.WS.URL,
			AuthHeader:       cfg.Feed.WS.AuthHeader,
			AuthToken:        cfg.Feed.WS.AuthToken,
			SubscribeMessage: cfg.Feed.WS.SubscribeMessage,
			PingInterval:     time.Duration(cfg.Feed.WS.PingSeconds) * time.Second,
			Location:         loc,
		})
	default:
		return nil, fmt.Errorf("未知行情源类型: %s", cfg.Feed.Mode)
	}
}
