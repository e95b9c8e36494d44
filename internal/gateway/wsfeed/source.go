// Package wsfeed 通用 websocket 行情源:对接任意按 JSON 推送
// 逐笔价格的服务端。字段名不固定,按候选键列表探测,与 CSV
// 回放的列名嗅探同一思路。断线用抖动退避重连,读超时由
// ping/pong 心跳看护。
package wsfeed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/tidwall/gjson"

	"banyan/internal/logger"
	"banyan/internal/market"
)

var (
	priceKeys  = []string{"price", "ltp", "last_price", "close", "p"}
	timeKeys   = []string{"timestamp", "time", "datetime", "ts", "t"}
	volumeKeys = []string{"volume", "quantity", "qty", "v", "q"}
)

type Config struct {
	URL              string
	AuthHeader       string
	AuthToken        string
	SubscribeMessage string
	PingInterval     time.Duration
	Buffer           int
	DefaultVolume    float64
	Location         *time.Location
}

func (c *Config) withDefaults() Config {
	out := *c
	out.URL = strings.TrimSpace(out.URL)
	if out.PingInterval <= 0 {
		out.PingInterval = 20 * time.Second
	}
	if out.Buffer <= 0 {
		out.Buffer = 1024
	}
	if out.DefaultVolume <= 0 {
		out.DefaultVolume = 1000
	}
	if out.Location == nil {
		out.Location = time.UTC
	}
	return out
}

// Source 实现 market.Source。
type Source struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.URL == "" {
		return nil, fmt.Errorf("ws feed requires a url")
	}
	return &Source{cfg: final}, nil
}

func (s *Source) Subscribe(ctx context.Context, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = s.cfg.Buffer
	}
	out := make(chan market.Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runLoop(subCtx, out, opts)
	}()
	return out, nil
}

func (s *Source) runLoop(ctx context.Context, out chan<- market.Tick, opts market.SubscribeOptions) {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runConnection(ctx, out, opts)
		if ctx.Err() != nil {
			return
		}
		s.recordReconnect(err)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		delay := retry.Duration()
		logger.Warnf("[wsfeed] 连接断开: %v, %.0fs 后重连", err, delay.Seconds())
		if !sleepWithContext(ctx, delay) {
			return
		}
	}
}

// runConnection 建立一次连接并读取直到出错。返回断开原因。
func (s *Source) runConnection(ctx context.Context, out chan<- market.Tick, opts market.SubscribeOptions) error {
	header := http.Header{}
	if s.cfg.AuthHeader != "" && s.cfg.AuthToken != "" {
		header.Set(s.cfg.AuthHeader, s.cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	if msg := strings.TrimSpace(s.cfg.SubscribeMessage); msg != "" {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return fmt.Errorf("send subscribe frame: %w", err)
		}
	}

	logger.Infof("[wsfeed] 已连接 %s", s.cfg.URL)
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	// 读超时给两个心跳周期,pong 一到就续期
	readTimeout := 2 * s.cfg.PingInterval
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// 心跳协程兼做看门狗:ctx 取消时关掉连接,让阻塞的
	// ReadMessage 立即返回
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		t, ok := s.parseTick(data)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- t:
			s.recordTick()
		default:
			s.recordSkip()
			logger.Warnf("[wsfeed] 通道已满,丢弃 tick @ %.2f", t.Price)
		}
	}
}

// parseTick 从 JSON 帧提取价格/时间/成交量。没有价格字段的帧
// (心跳、订阅确认)静默忽略;有价格但不合法的帧计入跳过。
func (s *Source) parseTick(data []byte) (market.Tick, bool) {
	var price gjson.Result
	for _, key := range priceKeys {
		if r := gjson.GetBytes(data, key); r.Exists() {
			price = r
			break
		}
	}
	if !price.Exists() {
		return market.Tick{}, false
	}
	p := price.Float()
	if p <= 0 {
		s.recordSkip()
		return market.Tick{}, false
	}

	var ts time.Time
	for _, key := range timeKeys {
		r := gjson.GetBytes(data, key)
		if !r.Exists() {
			continue
		}
		parsed, err := market.ParseTickTime(r.String(), s.cfg.Location)
		if err != nil {
			continue
		}
		ts = parsed
		break
	}
	if ts.IsZero() {
		s.recordSkip()
		return market.Tick{}, false
	}

	volume := s.cfg.DefaultVolume
	for _, key := range volumeKeys {
		if r := gjson.GetBytes(data, key); r.Exists() && r.Float() > 0 {
			volume = r.Float()
			break
		}
	}
	return market.Tick{Time: ts, Price: p, Volume: volume}, true
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
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

func (s *Source) recordTick() {
	s.statsMu.Lock()
	s.stats.Ticks++
	s.statsMu.Unlock()
}

func (s *Source) recordSkip() {
	s.statsMu.Lock()
	s.stats.Skipped++
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}
