package notifier

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/position"
)

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	tg := NewTelegram("tok123", "chat456")
	tg.BaseURL = server.URL
	require.NoError(t, tg.SendText("hello"))

	assert.Equal(t, "chat456", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestTelegramRejectsIncompleteConfig(t *testing.T) {
	tg := NewTelegram("", "")
	require.Error(t, tg.SendText("hello"))
}

func TestTelegramTruncatesLongMessage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	tg := NewTelegram("tok", "chat")
	tg.BaseURL = server.URL
	require.NoError(t, tg.SendText(strings.Repeat("x", 5000)))

	sent, ok := got["text"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(sent), telegramMaxLen+3)
	assert.True(t, strings.HasSuffix(sent, "..."))
}

func notifierTrade() (position.ExitEvent, position.Trade) {
	ts := time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)
	ev := position.ExitEvent{
		PositionID: "ab12cd34",
		Kind:       position.ExitTakeProfit,
		Level:      1,
		Price:      104.50,
		Quantity:   975,
		Time:       ts,
	}
	tr := position.Trade{
		PositionID: "ab12cd34",
		Symbol:     "NIFTY",
		Side:       position.SideLong,
		ExitTime:   ts,
		ExitPrice:  104.50,
		Quantity:   975,
		NetPnL:     3997.5,
		Kind:       position.ExitTakeProfit,
		Level:      1,
		Reason:     "Take Profit 1",
		Duration:   90 * time.Second,
	}
	return ev, tr
}

func TestExitMessageRendering(t *testing.T) {
	ev, tr := notifierTrade()
	body := ExitMessage(ev, tr).RenderMarkdown()

	assert.Contains(t, body, "✅")
	assert.Contains(t, body, "Take Profit 1")
	assert.Contains(t, body, "+3997.50")
	assert.Contains(t, body, "1m30s")
	assert.Contains(t, body, "时间：2026-03-02 10:00:30 UTC")

	tr.NetPnL = -4972.5
	assert.Contains(t, ExitMessage(ev, tr).RenderMarkdown(), "🛑")
}

func TestOpenMessageRendering(t *testing.T) {
	p := &position.Position{
		Symbol:     "NIFTY",
		Side:       position.SideLong,
		EntryTime:  time.Date(2026, 3, 2, 10, 0, 4, 0, time.UTC),
		EntryPrice: 100.40,
		InitialQty: 975,
		LotSize:    25,
		StopPoints: 5,
		StopPrice:  95.40,
	}
	body := OpenMessage(p).RenderMarkdown()
	assert.Contains(t, body, "NIFTY long")
	assert.Contains(t, body, "975 (39 手)")
	assert.Contains(t, body, "95.40")
}

func TestRenderMarkdownSanitizesAndTrims(t *testing.T) {
	m := StructuredMessage{Title: "t", Lines: []string{"a ``` b", "  ", "c"}}
	body := m.RenderMarkdown()
	assert.Contains(t, body, "a ''' b")
	assert.NotContains(t, body, "a ``` b")

	long := StructuredMessage{Title: strings.Repeat("x", 5000)}
	assert.LessOrEqual(t, len(long.RenderMarkdown()), maxMessageLen+3)
}

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureNotifier) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureNotifier) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestSinkDeliversAsync(t *testing.T) {
	capture := &captureNotifier{}
	sink := NewSink(capture)

	ev, tr := notifierTrade()
	sink.OnExit(ev, tr)
	sink.OnOpen(nil) // 静默忽略
	sink.Close()

	texts := capture.snapshot()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Take Profit 1")
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	sink := NewSink(nil)
	sink.Close()
	sink.Close()
}

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *failingNotifier) SendText(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return fmt.Errorf("boom")
}

func (f *failingNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// 连续失败触发熔断后,后续消息直接丢弃,不再打到下游。
func TestSinkStopsSendingAfterBreakerOpens(t *testing.T) {
	failing := &failingNotifier{}
	sink := NewSink(failing)

	for i := 0; i < 8; i++ {
		sink.enqueue("x")
	}
	sink.Close()

	assert.Equal(t, 5, failing.count())
}
