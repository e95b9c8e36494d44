package binance

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresSymbol(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	src, err := New(Config{Symbol: " nifty "})
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", src.cfg.Symbol)
	assert.Equal(t, 1024, src.cfg.Buffer)
}

func TestConvertAggTrade(t *testing.T) {
	src, err := New(Config{Symbol: "BTCUSDT"})
	require.NoError(t, err)

	tick, ok := src.convertAggTrade(&futures.WsAggTradeEvent{
		Symbol:    "BTCUSDT",
		Price:     "65000.50",
		Quantity:  "0.25",
		TradeTime: 1767340800123,
	})
	require.True(t, ok)
	assert.Equal(t, 65000.50, tick.Price)
	assert.Equal(t, 0.25, tick.Volume)
	assert.Equal(t, time.UnixMilli(1767340800123), tick.Time)
}

func TestConvertAggTradeRejectsBadEvents(t *testing.T) {
	src, err := New(Config{Symbol: "BTCUSDT"})
	require.NoError(t, err)

	_, ok := src.convertAggTrade(nil)
	assert.False(t, ok)

	_, ok = src.convertAggTrade(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "0", TradeTime: 1})
	assert.False(t, ok)

	_, ok = src.convertAggTrade(&futures.WsAggTradeEvent{Symbol: "ETHUSDT", Price: "100", TradeTime: 1})
	assert.False(t, ok)

	assert.Equal(t, int64(2), src.Stats().Skipped)
}

func TestNextDelayBacksOffWithCap(t *testing.T) {
	assert.Equal(t, time.Second, nextDelay(0))
	assert.Equal(t, 2*time.Second, nextDelay(time.Second))
	assert.Equal(t, 16*time.Second, nextDelay(8*time.Second))
	assert.Equal(t, 30*time.Second, nextDelay(16*time.Second))
	assert.Equal(t, 30*time.Second, nextDelay(30*time.Second))
}

func TestSleepWithContextHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Minute))
	assert.True(t, sleepWithContext(context.Background(), time.Millisecond))
}
