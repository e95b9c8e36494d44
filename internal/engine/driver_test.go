package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/market"
	"banyan/internal/position"
)

// manualSource 由测试手工喂 tick,通道不关闭循环就不结束。
type manualSource struct {
	ch chan market.Tick
}

func (m *manualSource) Subscribe(context.Context, market.SubscribeOptions) (<-chan market.Tick, error) {
	return m.ch, nil
}
func (m *manualSource) Stats() market.SourceStats { return market.SourceStats{} }
func (m *manualSource) Close() error              { return nil }

// signalSink 用通道向测试 goroutine 报告开仓,避免跨线程读状态。
type signalSink struct {
	NopSink
	opened chan struct{}
}

func (s *signalSink) OnOpen(*position.Position) {
	select {
	case s.opened <- struct{}{}:
	default:
	}
}

func TestDriverRunFlattensOnSourceEOF(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, sink, nil)
	src := &stubSource{ticks: []market.Tick{
		engineTick(10, 0, 0, 100),
		engineTick(10, 0, 10, 103),
	}}
	d := NewDriver(e, src, market.SubscribeOptions{})

	require.NoError(t, d.Run(context.Background()))

	assert.Nil(t, e.Book().Position())
	require.Len(t, sink.exits, 1)
	assert.Equal(t, position.ExitSessionEnd, sink.exits[0].Kind)
}

func TestDriverCloseManualFromAnotherGoroutine(t *testing.T) {
	sink := &signalSink{opened: make(chan struct{}, 1)}
	e := newTestEngine(t, sink, nil)
	src := &manualSource{ch: make(chan market.Tick, 4)}
	d := NewDriver(e, src, market.SubscribeOptions{})

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(context.Background()) }()

	src.ch <- engineTick(10, 0, 0, 100)
	select {
	case <-sink.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("开仓事件超时")
	}

	tr, err := d.CloseManual(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, position.ExitManual, tr.Kind)
	assert.Nil(t, e.Book().Position())

	// 再次下指令:无持仓,返回 (nil, nil)
	tr, err = d.CloseManual(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tr)

	close(src.ch)
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("循环退出超时")
	}
}

func TestDriverCloseManualAfterStop(t *testing.T) {
	e := newTestEngine(t, NopSink{}, nil)
	src := &stubSource{ticks: []market.Tick{engineTick(10, 0, 0, 100)}}
	d := NewDriver(e, src, market.SubscribeOptions{})
	require.NoError(t, d.Run(context.Background()))

	_, err := d.CloseManual(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestDriverCancelFlattensOpenPosition(t *testing.T) {
	sink := &signalSink{opened: make(chan struct{}, 1)}
	e := newTestEngine(t, sink, nil)
	src := &manualSource{ch: make(chan market.Tick, 1)}
	d := NewDriver(e, src, market.SubscribeOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	src.ch <- engineTick(10, 0, 0, 100)
	select {
	case <-sink.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("开仓事件超时")
	}
	cancel()

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("循环退出超时")
	}
	assert.Nil(t, e.Book().Position())
}
