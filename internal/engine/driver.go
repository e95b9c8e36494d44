package engine

import (
	"context"
	"errors"
	"fmt"

	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/position"
)

// ErrNotRunning 指令到达时事件循环已经退出。
var ErrNotRunning = errors.New("engine loop is not running")

// Driver 把引擎跑在独立 goroutine 上,并把外部指令(手动平仓)
// 排进同一条事件循环。tick 与指令串行执行,仓位簿始终只被一个
// goroutine 触碰,引擎内部因此不需要任何锁。查询类状态走事件
// 流上的快照,不经过这里。
type Driver struct {
	eng  *Engine
	src  market.Source
	opts market.SubscribeOptions

	cmds chan func(*Engine)
	done chan struct{}
}

func NewDriver(eng *Engine, src market.Source, opts market.SubscribeOptions) *Driver {
	return &Driver{
		eng:  eng,
		src:  src,
		opts: opts,
		cmds: make(chan func(*Engine)),
		done: make(chan struct{}),
	}
}

// Run 订阅行情并驱动引擎,直到数据耗尽或 ctx 取消。两种结束
// 路径都会把残留持仓按收盘强平落账。只能调用一次。
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)
	ch, err := d.src.Subscribe(ctx, d.opts)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", d.eng.Symbol(), err)
	}
	logger.Infof("[engine] %s 开始处理行情", d.eng.Symbol())
	for {
		select {
		case t, ok := <-ch:
			if !ok {
				return d.finish()
			}
			if err := d.eng.ProcessTick(t); err != nil {
				return err
			}
		case cmd := <-d.cmds:
			cmd(d.eng)
		case <-ctx.Done():
			if err := d.finish(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

func (d *Driver) finish() error {
	e := d.eng
	if !e.lastGood.Time.IsZero() {
		if err := e.flatten(e.lastGood, position.ExitSessionEnd); err != nil {
			return e.fatal(err)
		}
	}
	logger.Infof("[engine] %s 行情结束: 处理 %d 跳过 %d 入场 %d 离场 %d",
		e.symbol, e.stats.Processed, e.stats.Skipped, e.stats.Entries, e.stats.Exits)
	return nil
}

// CloseManual 请求引擎线程以最近有效价平掉持仓,阻塞直到指令
// 执行完毕。无持仓时返回 (nil, nil);循环未在跑返回 ErrNotRunning。
func (d *Driver) CloseManual(ctx context.Context) (*position.Trade, error) {
	type reply struct {
		trade *position.Trade
		err   error
	}
	replyCh := make(chan reply, 1)
	cmd := func(e *Engine) {
		tr, err := e.CloseManual()
		replyCh <- reply{trade: tr, err: err}
	}
	select {
	case d.cmds <- cmd:
	case <-d.done:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-replyCh:
		return r.trade, r.err
	case <-d.done:
		// 指令可能恰好在循环退出前执行完,先收回执
		select {
		case r := <-replyCh:
			return r.trade, r.err
		default:
		}
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
