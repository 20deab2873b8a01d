package monitor

import (
	"context"
	"sync"
)

// Gate 版本号同步原语：写方在弄脏下游缓存（账户/持仓/浮亏）后
// MarkStale，刷新协程完成后 MarkFresh(version)；读方 WaitForFresh
// 阻塞到已刷新版本追平自己观察到的脏版本，保证读不到早于最近
// 一笔成交的缓存数据。
type Gate struct {
	mu    sync.Mutex
	stale uint64
	fresh uint64
	ch    chan struct{}
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// MarkStale 递增脏版本并返回之，刷新方需以该版本回报 MarkFresh。
func (g *Gate) MarkStale() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stale++
	return g.stale
}

// StaleVersion 当前脏版本。
func (g *Gate) StaleVersion() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stale
}

// MarkFresh 声明缓存已刷新到 version；唤醒所有等待者。
func (g *Gate) MarkFresh(version uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if version <= g.fresh {
		return
	}
	g.fresh = version
	close(g.ch)
	g.ch = make(chan struct{})
}

// Dirty 是否存在尚未刷新的脏版本。
func (g *Gate) Dirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fresh < g.stale
}

// WaitForFresh 阻塞直到已刷新版本 >= 进入时观察到的脏版本。
func (g *Gate) WaitForFresh(ctx context.Context) error {
	g.mu.Lock()
	target := g.stale
	g.mu.Unlock()

	for {
		g.mu.Lock()
		if g.fresh >= target {
			g.mu.Unlock()
			return nil
		}
		ch := g.ch
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
