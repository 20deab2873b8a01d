package monitor

import (
	"sync"

	"order-keeper-go/order"
)

// PendingSell 一笔在途卖出的对账登记。
type PendingSell struct {
	OrderID    string
	Instrument string
	Direction  order.Direction
	Quantity   float64
}

// pendingSellBook 在途卖出登记簿：卖出提交时登记、终结（成交/
// 撤销/拒绝）时释放。合并决策读取快照，避免对同一批 lot 重复
// 发出卖出。
type pendingSellBook struct {
	mu      sync.Mutex
	pending map[string]PendingSell
}

func newPendingSellBook() *pendingSellBook {
	return &pendingSellBook{pending: make(map[string]PendingSell)}
}

func (b *pendingSellBook) add(p PendingSell) {
	b.mu.Lock()
	b.pending[p.OrderID] = p
	b.mu.Unlock()
}

// release 释放登记，返回是否存在过。
func (b *pendingSellBook) release(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[orderID]; !ok {
		return false
	}
	delete(b.pending, orderID)
	return true
}

func (b *pendingSellBook) snapshot() []PendingSell {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingSell, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p)
	}
	return out
}

func (b *pendingSellBook) clear() {
	b.mu.Lock()
	b.pending = make(map[string]PendingSell)
	b.mu.Unlock()
}
