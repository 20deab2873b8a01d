package monitor

import (
	"sync"
	"time"

	"order-keeper-go/order"
)

type cooldownKey struct {
	instrument string
	direction  order.Direction
}

// CooldownTracker 记录每个席位最近一次成交时间，成交后的冷却窗口
// 内抑制该席位的再次开仓。
type CooldownTracker struct {
	mu       sync.Mutex
	interval time.Duration
	lastFill map[cooldownKey]time.Time
}

func NewCooldownTracker(interval time.Duration) *CooldownTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CooldownTracker{
		interval: interval,
		lastFill: make(map[cooldownKey]time.Time),
	}
}

// MarkFill 登记一笔成交时间。
func (c *CooldownTracker) MarkFill(instrument string, dir order.Direction, at time.Time) {
	c.mu.Lock()
	c.lastFill[cooldownKey{instrument, dir}] = at
	c.mu.Unlock()
}

// InCooldown 该席位是否仍在冷却窗口内。
func (c *CooldownTracker) InCooldown(instrument string, dir order.Direction, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFill[cooldownKey{instrument, dir}]
	if !ok {
		return false
	}
	return now.Sub(last) < c.interval
}

// Reset 清空全部冷却状态，换日清理时调用。
func (c *CooldownTracker) Reset() {
	c.mu.Lock()
	c.lastFill = make(map[cooldownKey]time.Time)
	c.mu.Unlock()
}
