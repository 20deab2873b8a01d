package monitor

import "sync"

// HoldRegistry 外部挂起登记：某订单被上游（例如换月切换组件）
// 标记挂起时，相关席位暂停新动作；订单终结后解除。
type HoldRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewHoldRegistry() *HoldRegistry {
	return &HoldRegistry{held: make(map[string]struct{})}
}

func (h *HoldRegistry) Hold(orderID string) {
	h.mu.Lock()
	h.held[orderID] = struct{}{}
	h.mu.Unlock()
}

func (h *HoldRegistry) ClearHold(orderID string) {
	h.mu.Lock()
	delete(h.held, orderID)
	h.mu.Unlock()
}

func (h *HoldRegistry) Held(orderID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.held[orderID]
	return ok
}

func (h *HoldRegistry) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held)
}
