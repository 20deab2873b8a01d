package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// SnapshotAPI 交易所订单快照查询能力；与 gateway.RESTClient 对接。
type SnapshotAPI interface {
	QueryHistoryOrders(ctx context.Context) ([]RawOrder, error)
	QueryTodayOrders(ctx context.Context) ([]RawOrder, error)
}

// Limiter 查询前的限流等待；与 gateway.TokenBucketLimiter 对接。
type Limiter interface {
	Wait(ctx context.Context) error
}

// APIManager 把“历史单”与“当日单”两路 REST 查询合并去重成一份
// 权威快照并缓存，直到显式失效。抓取失败原样上抛——调用方
// （换日重建）必须能区分“今天没有订单”和“抓取失败”。
type APIManager struct {
	api     SnapshotAPI
	limiter Limiter

	mu           sync.RWMutex
	merged       []RawOrder
	hasMerged    bool
	byInstrument map[string][]RawOrder
}

func NewAPIManager(api SnapshotAPI, limiter Limiter) *APIManager {
	return &APIManager{
		api:          api,
		limiter:      limiter,
		byInstrument: make(map[string][]RawOrder),
	}
}

// FetchAllOrders 返回合并后的权威订单列表。
// 已有缓存且未要求强刷时不会发起任何 REST 调用。
func (m *APIManager) FetchAllOrders(ctx context.Context, forceRefresh bool) ([]RawOrder, error) {
	if !forceRefresh {
		m.mu.RLock()
		if m.hasMerged {
			cached := append([]RawOrder(nil), m.merged...)
			m.mu.RUnlock()
			return cached, nil
		}
		m.mu.RUnlock()
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("limiter wait before history query: %w", err)
	}
	history, err := m.api.QueryHistoryOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history orders: %w", err)
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("limiter wait before today query: %w", err)
	}
	today, err := m.api.QueryTodayOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("query today orders: %w", err)
	}

	merged := MergeOrders(history, today)
	m.mu.Lock()
	m.merged = merged
	m.hasMerged = true
	m.mu.Unlock()
	return append([]RawOrder(nil), merged...), nil
}

// CacheOrdersForInstrument 由 Recorder 直接塞入按合约切片的缓存
// （算完开仓集合后复用），避免重复抓取。
func (m *APIManager) CacheOrdersForInstrument(instrument string, orders []RawOrder) {
	m.mu.Lock()
	m.byInstrument[instrument] = append([]RawOrder(nil), orders...)
	m.mu.Unlock()
}

// OrdersForInstrument 返回按合约切片的缓存（拷贝）。
func (m *APIManager) OrdersForInstrument(instrument string) ([]RawOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cached, ok := m.byInstrument[instrument]
	if !ok {
		return nil, false
	}
	return append([]RawOrder(nil), cached...), true
}

// ClearCache 同时失效全量合并缓存与按合约切片缓存，换日边界调用。
func (m *APIManager) ClearCache() {
	m.mu.Lock()
	m.merged = nil
	m.hasMerged = false
	m.byInstrument = make(map[string][]RawOrder)
	m.mu.Unlock()
}

// MergeOrders 按订单号合并两路快照。同号订单保留更新时间更晚的
// 一条；时间相同时当日源优先（当日活动以当日查询为权威）。
// 结果按（更新时间，订单号）排序，保证确定性；对相同输入幂等。
func MergeOrders(history, today []RawOrder) []RawOrder {
	byID := make(map[string]RawOrder, len(history)+len(today))
	for _, o := range history {
		if existing, ok := byID[o.OrderID]; !ok || o.UpdatedAtMs > existing.UpdatedAtMs {
			byID[o.OrderID] = o
		}
	}
	for _, o := range today {
		if existing, ok := byID[o.OrderID]; !ok || o.UpdatedAtMs >= existing.UpdatedAtMs {
			byID[o.OrderID] = o
		}
	}

	merged := make([]RawOrder, 0, len(byID))
	for _, o := range byID {
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].UpdatedAtMs != merged[j].UpdatedAtMs {
			return merged[i].UpdatedAtMs < merged[j].UpdatedAtMs
		}
		return merged[i].OrderID < merged[j].OrderID
	})
	return merged
}
