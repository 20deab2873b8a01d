package order

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// mockSnapshotAPI 记录调用次数的快照查询桩。
type mockSnapshotAPI struct {
	history      []RawOrder
	today        []RawOrder
	historyCalls int
	todayCalls   int
	failHistory  bool
	failToday    bool
}

func (m *mockSnapshotAPI) QueryHistoryOrders(ctx context.Context) ([]RawOrder, error) {
	m.historyCalls++
	if m.failHistory {
		return nil, errors.New("mock history error")
	}
	return m.history, nil
}

func (m *mockSnapshotAPI) QueryTodayOrders(ctx context.Context) ([]RawOrder, error) {
	m.todayCalls++
	if m.failToday {
		return nil, errors.New("mock today error")
	}
	return m.today, nil
}

type noopLimiter struct{ waits int }

func (l *noopLimiter) Wait(ctx context.Context) error {
	l.waits++
	return nil
}

func raw(id string, status Status, updatedAt int64) RawOrder {
	return RawOrder{
		OrderID:       id,
		Instrument:    "IF2609",
		Side:          SideBuy,
		Status:        status,
		Price:         100,
		Quantity:      2,
		ExecutedQty:   2,
		SubmittedAtMs: updatedAt - 1000,
		UpdatedAtMs:   updatedAt,
	}
}

func TestMergeOrdersDedup(t *testing.T) {
	history := []RawOrder{raw("o1", StatusFilled, 1000), raw("o2", StatusFilled, 2000)}
	today := []RawOrder{raw("o2", StatusCanceled, 3000), raw("o3", StatusNew, 4000)}

	merged := MergeOrders(history, today)
	if len(merged) != 3 {
		t.Fatalf("merged = %d entries, want 3", len(merged))
	}
	seen := make(map[string]int)
	for _, o := range merged {
		seen[o.OrderID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("order %s appears %d times", id, n)
		}
	}
	// o2 以更新时间更晚的当日源为准
	for _, o := range merged {
		if o.OrderID == "o2" && o.Status != StatusCanceled {
			t.Fatalf("o2 status = %s, want CANCELED from today source", o.Status)
		}
	}
}

// 时间戳相同时当日源优先。
func TestMergeOrdersTodayWinsTie(t *testing.T) {
	h := raw("o1", StatusNew, 1000)
	d := raw("o1", StatusFilled, 1000)
	merged := MergeOrders([]RawOrder{h}, []RawOrder{d})
	if len(merged) != 1 || merged[0].Status != StatusFilled {
		t.Fatalf("merged = %v, want today entry", merged)
	}
}

// 幂等性：merge(merge(A,B), B) == merge(A,B)。
func TestMergeOrdersIdempotent(t *testing.T) {
	a := []RawOrder{raw("o1", StatusFilled, 1000), raw("o2", StatusNew, 5000)}
	b := []RawOrder{raw("o2", StatusFilled, 3000), raw("o3", StatusFilled, 2000)}

	once := MergeOrders(a, b)
	twice := MergeOrders(once, b)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

// 第二次 FetchAllOrders(false) 不应发起任何底层 REST 调用。
func TestFetchAllOrdersUsesCache(t *testing.T) {
	api := &mockSnapshotAPI{
		history: []RawOrder{raw("o1", StatusFilled, 1000)},
		today:   []RawOrder{raw("o2", StatusNew, 2000)},
	}
	lim := &noopLimiter{}
	m := NewAPIManager(api, lim)

	first, err := m.FetchAllOrders(context.Background(), false)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := m.FetchAllOrders(context.Background(), false)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if api.historyCalls != 1 || api.todayCalls != 1 {
		t.Fatalf("rest calls = %d/%d, want 1/1", api.historyCalls, api.todayCalls)
	}
	if lim.waits != 2 {
		t.Fatalf("limiter waits = %d, want 2", lim.waits)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("cached result differs from first fetch")
	}
}

func TestFetchAllOrdersForceRefresh(t *testing.T) {
	api := &mockSnapshotAPI{}
	m := NewAPIManager(api, &noopLimiter{})

	if _, err := m.FetchAllOrders(context.Background(), false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := m.FetchAllOrders(context.Background(), true); err != nil {
		t.Fatalf("force fetch: %v", err)
	}
	if api.historyCalls != 2 || api.todayCalls != 2 {
		t.Fatalf("rest calls = %d/%d, want 2/2", api.historyCalls, api.todayCalls)
	}
}

// 抓取失败原样上抛，不得退化为空列表，也不得污染缓存。
func TestFetchAllOrdersPropagatesFailure(t *testing.T) {
	api := &mockSnapshotAPI{failToday: true}
	m := NewAPIManager(api, &noopLimiter{})

	if _, err := m.FetchAllOrders(context.Background(), false); err == nil {
		t.Fatal("expected fetch error")
	}
	// 失败后缓存仍为空，下一次会重新抓取
	api.failToday = false
	if _, err := m.FetchAllOrders(context.Background(), false); err != nil {
		t.Fatalf("retry fetch: %v", err)
	}
	if api.historyCalls != 2 {
		t.Fatalf("history calls = %d, want 2", api.historyCalls)
	}
}

func TestClearCache(t *testing.T) {
	api := &mockSnapshotAPI{history: []RawOrder{raw("o1", StatusFilled, 1000)}}
	m := NewAPIManager(api, &noopLimiter{})

	if _, err := m.FetchAllOrders(context.Background(), false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	m.CacheOrdersForInstrument("IF2609", api.history)
	m.ClearCache()

	if _, ok := m.OrdersForInstrument("IF2609"); ok {
		t.Fatal("instrument cache survived ClearCache")
	}
	if _, err := m.FetchAllOrders(context.Background(), false); err != nil {
		t.Fatalf("fetch after clear: %v", err)
	}
	if api.historyCalls != 2 {
		t.Fatalf("history calls = %d, want refetch after clear", api.historyCalls)
	}
}
