package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-keeper-go/order"
)

var cst = time.FixedZone("CST", 8*3600)

func testOwnership() *Ownership {
	return NewOwnership([]MonitorSpec{
		{Name: "if-long", InstrumentPattern: "IF*", Direction: order.DirectionLong, DailyLossLimit: 500},
		{Name: "ic-short", InstrumentPattern: "IC2609", Direction: order.DirectionShort},
	})
}

func fill(id string, side order.Side, price, qty float64, at time.Time) order.Record {
	return order.Record{
		OrderID:      id,
		Instrument:   "IF2609",
		Side:         side,
		Price:        price,
		Quantity:     qty,
		ExecutedAtMs: at.UnixMilli(),
	}
}

func TestOwnershipMatching(t *testing.T) {
	o := testOwnership()

	spec, ok := o.Resolve("IF2609")
	require.True(t, ok)
	assert.Equal(t, "if-long", spec.Name)

	// 大小写不敏感
	spec, ok = o.Resolve("if2612")
	require.True(t, ok)
	assert.Equal(t, "if-long", spec.Name)

	// 精确匹配
	spec, ok = o.Resolve("IC2609")
	require.True(t, ok)
	assert.Equal(t, "ic-short", spec.Name)
	_, ok = o.Resolve("IC2612")
	assert.False(t, ok)

	_, ok = o.Resolve("AU2610")
	assert.False(t, ok)

	dir, ok := o.ResolveDirection("IF2609")
	require.True(t, ok)
	assert.Equal(t, order.DirectionLong, dir)
}

func TestRecordFilledOrderOffsets(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, cst)
	tr.ResetAll(now)

	tr.RecordFilledOrder(fill("b1", order.SideBuy, 10, 100, now))
	tr.RecordFilledOrder(fill("b2", order.SideBuy, 12, 100, now.Add(time.Minute)))
	tr.RecordFilledOrder(fill("s1", order.SideSell, 11, 100, now.Add(2*time.Minute)))

	// 卖出所得 1100 − 买入成本 2200 + 开仓成本 1200（12×100 存活）= 100
	assert.InDelta(t, 100, tr.LossOffset("if-long"), 1e-9)
	assert.False(t, tr.Exceeded("if-long"))
}

// 跨日成交不得影响任何席位的补偿。
func TestRecordFilledOrderDayIsolation(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, cst)
	tr.ResetAll(now)

	yesterday := now.AddDate(0, 0, -1)
	tr.RecordFilledOrder(fill("b1", order.SideBuy, 10, 100, yesterday))
	tomorrow := now.AddDate(0, 0, 1)
	tr.RecordFilledOrder(fill("s1", order.SideSell, 20, 100, tomorrow))

	assert.Zero(t, tr.LossOffset("if-long"))
}

// ResetAll 之前（day-key 为空）任何成交都不被接受。
func TestRecordBeforeResetIgnored(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	tr.RecordFilledOrder(fill("b1", order.SideBuy, 10, 100, time.Now()))
	assert.Zero(t, tr.LossOffset("if-long"))
}

func TestRecalculateFromAllOrders(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, cst)

	mkRaw := func(id string, side order.Side, price, qty float64, at time.Time, status order.Status) order.RawOrder {
		return order.RawOrder{
			OrderID:     id,
			Instrument:  "IF2609",
			Side:        side,
			Status:      status,
			Price:       price,
			Quantity:    qty,
			ExecutedQty: qty,
			AvgPrice:    price,
			UpdatedAtMs: at.UnixMilli(),
		}
	}
	all := []order.RawOrder{
		mkRaw("b1", order.SideBuy, 10, 100, now.Add(-2*time.Hour), order.StatusFilled),
		mkRaw("s1", order.SideSell, 9, 100, now.Add(-time.Hour), order.StatusFilled),
		mkRaw("old", order.SideBuy, 50, 100, now.AddDate(0, 0, -3), order.StatusFilled), // 非当日
		mkRaw("open", order.SideBuy, 10, 100, now, order.StatusNew),                     // 未成交
	}
	other := mkRaw("x1", order.SideBuy, 10, 10, now, order.StatusFilled)
	other.Instrument = "AU2610" // 无归属
	all = append(all, other)

	tr.RecalculateFromAllOrders(all, now)

	// 全部买入被卖出冲销（100 >= 100）：900 − 1000 + 0 = −100
	assert.InDelta(t, -100, tr.LossOffset("if-long"), 1e-9)
	assert.Equal(t, 1, tr.UnmatchedCount())
	assert.Equal(t, "2026-03-02", tr.DayKey())
}

func TestExceeded(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, cst)
	tr.ResetAll(now)

	// 买 20×100、卖 14×100：补偿 = 1400 − 2000 + 0 = −600 < −500
	tr.RecordFilledOrder(fill("b1", order.SideBuy, 20, 100, now))
	tr.RecordFilledOrder(fill("s1", order.SideSell, 14, 100, now.Add(time.Minute)))

	assert.True(t, tr.Exceeded("if-long"))
	// 未配置限额的席位永不越限
	assert.False(t, tr.Exceeded("ic-short"))

	tr.ResetAll(now.AddDate(0, 0, 1))
	assert.Zero(t, tr.LossOffset("if-long"))
	assert.False(t, tr.Exceeded("if-long"))
}

// 热更新限额覆盖启动配置，置 0 取消限额。
func TestSetDailyLossLimitOverride(t *testing.T) {
	tr := NewDailyLossTracker(testOwnership(), cst, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, cst)
	tr.ResetAll(now)

	tr.RecordFilledOrder(fill("b1", order.SideBuy, 20, 100, now))
	tr.RecordFilledOrder(fill("s1", order.SideSell, 18, 100, now.Add(time.Minute)))
	// 补偿 −200，未越过启动配置的 500
	require.False(t, tr.Exceeded("if-long"))

	tr.SetDailyLossLimit("if-long", 100)
	assert.True(t, tr.Exceeded("if-long"))
	tr.SetDailyLossLimit("if-long", 0)
	assert.False(t, tr.Exceeded("if-long"))
}
