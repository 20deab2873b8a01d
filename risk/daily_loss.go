package risk

import (
	"sync"
	"time"

	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/metrics"
	"order-keeper-go/order"
)

// DayKey 交易所本地时区下的交易日标识。
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// seatState 单个席位的当日 lot 集合与已实现盈亏补偿。
type seatState struct {
	buys   []order.Record
	sells  []order.Record
	offset float64
}

// DailyLossTracker 按席位维护当日成交 lot 并派生已实现盈亏补偿：
//
//	offset = 卖出所得 − 买入成本 + 开仓买入成本
//
// 开仓买入成本由过滤引擎对当日 lot 计算。offset 供下游“当日亏损
// 是否越限”检查消费。跨日成交由 day-key 隔离，绝不漏进错误的
// 交易日。
type DailyLossTracker struct {
	ownership *Ownership
	loc       *time.Location
	log       *logger.Logger

	mu        sync.Mutex
	dayKey    string
	seats     map[string]*seatState
	limits    map[string]float64 // 热更新的限额覆盖，优先于席位配置
	unmatched int
	samples   []string
}

const unmatchedSampleCap = 8

func NewDailyLossTracker(ownership *Ownership, loc *time.Location, log *logger.Logger) *DailyLossTracker {
	if loc == nil {
		loc = time.Local
	}
	return &DailyLossTracker{
		ownership: ownership,
		loc:       loc,
		log:       log,
		seats:     make(map[string]*seatState),
		limits:    make(map[string]float64),
	}
}

// ResetAll 清空全部席位状态并设置当前 day-key。
// 必须在接受新一天任何 RecordFilledOrder 之前调用。
func (t *DailyLossTracker) ResetAll(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayKey = DayKey(now, t.loc)
	t.seats = make(map[string]*seatState)
	t.unmatched = 0
	t.samples = nil
}

// DayKey 当前交易日标识。
func (t *DailyLossTracker) DayKey() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dayKey
}

// RecordFilledOrder 实时成交增量更新；成交的 day-key 与当前不符
// 时整笔丢弃。
func (t *DailyLossTracker) RecordFilledOrder(rec order.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dayKey == "" || DayKey(time.UnixMilli(rec.ExecutedAtMs), t.loc) != t.dayKey {
		return
	}
	t.recordLocked(rec)
}

// RecalculateFromAllOrders 全量重建：过滤快照中当日已成交订单，
// 逐笔解析归属席位后重算全部补偿。换日重建时调用。
func (t *DailyLossTracker) RecalculateFromAllOrders(allOrders []order.RawOrder, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayKey = DayKey(now, t.loc)
	t.seats = make(map[string]*seatState)
	t.unmatched = 0
	t.samples = nil

	for _, raw := range allOrders {
		if raw.Status != order.StatusFilled {
			continue
		}
		rec := raw.ToRecord()
		if DayKey(time.UnixMilli(rec.ExecutedAtMs), t.loc) != t.dayKey {
			continue
		}
		t.recordLocked(rec)
	}
	t.logUnmatchedLocked()
}

// recordLocked 归属解析 + 入组 + 重算；调用前必须持有 t.mu。
func (t *DailyLossTracker) recordLocked(rec order.Record) {
	spec, ok := t.ownership.Resolve(rec.Instrument)
	if !ok {
		// 归属匹配是尽力而为：计数抽样，不让单笔脏数据拖垮重建
		t.unmatched++
		if len(t.samples) < unmatchedSampleCap {
			t.samples = append(t.samples, rec.Instrument)
		}
		metrics.OwnershipMisses.Inc()
		return
	}
	seat := t.seats[spec.Name]
	if seat == nil {
		seat = &seatState{}
		t.seats[spec.Name] = seat
	}
	switch rec.Side {
	case order.SideBuy:
		seat.buys = append(seat.buys, rec)
	case order.SideSell:
		seat.sells = append(seat.sells, rec)
	default:
		return
	}
	seat.offset = computeOffset(seat.buys, seat.sells)
}

// computeOffset 已实现盈亏补偿：卖出所得 − 买入成本 + 开仓买入成本。
func computeOffset(buys, sells []order.Record) float64 {
	sellProceeds := order.SumCost(sells)
	buyCost := order.SumCost(buys)
	openCost := order.SumCost(order.OpenBuyLots(buys, sells))
	return sellProceeds - buyCost + openCost
}

// LossOffset 指定席位的当日盈亏补偿；负值表示已实现亏损。
func (t *DailyLossTracker) LossOffset(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seat := t.seats[name]
	if seat == nil {
		return 0
	}
	return seat.offset
}

// SetDailyLossLimit 热更新席位限额，覆盖启动配置。limit <= 0 取消限额。
func (t *DailyLossTracker) SetDailyLossLimit(name string, limit float64) {
	t.mu.Lock()
	t.limits[name] = limit
	t.mu.Unlock()
}

// Exceeded 指定席位当日亏损是否已越过限额。热更新覆盖优先于
// 启动时的席位配置。
func (t *DailyLossTracker) Exceeded(name string) bool {
	t.mu.Lock()
	limit, overridden := t.limits[name]
	t.mu.Unlock()
	if !overridden {
		for _, m := range t.ownership.Monitors() {
			if m.Name == name {
				limit = m.DailyLossLimit
				break
			}
		}
	}
	if limit <= 0 {
		return false
	}
	return t.LossOffset(name) < -limit
}

// UnmatchedCount 诊断：本日归属解析失败笔数。
func (t *DailyLossTracker) UnmatchedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unmatched
}

func (t *DailyLossTracker) logUnmatchedLocked() {
	if t.unmatched == 0 || t.log == nil {
		return
	}
	t.log.LogRisk("ownership_miss", map[string]interface{}{
		"count":   t.unmatched,
		"samples": t.samples,
		"dayKey":  t.dayKey,
	})
}
