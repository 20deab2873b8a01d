package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/metrics"
	"order-keeper-go/order"
	"order-keeper-go/tradelog"
)

// OrderEvent 交易所推送的单笔订单状态变更。
type OrderEvent struct {
	OrderID      string
	Instrument   string
	Side         order.Side
	Status       order.Status
	Price        float64 // 委托价
	Quantity     float64 // 委托量
	ExecutedQty  float64 // 累计成交量
	AvgPrice     float64 // 成交均价
	ExecutedAtMs int64   // 成交时间；非成交回报可为 0
}

// TrackedOrder 在途订单的实时跟踪状态。提交或快照恢复时创建，
// 每次回报更新，进入终态后移出跟踪集。
type TrackedOrder struct {
	OrderID             string
	Instrument          string
	Side                order.Side
	SubmittedPrice      float64
	SubmittedQuantity   float64
	ExecutedQuantity    float64
	Status              order.Status
	SubmittedAtMs       int64
	LastPriceUpdateAtMs int64
}

// FillSink 成交入账端（对接 order.Recorder）。
type FillSink interface {
	RecordBuyFill(dir order.Direction, rec order.Record)
	RecordSellFill(dir order.Direction, rec order.Record)
}

// LossTracker 当日亏损跟踪端（对接 risk.DailyLossTracker）。
type LossTracker interface {
	RecordFilledOrder(rec order.Record)
}

// VenueOrderOps 超时处置所需的交易所操作。
type VenueOrderOps interface {
	CancelOrder(ctx context.Context, instrument, orderID string) error
	ReplaceOrderPrice(ctx context.Context, instrument, orderID string, newPrice float64) (string, error)
}

// QuoteSource 最新价查询；缺失时超时处置退化为仅撤单。
type QuoteSource interface {
	LastPrice(instrument string) (float64, bool)
}

// 运行阶段用带标签的二态表达：bootstrapping 持有事件缓冲，
// active 不持有。缓冲事件只能经 RecoverFromSnapshot 回放消化，
// 类型上杜绝“缓冲期直接处理”的路径。
type runtimePhase interface{ phaseName() string }

type bootstrapping struct{ buffer []OrderEvent }

func (*bootstrapping) phaseName() string { return "BOOTSTRAPPING" }

type active struct{}

func (active) phaseName() string { return "ACTIVE" }

// Config 监控器行为参数。
type Config struct {
	OrderMaxAge        time.Duration // 超过该时长未终结的订单触发处置
	ReplaceMinInterval time.Duration // 两次改价之间的最小间隔
	ReplaceSells       bool          // 卖出单超时先尝试追价而非直接撤单
}

func (c *Config) normalize() {
	if c.OrderMaxAge <= 0 {
		c.OrderMaxAge = 60 * time.Second
	}
	if c.ReplaceMinInterval <= 0 {
		c.ReplaceMinInterval = 5 * time.Second
	}
}

// Monitor 订单监控器：订阅推送回报，维护在途订单集，把成交写进
// 台账并联动冷却/当日亏损/新鲜度闸门。两阶段状态机保证恢复期间
// 的推送不会打在未对账的本地状态上。
type Monitor struct {
	cfg      Config
	log      *logger.Logger
	recorder FillSink
	loss     LossTracker
	cooldown *CooldownTracker
	gate     *Gate
	holds    *HoldRegistry
	venue    VenueOrderOps
	quotes   QuoteSource
	resolver order.DirectionResolver
	trades   tradelog.Sink

	mu      sync.Mutex
	phase   runtimePhase
	tracked map[string]*TrackedOrder
	pending *pendingSellBook
}

// Deps 构造所需的协作方，显式注入，不留包级单例。
type Deps struct {
	Logger   *logger.Logger
	Recorder FillSink
	Loss     LossTracker
	Cooldown *CooldownTracker
	Gate     *Gate
	Holds    *HoldRegistry
	Venue    VenueOrderOps
	Quotes   QuoteSource
	Resolver order.DirectionResolver
	Trades   tradelog.Sink
}

func New(cfg Config, deps Deps) *Monitor {
	cfg.normalize()
	return &Monitor{
		cfg:      cfg,
		log:      deps.Logger,
		recorder: deps.Recorder,
		loss:     deps.Loss,
		cooldown: deps.Cooldown,
		gate:     deps.Gate,
		holds:    deps.Holds,
		venue:    deps.Venue,
		quotes:   deps.Quotes,
		resolver: deps.Resolver,
		trades:   deps.Trades,
		phase:    &bootstrapping{},
		tracked:  make(map[string]*TrackedOrder),
		pending:  newPendingSellBook(),
	}
}

// Phase 当前阶段名（诊断用）。
func (m *Monitor) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase.phaseName()
}

// EnterBootstrap 重新进入缓冲阶段：换日清理时调用。
// 在途跟踪与缓冲一并清空，等待快照恢复重建。
func (m *Monitor) EnterBootstrap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = &bootstrapping{}
	m.tracked = make(map[string]*TrackedOrder)
	m.pending.clear()
	metrics.TrackedOrders.Set(0)
	metrics.BufferedEvents.Set(0)
}

// HandleOrderChanged 推送回报入口。缓冲阶段仅按到达顺序暂存；
// 激活阶段直接应用。
func (m *Monitor) HandleOrderChanged(ev OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.phase.(*bootstrapping); ok {
		b.buffer = append(b.buffer, ev)
		metrics.BufferedEvents.Set(float64(len(b.buffer)))
		return
	}
	m.applyEventLocked(ev)
}

// RecoverFromSnapshot 用权威快照重建在途跟踪集，然后按到达顺序
// 回放缓冲事件并清空缓冲，最后切换到激活阶段。只有这条路径可以
// 凭快照创建跟踪条目。
func (m *Monitor) RecoverFromSnapshot(allOrders []order.RawOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracked = make(map[string]*TrackedOrder)
	for _, raw := range allOrders {
		if raw.Status.Terminal() {
			continue
		}
		m.tracked[raw.OrderID] = &TrackedOrder{
			OrderID:           raw.OrderID,
			Instrument:        raw.Instrument,
			Side:              raw.Side,
			SubmittedPrice:    raw.Price,
			SubmittedQuantity: raw.Quantity,
			ExecutedQuantity:  raw.ExecutedQty,
			Status:            raw.Status,
			SubmittedAtMs:     raw.SubmittedAtMs,
		}
		if raw.Side == order.SideSell {
			dir, ok := m.resolveDirection(raw.Instrument)
			if ok {
				m.pending.add(PendingSell{
					OrderID:    raw.OrderID,
					Instrument: raw.Instrument,
					Direction:  dir,
					Quantity:   raw.Quantity - raw.ExecutedQty,
				})
			}
		}
	}

	if b, ok := m.phase.(*bootstrapping); ok {
		for _, ev := range b.buffer {
			m.applyEventLocked(ev)
		}
	}
	m.phase = active{}
	metrics.BufferedEvents.Set(0)
	metrics.TrackedOrders.Set(float64(len(m.tracked)))
}

// TrackSubmitted 下单成功后登记跟踪；卖出单同时进入在途卖出
// 登记簿。
func (m *Monitor) TrackSubmitted(to TrackedOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := to
	m.tracked[to.OrderID] = &copied
	if to.Side == order.SideSell {
		if dir, ok := m.resolveDirection(to.Instrument); ok {
			m.pending.add(PendingSell{
				OrderID:    to.OrderID,
				Instrument: to.Instrument,
				Direction:  dir,
				Quantity:   to.SubmittedQuantity,
			})
		}
	}
	metrics.TrackedOrders.Set(float64(len(m.tracked)))
}

// Tracked 返回指定订单的跟踪状态（拷贝）。
func (m *Monitor) Tracked(orderID string) (TrackedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.tracked[orderID]
	if !ok {
		return TrackedOrder{}, false
	}
	return *to, true
}

// TrackedCount 在途跟踪订单数。
func (m *Monitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// PendingSellSnapshot 在途卖出快照，供合并决策读取。
func (m *Monitor) PendingSellSnapshot() []PendingSell {
	return m.pending.snapshot()
}

func (m *Monitor) resolveDirection(instrument string) (order.Direction, bool) {
	if m.resolver == nil {
		return "", false
	}
	return m.resolver.ResolveDirection(instrument)
}

func validFill(price, qty float64, atMs int64) bool {
	if atMs <= 0 {
		return false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false
	}
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return false
	}
	return true
}

// applyEventLocked 应用一条回报；调用前必须持有 m.mu。
func (m *Monitor) applyEventLocked(ev OrderEvent) {
	to, ok := m.tracked[ev.OrderID]
	if !ok {
		// 未跟踪的订单号视为已终结/不在管辖范围：只解除外部
		// 挂起，绝不凭一条孤立回报建立跟踪。
		if m.holds != nil {
			m.holds.ClearHold(ev.OrderID)
		}
		return
	}

	switch ev.Status {
	case order.StatusPartial:
		// 部分成交累计量单调递增，继续跟踪
		if ev.ExecutedQty > to.ExecutedQuantity {
			to.ExecutedQuantity = ev.ExecutedQty
		}
		to.Status = order.StatusPartial

	case order.StatusFilled:
		delete(m.tracked, ev.OrderID)
		metrics.TrackedOrders.Set(float64(len(m.tracked)))
		m.pending.release(ev.OrderID)

		price := ev.AvgPrice
		if price <= 0 {
			price = ev.Price
		}
		qty := ev.ExecutedQty
		if qty <= 0 {
			qty = to.SubmittedQuantity
		}
		if !validFill(price, qty, ev.ExecutedAtMs) {
			// 宁缺毋滥：脏成交不入台账，仅移出跟踪
			if m.log != nil {
				m.log.LogError(errMalformedFill, map[string]interface{}{
					"orderId":    ev.OrderID,
					"instrument": ev.Instrument,
					"price":      price,
					"quantity":   qty,
					"executedAt": ev.ExecutedAtMs,
				})
			}
			return
		}

		dir, resolved := m.resolveDirection(ev.Instrument)
		rec := order.Record{
			OrderID:      ev.OrderID,
			Instrument:   ev.Instrument,
			Side:         ev.Side,
			Price:        price,
			Quantity:     qty,
			ExecutedAtMs: ev.ExecutedAtMs,
		}
		if resolved && m.recorder != nil {
			if ev.Side == order.SideBuy {
				m.recorder.RecordBuyFill(dir, rec)
			} else {
				m.recorder.RecordSellFill(dir, rec)
			}
		}
		if m.loss != nil {
			m.loss.RecordFilledOrder(rec)
		}
		if m.cooldown != nil {
			m.cooldown.MarkFill(ev.Instrument, dir, time.UnixMilli(ev.ExecutedAtMs))
		}
		if m.trades != nil {
			entry := tradelog.Entry{
				TradedAt:   time.UnixMilli(ev.ExecutedAtMs),
				OrderID:    ev.OrderID,
				Instrument: ev.Instrument,
				Direction:  string(dir),
				Side:       string(ev.Side),
				Price:      price,
				Quantity:   qty,
			}
			if err := m.trades.Append(entry); err != nil && m.log != nil {
				m.log.LogError(err, map[string]interface{}{"orderId": ev.OrderID})
			}
		}
		if m.gate != nil {
			// 成交改变账户/持仓，标脏等待异步刷新
			m.gate.MarkStale()
		}
		metrics.RecordFill(string(ev.Side))
		if m.log != nil {
			m.log.LogOrder("filled", ev.OrderID, map[string]interface{}{
				"instrument": ev.Instrument,
				"side":       string(ev.Side),
				"price":      price,
				"quantity":   qty,
			})
		}

	case order.StatusCanceled, order.StatusRejected:
		delete(m.tracked, ev.OrderID)
		metrics.TrackedOrders.Set(float64(len(m.tracked)))
		m.pending.release(ev.OrderID)
		if m.holds != nil {
			m.holds.ClearHold(ev.OrderID)
		}

	default:
		to.Status = ev.Status
	}
}

// CheckTimeouts 在途订单老化处置：超龄卖出单在配置允许时先追价，
// 否则撤单。跟踪条目保留到终态回报到达为止。
func (m *Monitor) CheckTimeouts(ctx context.Context, now time.Time) {
	if m.venue == nil {
		return
	}
	nowMs := now.UnixMilli()

	m.mu.Lock()
	var toCancel []*TrackedOrder
	var toReplace []*TrackedOrder
	for _, to := range m.tracked {
		if nowMs-to.SubmittedAtMs < m.cfg.OrderMaxAge.Milliseconds() {
			continue
		}
		if m.cfg.ReplaceSells && to.Side == order.SideSell && m.quotes != nil &&
			nowMs-to.LastPriceUpdateAtMs >= m.cfg.ReplaceMinInterval.Milliseconds() {
			toReplace = append(toReplace, to)
		} else {
			toCancel = append(toCancel, to)
		}
	}
	m.mu.Unlock()

	for _, to := range toReplace {
		last, ok := m.quotes.LastPrice(to.Instrument)
		if !ok || last <= 0 || last == to.SubmittedPrice {
			toCancel = append(toCancel, to)
			continue
		}
		newID, err := m.venue.ReplaceOrderPrice(ctx, to.Instrument, to.OrderID, last)
		if err != nil {
			if m.log != nil {
				m.log.LogError(err, map[string]interface{}{"orderId": to.OrderID, "action": "replace"})
			}
			continue
		}
		m.mu.Lock()
		if cur, exists := m.tracked[to.OrderID]; exists {
			delete(m.tracked, to.OrderID)
			replaced := *cur
			replaced.OrderID = newID
			replaced.SubmittedPrice = last
			replaced.LastPriceUpdateAtMs = nowMs
			m.tracked[newID] = &replaced
			if m.pending.release(to.OrderID) {
				dir, _ := m.resolveDirection(replaced.Instrument)
				m.pending.add(PendingSell{
					OrderID:    newID,
					Instrument: replaced.Instrument,
					Direction:  dir,
					Quantity:   replaced.SubmittedQuantity - replaced.ExecutedQuantity,
				})
			}
		}
		m.mu.Unlock()
	}

	for _, to := range toCancel {
		if err := m.venue.CancelOrder(ctx, to.Instrument, to.OrderID); err != nil && m.log != nil {
			m.log.LogError(err, map[string]interface{}{"orderId": to.OrderID, "action": "cancel"})
		}
	}
}
