package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/metrics"
	"order-keeper-go/risk"
)

// CacheDomain 可被日切清理/开盘重建的缓存域
type CacheDomain interface {
	Name() string
	MidnightClear(ctx context.Context) error
	OpenRebuild(ctx context.Context) error
}

// State 日切状态机状态
type State string

const (
	StateActive            State = "ACTIVE"
	StateMidnightCleaning  State = "MIDNIGHT_CLEANING"
	StateMidnightCleaned   State = "MIDNIGHT_CLEANED"
	StateOpenRebuilding    State = "OPEN_REBUILDING"
	StateOpenRebuildFailed State = "OPEN_REBUILD_FAILED"
)

// RuntimeFlags 每个 tick 由外部调度器提供的运行时标志
type RuntimeFlags struct {
	IsTradingDay bool // 今天是交易日
	CanTradeNow  bool // 当前处于可交易时段
}

// Config 重试退避参数
type Config struct {
	RetryBase      time.Duration // 首次失败后的重试间隔
	RetryCapFactor int           // 间隔倍数上限
}

func (c *Config) normalize() {
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.RetryCapFactor <= 0 {
		c.RetryCapFactor = 64
	}
}

// Manager 日切生命周期管理器。
// 检测到 day-key 变化后关闭交易闸门，按注册顺序执行各缓存域的
// 日切清理；开盘条件满足后按逆序重建，全部成功才重新放开闸门。
type Manager struct {
	mu      sync.Mutex
	domains []CacheDomain

	state          State
	dayKey         string // 最近一次清理成功对应的 day-key
	pendingDayKey  string // 清理尚未成功时的目标 day-key
	pendingRebuild bool
	tradingEnabled bool

	failures    int
	nextRetryAt time.Time

	loc *time.Location
	cfg Config
	log *logger.Logger
}

// NewManager 创建日切管理器。启动时视为"已清理待重建"，
// 交易闸门保持关闭，直到首次开盘重建成功。
func NewManager(loc *time.Location, cfg Config, log *logger.Logger, now time.Time) *Manager {
	cfg.normalize()
	m := &Manager{
		state:          StateMidnightCleaned,
		dayKey:         risk.DayKey(now, loc),
		pendingRebuild: true,
		loc:            loc,
		cfg:            cfg,
		log:            log,
	}
	metrics.SetTradingEnabled(false)
	return m
}

// Register 注册缓存域，顺序即日切清理顺序（重建为逆序）。
func (m *Manager) Register(domain CacheDomain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains = append(m.domains, domain)
}

// State 当前状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DayKey 最近一次清理成功对应的 day-key
func (m *Manager) DayKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayKey
}

// TradingEnabled 交易闸门状态
func (m *Manager) TradingEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradingEnabled
}

// Tick 唯一入口，由外部调度器按固定短间隔调用。
func (m *Manager) Tick(ctx context.Context, now time.Time, flags RuntimeFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newKey := risk.DayKey(now, m.loc)
	if newKey != m.dayKey {
		if m.state != StateMidnightCleaning {
			m.state = StateMidnightCleaning
			m.failures = 0
			m.nextRetryAt = time.Time{}
			m.setTradingLocked(false)
			m.logEvent("midnight_clear_start", map[string]interface{}{
				"old_day_key": m.dayKey,
				"new_day_key": newKey,
			})
		}
		// 连续失败跨越多个自然日时，始终以最新 day-key 为目标
		m.pendingDayKey = newKey
	}

	switch m.state {
	case StateMidnightCleaning:
		if now.Before(m.nextRetryAt) {
			return
		}
		m.runMidnightClearLocked(ctx, now)
	case StateMidnightCleaned, StateOpenRebuildFailed:
		if !m.pendingRebuild || !flags.IsTradingDay || !flags.CanTradeNow {
			return
		}
		if now.Before(m.nextRetryAt) {
			return
		}
		m.runOpenRebuildLocked(ctx, now)
	}
}

// runMidnightClearLocked 按注册顺序清理，遇到第一个失败即停止并安排退避重试。
func (m *Manager) runMidnightClearLocked(ctx context.Context, now time.Time) {
	for _, d := range m.domains {
		if err := d.MidnightClear(ctx); err != nil {
			m.failures++
			m.nextRetryAt = now.Add(Delay(m.cfg.RetryBase, m.failures, m.cfg.RetryCapFactor))
			if m.log != nil {
				m.log.LogError(fmt.Errorf("midnight clear %s failed: %w", d.Name(), err), map[string]interface{}{
					"domain":        d.Name(),
					"failures":      m.failures,
					"next_retry_at": m.nextRetryAt.Format(time.RFC3339),
				})
			}
			return
		}
	}
	m.dayKey = m.pendingDayKey
	m.state = StateMidnightCleaned
	m.pendingRebuild = true
	m.failures = 0
	m.nextRetryAt = time.Time{}
	metrics.MidnightClears.Inc()
	m.logEvent("midnight_clear_done", map[string]interface{}{"day_key": m.dayKey})
}

// runOpenRebuildLocked 按注册逆序重建，全部成功后重新放开交易闸门。
func (m *Manager) runOpenRebuildLocked(ctx context.Context, now time.Time) {
	m.state = StateOpenRebuilding
	for i := len(m.domains) - 1; i >= 0; i-- {
		d := m.domains[i]
		if err := d.OpenRebuild(ctx); err != nil {
			m.failures++
			m.nextRetryAt = now.Add(Delay(m.cfg.RetryBase, m.failures, m.cfg.RetryCapFactor))
			m.state = StateOpenRebuildFailed
			metrics.RebuildFailures.Inc()
			if m.log != nil {
				m.log.LogError(fmt.Errorf("open rebuild %s failed: %w", d.Name(), err), map[string]interface{}{
					"domain":        d.Name(),
					"failures":      m.failures,
					"next_retry_at": m.nextRetryAt.Format(time.RFC3339),
				})
			}
			return
		}
	}
	m.state = StateActive
	m.pendingRebuild = false
	m.failures = 0
	m.nextRetryAt = time.Time{}
	m.setTradingLocked(true)
	m.logEvent("open_rebuild_done", map[string]interface{}{"day_key": m.dayKey})
}

func (m *Manager) setTradingLocked(enabled bool) {
	m.tradingEnabled = enabled
	metrics.SetTradingEnabled(enabled)
}

func (m *Manager) logEvent(event string, fields map[string]interface{}) {
	if m.log == nil {
		return
	}
	fields["event"] = event
	m.log.LogRisk("lifecycle", fields)
}
