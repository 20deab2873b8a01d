// Package metrics provides Prometheus metrics for the order keeper
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FillsTotal 按方向统计成交笔数
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_fills_total",
		Help: "成交回报笔数",
	}, []string{"side"})

	// TrackedOrders 当前在途跟踪订单数
	TrackedOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_tracked_orders",
		Help: "在途跟踪订单数量",
	})

	// BufferedEvents 启动/恢复期间缓存的推送事件数
	BufferedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_buffered_events",
		Help: "bootstrap 阶段缓存的推送事件数量",
	})

	// MidnightClears 换日清理执行次数
	MidnightClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_midnight_clears_total",
		Help: "换日清理成功次数",
	})

	// RebuildFailures 开盘重建失败次数
	RebuildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_rebuild_failures_total",
		Help: "换日清理/开盘重建失败次数",
	})

	// TradingEnabled 交易闸门状态（1 放行 / 0 禁止）
	TradingEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_trading_enabled",
		Help: "交易闸门状态",
	})

	// OwnershipMisses 无法解析归属席位的成交单数
	OwnershipMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_ownership_misses_total",
		Help: "归属解析失败的成交单数",
	})

	// RESTRequests 按动作统计的 REST 请求数
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_rest_requests_total",
		Help: "REST 请求数量",
	}, []string{"action"})

	// RESTErrors 按动作统计的 REST 错误数
	RESTErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_rest_errors_total",
		Help: "REST 错误数量",
	}, []string{"action"})

	// WSReconnects 推送流重连次数
	WSReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_ws_reconnects_total",
		Help: "推送流重连次数",
	})
)

// RecordFill 成交计数便捷入口。
func RecordFill(side string) {
	FillsTotal.WithLabelValues(side).Inc()
}

// SetTradingEnabled 更新交易闸门指标。
func SetTradingEnabled(enabled bool) {
	if enabled {
		TradingEnabled.Set(1)
	} else {
		TradingEnabled.Set(0)
	}
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
