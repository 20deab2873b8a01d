package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"order-keeper-go/config"
	"order-keeper-go/gateway"
	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/lifecycle"
	"order-keeper-go/metrics"
	"order-keeper-go/monitor"
	"order-keeper-go/order"
	"order-keeper-go/risk"
	"order-keeper-go/tradelog"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	tickMs := flag.Int("tickMs", 1000, "主循环节拍（毫秒）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	appLog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer appLog.Close()

	loc, err := cfg.Venue.Location()
	if err != nil {
		log.Fatalf("解析交易所时区失败: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.StartMetricsServer(cfg.Metrics.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 交易所接入
	restClient := &gateway.RESTClient{
		BaseURL:      cfg.Gateway.BaseURL,
		APIKey:       cfg.Gateway.APIKey,
		Secret:       cfg.Gateway.APISecret,
		RecvWindowMs: cfg.Gateway.RecvWindowMs,
		HTTPClient:   gateway.NewDefaultHTTPClient(),
	}
	limiter := gateway.NewTokenBucketLimiter(cfg.Limiter.Rate, cfg.Limiter.Burst)

	// 订单域装配
	seats := make([]risk.MonitorSpec, 0, len(cfg.Monitors))
	for _, m := range cfg.Monitors {
		seats = append(seats, risk.MonitorSpec{
			Name:              m.Name,
			InstrumentPattern: m.InstrumentPattern,
			Direction:         order.Direction(strings.ToUpper(m.Direction)),
			DailyLossLimit:    m.DailyLossLimit,
		})
	}
	ownership := risk.NewOwnership(seats)
	recorder := order.NewRecorder(order.NewStorage(), order.NewAPIManager(restClient, limiter), ownership)
	lossTracker := risk.NewDailyLossTracker(ownership, loc, appLog)
	gate := monitor.NewGate()
	cooldown := monitor.NewCooldownTracker(time.Duration(cfg.Monitor.CooldownMs) * time.Millisecond)
	holds := monitor.NewHoldRegistry()
	quotes := newQuoteCache()

	var trades tradelog.Sink
	if cfg.TradeLog.Path != "" {
		sink, err := tradelog.NewFileSink(cfg.TradeLog.Path)
		if err != nil {
			log.Fatalf("打开成交流水失败: %v", err)
		}
		defer sink.Close()
		trades = sink
	}

	mon := monitor.New(monitor.Config{
		OrderMaxAge:        time.Duration(cfg.Monitor.OrderMaxAgeMs) * time.Millisecond,
		ReplaceMinInterval: time.Duration(cfg.Monitor.ReplaceMinIntervalMs) * time.Millisecond,
		ReplaceSells:       cfg.Monitor.ReplaceSells,
	}, monitor.Deps{
		Logger:   appLog,
		Recorder: recorder,
		Loss:     lossTracker,
		Cooldown: cooldown,
		Gate:     gate,
		Holds:    holds,
		Venue:    restClient,
		Quotes:   quotes,
		Resolver: ownership,
		Trades:   trades,
	})

	// 日切编排：订单域是唯一注册域，清理重置本地账本，
	// 重建从交易所快照恢复权威状态。
	lcm := lifecycle.NewManager(loc, lifecycle.Config{
		RetryBase:      time.Duration(cfg.Lifecycle.RetryBaseMs) * time.Millisecond,
		RetryCapFactor: cfg.Lifecycle.RetryCapFactor,
	}, appLog, time.Now())
	lcm.Register(&orderDomain{
		recorder: recorder,
		monitor:  mon,
		loss:     lossTracker,
		cooldown: cooldown,
		log:      appLog,
	})

	// 推送流
	ws := gateway.NewWSClient(cfg.Gateway.WSEndpoint, cfg.Gateway.APIKey, appLog)
	ws.OnOrderUpdate = func(u gateway.OrderUpdate) {
		quotes.observe(u)
		mon.HandleOrderChanged(monitor.OrderEvent{
			OrderID:      u.OrderID,
			Instrument:   u.Instrument,
			Side:         u.Side,
			Status:       u.Status,
			Price:        u.Price,
			Quantity:     u.Quantity,
			ExecutedQty:  u.ExecutedQty,
			AvgPrice:     u.AvgPrice,
			ExecutedAtMs: u.ExecutedAtMs,
		})
	}
	ws.OnReconnected = func() {
		// 断线期间可能漏事件，回到缓冲阶段并用快照重新对账
		mon.EnterBootstrap()
		go resyncFromSnapshot(ctx, recorder, lossTracker, mon, appLog)
	}
	go func() {
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			appLog.LogError(fmt.Errorf("推送流退出: %w", err), nil)
			cancel()
		}
	}()

	// 账户/持仓随成交异步刷新
	go refreshLoop(ctx, gate, restClient, appLog)

	// 配置热更新：当日亏损限额即时生效，凭据与席位在重启时生效
	go func() {
		err := config.Watcher{Path: *cfgPath}.Start(ctx, func(next config.AppConfig) {
			for _, m := range next.Monitors {
				lossTracker.SetDailyLossLimit(m.Name, m.DailyLossLimit)
			}
			appLog.LogTrade("config_reloaded", map[string]interface{}{"path": *cfgPath})
		}, func(err error) {
			appLog.LogError(fmt.Errorf("配置重载失败: %w", err), map[string]interface{}{"path": *cfgPath})
		})
		if err != nil && ctx.Err() == nil {
			appLog.LogError(fmt.Errorf("配置监听退出: %w", err), nil)
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx)

	// 主循环：日切编排 + 在途订单超时处置
	go func() {
		interval := time.Duration(*tickMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				lcm.Tick(ctx, now, lifecycle.RuntimeFlags{
					IsTradingDay: cfg.Venue.IsTradingDay(now, loc),
					CanTradeNow:  cfg.Venue.CanTradeAt(now, loc),
				})
				if lcm.TradingEnabled() {
					mon.CheckTimeouts(ctx, now)
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	appLog.LogTrade("shutdown", nil)
	cancel()
	ws.Close()
}

// orderDomain 把订单账本 + 订单监控接入日切编排。
type orderDomain struct {
	recorder *order.Recorder
	monitor  *monitor.Monitor
	loss     *risk.DailyLossTracker
	cooldown *monitor.CooldownTracker
	log      *logger.Logger
}

func (d *orderDomain) Name() string { return "order" }

// MidnightClear 回到缓冲阶段并清空所有当日状态。
func (d *orderDomain) MidnightClear(ctx context.Context) error {
	d.monitor.EnterBootstrap()
	d.recorder.ClearAll()
	d.cooldown.Reset()
	d.loss.ResetAll(time.Now())
	return nil
}

// OpenRebuild 以交易所快照为准重建账本、当日亏损与在途跟踪。
func (d *orderDomain) OpenRebuild(ctx context.Context) error {
	all, err := d.recorder.FetchAllOrders(ctx, true)
	if err != nil {
		return fmt.Errorf("fetch order snapshot: %w", err)
	}
	res := d.recorder.LoadFromOrders(all)
	d.loss.RecalculateFromAllOrders(all, time.Now())
	d.monitor.RecoverFromSnapshot(all)
	d.log.LogTrade("open_rebuild", map[string]interface{}{
		"orders":    len(all),
		"loaded":    res.Loaded,
		"unmatched": res.Unmatched,
		"tracked":   d.monitor.TrackedCount(),
	})
	return nil
}

// resyncFromSnapshot 推送流重连后的对账：快照重建 + 缓冲回放。
func resyncFromSnapshot(ctx context.Context, rec *order.Recorder, loss *risk.DailyLossTracker, mon *monitor.Monitor, appLog *logger.Logger) {
	all, err := rec.FetchAllOrders(ctx, true)
	if err != nil {
		appLog.LogError(fmt.Errorf("重连对账失败: %w", err), nil)
		return
	}
	rec.LoadFromOrders(all)
	loss.RecalculateFromAllOrders(all, time.Now())
	mon.RecoverFromSnapshot(all)
	appLog.LogTrade("ws_resync", map[string]interface{}{"orders": len(all)})
}

// refreshLoop 响应 staleness gate：有成交落账后重新拉取账户与
// 持仓，完成后发布新版本，解除 WaitForFresh 的阻塞。
func refreshLoop(ctx context.Context, gate *monitor.Gate, cli *gateway.RESTClient, appLog *logger.Logger) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !gate.Dirty() {
				continue
			}
			version := gate.StaleVersion()
			account, err := cli.QueryAccount(ctx)
			if err != nil {
				appLog.LogError(fmt.Errorf("刷新账户失败: %w", err), nil)
				continue
			}
			positions, err := cli.QueryPositions(ctx)
			if err != nil {
				appLog.LogError(fmt.Errorf("刷新持仓失败: %w", err), nil)
				continue
			}
			gate.MarkFresh(version)
			appLog.LogTrade("account_refreshed", map[string]interface{}{
				"available": account.Available,
				"positions": len(positions),
				"version":   version,
			})
		}
	}
}

// watchdogLoop systemd watchdog 心跳。未启用 watchdog 时直接返回。
func watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

// quoteCache 从成交回报里提取最新成交价，供超时改价定价。
type quoteCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newQuoteCache() *quoteCache {
	return &quoteCache{prices: make(map[string]float64)}
}

func (q *quoteCache) observe(u gateway.OrderUpdate) {
	if u.ExecutedQty <= 0 || u.AvgPrice <= 0 {
		return
	}
	q.mu.Lock()
	q.prices[u.Instrument] = u.AvgPrice
	q.mu.Unlock()
}

func (q *quoteCache) LastPrice(instrument string) (float64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	p, ok := q.prices[instrument]
	return p, ok
}
