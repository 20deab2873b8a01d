package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"order-keeper-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Logger    logger.Config   `yaml:"logger"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Venue     VenueConfig     `yaml:"venue"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Monitors  []MonitorSeat   `yaml:"monitors"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	TradeLog  TradeLogConfig  `yaml:"tradeLog"`
}

type GatewayConfig struct {
	APIKey       string `yaml:"apiKey"`
	APISecret    string `yaml:"apiSecret"`
	BaseURL      string `yaml:"baseURL"`
	WSEndpoint   string `yaml:"wsEndpoint"`
	RecvWindowMs int64  `yaml:"recvWindowMs"`
}

// VenueConfig 交易所时区与交易时段。day-key 与开收盘判断都以
// 该时区为准。
type VenueConfig struct {
	Timezone string          `yaml:"timezone"` // 如 Asia/Shanghai
	Sessions []SessionConfig `yaml:"sessions"` // 可交易时段，venue 时区当地时间
}

type SessionConfig struct {
	Open  string `yaml:"open"`  // HH:MM
	Close string `yaml:"close"` // HH:MM
}

type LimiterConfig struct {
	Rate  float64 `yaml:"rate"` // 每秒查询配额
	Burst int     `yaml:"burst"`
}

type LifecycleConfig struct {
	RetryBaseMs    int `yaml:"retryBaseMs"`    // 清理/重建失败后的基础重试间隔
	RetryCapFactor int `yaml:"retryCapFactor"` // 指数退避倍数上限
}

type MonitorConfig struct {
	OrderMaxAgeMs        int  `yaml:"orderMaxAgeMs"`        // 在途订单最大挂龄
	ReplaceMinIntervalMs int  `yaml:"replaceMinIntervalMs"` // 两次改价的最小间隔
	ReplaceSells         bool `yaml:"replaceSells"`         // 超龄卖单改价追单而非撤单
	CooldownMs           int  `yaml:"cooldownMs"`           // 成交后同席位冷却时长
}

// MonitorSeat 监控席位：按合约名模式把成交归属到席位与方向。
type MonitorSeat struct {
	Name              string  `yaml:"name"`
	InstrumentPattern string  `yaml:"instrumentPattern"` // 精确名或尾部 * 前缀匹配
	Direction         string  `yaml:"direction"`         // LONG / SHORT
	DailyLossLimit    float64 `yaml:"dailyLossLimit"`    // 0 表示不设限
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TradeLogConfig struct {
	Path string `yaml:"path"`
}

// Location 解析 venue 时区。
func (v VenueConfig) Location() (*time.Location, error) {
	if v.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(v.Timezone)
}

// IsTradingDay 周一到周五视为交易日。
func (v VenueConfig) IsTradingDay(t time.Time, loc *time.Location) bool {
	wd := t.In(loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// CanTradeAt 判断 t 是否落在某个交易时段内。未配置时段时视为全天可交易。
func (v VenueConfig) CanTradeAt(t time.Time, loc *time.Location) bool {
	if len(v.Sessions) == 0 {
		return true
	}
	local := t.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	for _, s := range v.Sessions {
		open, err1 := parseClock(s.Open)
		close_, err2 := parseClock(s.Close)
		if err1 != nil || err2 != nil {
			continue
		}
		if minutes >= open && minutes < close_ {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("KEEPER_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("KEEPER_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if _, err := cfg.Venue.Location(); err != nil {
		return fmt.Errorf("venue.timezone invalid: %w", err)
	}
	for i, s := range cfg.Venue.Sessions {
		if _, err := parseClock(s.Open); err != nil {
			return fmt.Errorf("venue.sessions[%d].open invalid: %w", i, err)
		}
		if _, err := parseClock(s.Close); err != nil {
			return fmt.Errorf("venue.sessions[%d].close invalid: %w", i, err)
		}
	}
	if cfg.Limiter.Rate < 0 || cfg.Limiter.Burst < 0 {
		return errors.New("limiter.rate/burst must be >= 0")
	}
	if cfg.Lifecycle.RetryBaseMs < 0 || cfg.Lifecycle.RetryCapFactor < 0 {
		return errors.New("lifecycle retry params must be >= 0")
	}
	if cfg.Monitor.OrderMaxAgeMs < 0 || cfg.Monitor.ReplaceMinIntervalMs < 0 || cfg.Monitor.CooldownMs < 0 {
		return errors.New("monitor intervals must be >= 0")
	}
	if len(cfg.Monitors) == 0 {
		return errors.New("monitors config is required")
	}
	seen := make(map[string]bool, len(cfg.Monitors))
	for i, m := range cfg.Monitors {
		if m.Name == "" {
			return fmt.Errorf("monitors[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("monitors[%d].name %q duplicated", i, m.Name)
		}
		seen[m.Name] = true
		if m.InstrumentPattern == "" {
			return fmt.Errorf("monitor %s instrumentPattern is required", m.Name)
		}
		switch strings.ToUpper(m.Direction) {
		case "LONG", "SHORT":
		default:
			return fmt.Errorf("monitor %s direction must be LONG or SHORT", m.Name)
		}
		if m.DailyLossLimit < 0 {
			return fmt.Errorf("monitor %s dailyLossLimit must be >= 0", m.Name)
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics enabled")
	}
	return nil
}
