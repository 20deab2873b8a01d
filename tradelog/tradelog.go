// Package tradelog 提供仅追加的成交流水落盘：每笔成交写一行 JSON，
// 供对账与事后分析消费。
package tradelog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry 一条成交流水记录。
type Entry struct {
	TradedAt   time.Time
	OrderID    string
	Instrument string
	Direction  string // LONG/SHORT 席位方向
	Side       string // BUY/SELL
	Price      float64
	Quantity   float64
}

// validate 集中校验关键字段，缺失的字段一次性列出。
func (e Entry) validate() error {
	var missing []string
	if e.OrderID == "" {
		missing = append(missing, "orderId")
	}
	if e.Instrument == "" {
		missing = append(missing, "instrument")
	}
	if e.Side == "" {
		missing = append(missing, "side")
	}
	if e.TradedAt.IsZero() {
		missing = append(missing, "tradedAt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("trade entry missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}

// Sink 成交流水写入端。
type Sink interface {
	Append(Entry) error
}

// FileSink 基于独立 zap core 的 JSON 行式落盘。
type FileSink struct {
	log *zap.Logger
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)
	return &FileSink{log: zap.New(core)}, nil
}

// Append 校验并写入一条流水。
func (s *FileSink) Append(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.log.Info("trade",
		zap.String("orderId", e.OrderID),
		zap.String("instrument", e.Instrument),
		zap.String("direction", e.Direction),
		zap.String("side", e.Side),
		zap.Float64("price", e.Price),
		zap.Float64("quantity", e.Quantity),
		zap.Int64("tradedAtMs", e.TradedAt.UnixMilli()),
	)
	return nil
}

func (s *FileSink) Close() error {
	return s.log.Sync()
}
