package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"order-keeper-go/order"
)

// ErrNonOrderEvent 表示推送消息不是订单回报（心跳、行情等）。
var ErrNonOrderEvent = errors.New("not an order event")

// pushEnvelope 推送流的通用包装。
type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OrderUpdate 推送流中的订单状态变更。
type OrderUpdate struct {
	OrderID      string
	Instrument   string
	Side         order.Side
	Status       order.Status
	Price        float64
	Quantity     float64
	ExecutedQty  float64
	AvgPrice     float64
	ExecutedAtMs int64
}

type wireOrderUpdate struct {
	OrderID     string  `json:"orderId"`
	Instrument  string  `json:"instrument"`
	Side        string  `json:"side"`
	Status      string  `json:"status"`
	Price       float64 `json:"price,string"`
	Quantity    float64 `json:"quantity,string"`
	ExecutedQty float64 `json:"executedQty,string"`
	AvgPrice    float64 `json:"avgPrice,string"`
	ExecutedAt  int64   `json:"executedAt"`
}

// ParseOrderUpdate 解析推送消息；非订单回报返回 ErrNonOrderEvent。
func ParseOrderUpdate(raw []byte) (OrderUpdate, error) {
	var env pushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return OrderUpdate{}, fmt.Errorf("decode push envelope: %w", err)
	}
	if env.Type != "order" {
		return OrderUpdate{}, ErrNonOrderEvent
	}
	var w wireOrderUpdate
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return OrderUpdate{}, fmt.Errorf("decode order update: %w", err)
	}
	if w.OrderID == "" {
		return OrderUpdate{}, fmt.Errorf("order update missing orderId")
	}
	return OrderUpdate{
		OrderID:      w.OrderID,
		Instrument:   w.Instrument,
		Side:         order.Side(w.Side),
		Status:       mapVenueStatus(w.Status),
		Price:        w.Price,
		Quantity:     w.Quantity,
		ExecutedQty:  w.ExecutedQty,
		AvgPrice:     w.AvgPrice,
		ExecutedAtMs: w.ExecutedAt,
	}, nil
}
