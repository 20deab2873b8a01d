package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"order-keeper-go/metrics"
	"order-keeper-go/order"
)

// RESTClient 交易所签名 REST 客户端。HTTPClient 可注入 httptest，
// 默认不发起真实网络调用。
type RESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	RecvWindowMs int64
	HTTPClient   *http.Client
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// venueOrder 交易所订单查询应答中的单笔订单。
type venueOrder struct {
	OrderID     string  `json:"orderId"`
	Instrument  string  `json:"instrument"`
	Side        string  `json:"side"`
	Status      string  `json:"status"`
	Price       float64 `json:"price,string"`
	Quantity    float64 `json:"quantity,string"`
	ExecutedQty float64 `json:"executedQty,string"`
	AvgPrice    float64 `json:"avgPrice,string"`
	SubmittedAt int64   `json:"submittedAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

func (v venueOrder) toRawOrder() order.RawOrder {
	return order.RawOrder{
		OrderID:       v.OrderID,
		Instrument:    v.Instrument,
		Side:          order.Side(strings.ToUpper(v.Side)),
		Status:        mapVenueStatus(v.Status),
		Price:         v.Price,
		Quantity:      v.Quantity,
		ExecutedQty:   v.ExecutedQty,
		AvgPrice:      v.AvgPrice,
		SubmittedAtMs: v.SubmittedAt,
		UpdatedAtMs:   v.UpdatedAt,
	}
}

// mapVenueStatus 把交易所状态字符串归一到本地状态集。
func mapVenueStatus(s string) order.Status {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING_NEW", "ACCEPTED":
		return order.StatusNew
	case "PARTIALLY_FILLED", "PARTIAL":
		return order.StatusPartial
	case "FILLED":
		return order.StatusFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		return order.StatusCanceled
	case "REJECTED":
		return order.StatusRejected
	default:
		return order.Status(strings.ToUpper(s))
	}
}

// QueryHistoryOrders 查询历史订单（含已结算的前几个交易日）。
func (c *RESTClient) QueryHistoryOrders(ctx context.Context) ([]order.RawOrder, error) {
	return c.queryOrders(ctx, "/api/v1/orders/history", "query_history_orders")
}

// QueryTodayOrders 查询当日订单。
func (c *RESTClient) QueryTodayOrders(ctx context.Context) ([]order.RawOrder, error) {
	return c.queryOrders(ctx, "/api/v1/orders/today", "query_today_orders")
}

func (c *RESTClient) queryOrders(ctx context.Context, path, action string) ([]order.RawOrder, error) {
	body, err := c.signedCall(ctx, http.MethodGet, path, map[string]string{}, action)
	if err != nil {
		return nil, err
	}
	var raws []venueOrder
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	out := make([]order.RawOrder, 0, len(raws))
	for _, v := range raws {
		out = append(out, v.toRawOrder())
	}
	return out, nil
}

type placeResp struct {
	OrderID string `json:"orderId"`
}

// PlaceLimit 提交限价单，返回交易所订单号。
func (c *RESTClient) PlaceLimit(ctx context.Context, instrument string, side order.Side, price, qty float64) (string, error) {
	params := map[string]string{
		"instrument":    instrument,
		"side":          string(side),
		"type":          "LIMIT",
		"price":         strconv.FormatFloat(price, 'f', -1, 64),
		"quantity":      strconv.FormatFloat(qty, 'f', -1, 64),
		"clientOrderId": uuid.NewString(),
	}
	body, err := c.signedCall(ctx, http.MethodPost, "/api/v1/order", params, "place_limit")
	if err != nil {
		return "", err
	}
	var pr placeResp
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", err
	}
	if pr.OrderID == "" {
		return "", fmt.Errorf("empty orderId in place response")
	}
	return pr.OrderID, nil
}

// CancelOrder 撤单。
func (c *RESTClient) CancelOrder(ctx context.Context, instrument, orderID string) error {
	params := map[string]string{
		"instrument": instrument,
		"orderId":    orderID,
	}
	_, err := c.signedCall(ctx, http.MethodDelete, "/api/v1/order", params, "cancel_order")
	return err
}

// ReplaceOrderPrice 撤旧挂新改价，返回新订单号。
func (c *RESTClient) ReplaceOrderPrice(ctx context.Context, instrument, orderID string, newPrice float64) (string, error) {
	params := map[string]string{
		"instrument":    instrument,
		"orderId":       orderID,
		"price":         strconv.FormatFloat(newPrice, 'f', -1, 64),
		"clientOrderId": uuid.NewString(),
	}
	body, err := c.signedCall(ctx, http.MethodPost, "/api/v1/order/replace", params, "replace_order")
	if err != nil {
		return "", err
	}
	var pr placeResp
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", err
	}
	if pr.OrderID == "" {
		return "", fmt.Errorf("empty orderId in replace response")
	}
	return pr.OrderID, nil
}

// AccountInfo 账户资金快照。
type AccountInfo struct {
	Balance   float64 `json:"balance,string"`
	Available float64 `json:"available,string"`
	Margin    float64 `json:"margin,string"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Position 单合约持仓快照。
type Position struct {
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	Quantity   float64 `json:"quantity,string"`
	AvgPrice   float64 `json:"avgPrice,string"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// QueryAccount 查询账户资金。
func (c *RESTClient) QueryAccount(ctx context.Context) (AccountInfo, error) {
	var info AccountInfo
	body, err := c.signedCall(ctx, http.MethodGet, "/api/v1/account", map[string]string{}, "query_account")
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("decode account response: %w", err)
	}
	return info, nil
}

// QueryPositions 查询全部持仓。
func (c *RESTClient) QueryPositions(ctx context.Context) ([]Position, error) {
	body, err := c.signedCall(ctx, http.MethodGet, "/api/v1/positions", map[string]string{}, "query_positions")
	if err != nil {
		return nil, err
	}
	var positions []Position
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("decode positions response: %w", err)
	}
	return positions, nil
}

// signedCall 发起一次签名请求并返回应答体。时间戳与 recvWindow
// 会附加进签名参数。
func (c *RESTClient) signedCall(ctx context.Context, method, path string, params map[string]string, action string) ([]byte, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	metrics.RESTRequests.WithLabelValues(action).Inc()

	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	if c.RecvWindowMs > 0 {
		params["recvWindow"] = strconv.FormatInt(c.RecvWindowMs, 10)
	}
	query, sig := SignParams(params, c.Secret)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + sig

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, fmt.Errorf("%s read body: %w", action, err)
	}
	if resp.StatusCode >= 300 {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, fmt.Errorf("%s status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
