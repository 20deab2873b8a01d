package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/metrics"
)

const readTimeout = 30 * time.Second

// WSClient 订单推送流客户端，含自动重连。断线重连后先触发
// OnReconnected（调用方应借此回到快照恢复流程），再继续读取。
type WSClient struct {
	Endpoint string
	APIKey   string
	Dialer   *websocket.Dialer

	OnOrderUpdate func(OrderUpdate)
	OnReconnected func()

	maxBackoff time.Duration
	log        *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSClient(endpoint, apiKey string, log *logger.Logger) *WSClient {
	return &WSClient{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Dialer:     websocket.DefaultDialer,
		maxBackoff: 30 * time.Second,
		log:        log,
	}
}

// Run 维持连接直到 ctx 取消。首次连接失败同样进入重连循环。
func (c *WSClient) Run(ctx context.Context) error {
	if c.OnOrderUpdate == nil {
		return fmt.Errorf("order update handler not set")
	}
	backoff := time.Second
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, _, err := c.Dialer.DialContext(ctx, c.Endpoint, nil)
		if err != nil {
			if c.log != nil {
				c.log.LogError(fmt.Errorf("ws dial failed: %w", err), map[string]interface{}{
					"endpoint": c.Endpoint,
					"backoff":  backoff.String(),
				})
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if !first {
			metrics.WSReconnects.Inc()
			if c.OnReconnected != nil {
				c.OnReconnected()
			}
		}
		first = false

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

// Close 关闭当前连接，促使 Run 退出读取循环。
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if ctx.Err() != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.log != nil && ctx.Err() == nil {
				c.log.LogError(fmt.Errorf("ws read failed: %w", err), nil)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		update, err := ParseOrderUpdate(msg)
		if err != nil {
			if err != ErrNonOrderEvent && c.log != nil {
				c.log.LogError(err, map[string]interface{}{"raw_len": len(msg)})
			}
			continue
		}
		c.OnOrderUpdate(update)
	}
}
