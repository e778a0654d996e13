package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client — тонкий RPC-клиент терминального моста поверх websocket.
// Запрос/ответ строго последовательны: сокет один, mu держим на весь
// round-trip, чтобы ответы не перепутались.
type Client struct {
	cfg *config.Config

	wsDialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		cfg:      cfg,
	}
}

func (c *Client) dialLocked(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Terminal.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Terminal.Token)
	}

	conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.Terminal.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Terminal.URL, err)
	}
	c.conn = conn
	return nil
}

// EnsureConnected гарантирует живую сессию; при мёртвом сокете делает
// один reconnect.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	return c.dialLocked(ctx)
}

func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if err := c.dialLocked(ctx); err != nil {
		return err
	}
	logger.Info("terminal reconnected url=%s", c.cfg.Terminal.URL)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// call выполняет один RPC round-trip. Любая сетевая ошибка роняет
// сокет: следующий вызов пере-дозвонится через EnsureConnected.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return err
		}
	}

	c.nextID++
	req := rpcRequest{ID: c.nextID, Method: method, Params: params}

	payload, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(15 * time.Second))
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return fmt.Errorf("write %s: %w", method, err)
	}

	// Читаем до ответа с нашим id (терминал может слать heartbeat-фреймы).
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.dropLocked()
			return fmt.Errorf("read %s: %w", method, err)
		}

		var env rpcEnvelope
		if err := sonic.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		if env.ID != req.ID {
			continue
		}
		if env.Code != 0 {
			return &BackendError{Method: method, Code: env.Code, Msg: env.Msg}
		}
		if out != nil && len(env.Data) > 0 {
			if err := sonic.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode %s data: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// BackendError — ошибка уровня терминала (code/msg из конверта).
type BackendError struct {
	Method string
	Code   int
	Msg    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("terminal %s: [%d] %s", e.Method, e.Code, e.Msg)
}

// BackendCode позволяет вышестоящим слоям отличать отказ терминала от
// сетевого сбоя, не импортируя этот пакет.
func (e *BackendError) BackendCode() int {
	return e.Code
}
