package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	. "github.com/gateward/gateward/internal/logging"
)

// wire frames. Every request gets exactly one response with the same id.
type requestFrame struct {
	Type   string          `json:"type"` // "req"
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type responseFrame struct {
	Type    string          `json:"type"` // "res"
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is a websocket Caller. Concurrent calls multiplex over one
// connection; responses are matched back to callers by frame id.
type Client struct {
	url   string
	token string

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan responseFrame
	closed  bool
}

func NewClient(url, token string) *Client {
	return &Client{
		url:     url,
		token:   token,
		pending: make(map[string]chan responseFrame),
	}
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	c.conn = conn
	go c.readLoop()
	L_info("connected to gateway at %s", c.url)
	return nil
}

// Close tears down the connection and fails all pending calls.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan responseFrame)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- responseFrame{ID: id, Error: "connection closed"}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if c.conn == nil {
		return fmt.Errorf("gateway client not connected")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	frame := requestFrame{Type: "req", ID: uuid.NewString(), Method: method, Params: raw}

	ch := make(chan responseFrame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("gateway client closed")
	}
	c.pending[frame.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return fmt.Errorf("gateway %s: %s", method, res.Error)
		}
		if result == nil || len(res.Payload) == 0 {
			return nil
		}
		return json.Unmarshal(res.Payload, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop() {
	for {
		var res responseFrame
		if err := c.conn.ReadJSON(&res); err != nil {
			if !IsShuttingDown() {
				L_warn("gateway read loop ended: %v", err)
			}
			c.Close()
			return
		}
		if res.Type != "res" {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		if ok {
			delete(c.pending, res.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- res
		} else {
			L_debug("dropping response for unknown request %s", res.ID)
		}
	}
}
