package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// Handler receives each validated transaction already normalized into
// the pipeline's message shape.
type Handler func(msg *types.LedgerMessage)

type ClientConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a reconnecting subscription to the ledger's transaction
// stream. It does one job: turn the upstream firehose into normalized
// messages for the handler. Everything downstream works off the queue,
// so a dropped connection loses nothing that was already published.
type Client struct {
	endpoint string
	config   ClientConfig
	handler  Handler
	logger   *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewClient(endpoint string, config ClientConfig, handler Handler) *Client {
	return &Client{
		endpoint: endpoint,
		config:   config,
		handler:  handler,
		logger:   logger.With("component", "xrpl", "endpoint", endpoint),
		done:     make(chan struct{}),
	}
}

// Start connects, subscribes, and begins the read loop. Returns after
// the initial subscription is written; delivery happens on the loop.
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}

	sub := subscribeRequest{ID: 1, Command: "subscribe", Streams: []string{"transactions"}}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.logger.Info("Subscribed to transaction stream")
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	delay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.sleep(delay) {
				return
			}
			if err := c.connect(context.Background()); err != nil {
				c.logger.Warn("Reconnect failed", "error", err, "next_delay", delay)
				delay = c.nextDelay(delay)
			} else {
				delay = c.config.ReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("Read failed, reconnecting", "error", err)
			c.connMu.Lock()
			c.conn.Close()
			c.conn = nil
			c.connMu.Unlock()
			continue
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Type != "transaction" {
		return
	}

	msg, err := Normalize(data)
	if err != nil {
		c.logger.Warn("Dropping unnormalizable stream message", "error", err)
		return
	}
	if !msg.Validated {
		// only validated ledgers are final
		return
	}
	c.handler(msg)
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("Ping failed", "error", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}

// sleep waits out the reconnect delay; false means the client closed.
func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > c.config.MaxReconnectDelay {
		return c.config.MaxReconnectDelay
	}
	return d
}

type subscribeRequest struct {
	ID      int      `json:"id"`
	Command string   `json:"command"`
	Streams []string `json:"streams"`
}
