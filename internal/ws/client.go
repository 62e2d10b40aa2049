package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atelier3d/relay/internal/config"
	"github.com/atelier3d/relay/internal/relay"
)

// Client wraps one WebSocket connection with a buffered outbound channel.
// It implements relay.Sink: Send enqueues without blocking and fails when
// the buffer is full or the client is closed.
type Client struct {
	connID string
	conn   *websocket.Conn
	cfg    config.WebSocketConfig
	logger *zap.Logger

	send   chan relay.Envelope
	mu     sync.Mutex
	closed bool
}

// newClient wraps an upgraded WebSocket connection.
func newClient(conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan relay.Envelope, cfg.SendBuffer),
	}
}

// Send enqueues an envelope for delivery to this client. A client whose
// buffer is full is evicted: its transport is closed, which makes the
// read pump report the disconnect through the usual path.
//
// Postcondition: The envelope is buffered, or an error is returned when
// the client is closed or its buffer was full. Never blocks.
func (c *Client) Send(env relay.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection %s is closed", c.connID)
	}
	select {
	case c.send <- env:
		c.mu.Unlock()
		return nil
	default:
	}

	// Slow consumer: drop the connection rather than let it silently
	// fall behind the room.
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.conn.Close()
	c.logger.Warn("send buffer full, dropping slow consumer",
		zap.String("connection_id", c.connID),
	)
	return fmt.Errorf("connection %s send buffer full, dropped", c.connID)
}

// closeSend marks the client closed and closes the outbound channel,
// which makes the write pump send a close frame and exit. Idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// extendReadDeadline pushes the read deadline out by the configured
// timeout. A zero timeout leaves the connection without a deadline.
func (c *Client) extendReadDeadline() {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

// extendWriteDeadline pushes the write deadline out by the configured
// timeout. A zero timeout leaves writes unbounded.
func (c *Client) extendWriteDeadline() {
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
}

// readPump decodes inbound envelopes and feeds them to the handler until
// the connection drops. It runs on its own goroutine; the deferred
// Disconnect is the single place transport close is observed.
func (c *Client) readPump(handler EventHandler) {
	defer func() {
		handler.Disconnect(c.connID)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read failed",
					zap.String("connection_id", c.connID),
					zap.Error(err),
				)
			}
			return
		}

		var env relay.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("dropping malformed envelope",
				zap.String("connection_id", c.connID),
				zap.Error(err),
			)
			continue
		}
		if env.Event == "" {
			c.logger.Debug("dropping envelope without event name",
				zap.String("connection_id", c.connID),
			)
			continue
		}

		handler.HandleEvent(c.connID, env.Event, env.Data)
	}
}

// writePump serializes outbound envelopes and pings the client on an
// interval so half-dead connections are detected by the read deadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.extendWriteDeadline()
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("write failed",
					zap.String("connection_id", c.connID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			c.extendWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
