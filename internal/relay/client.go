// Package relay manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package relay

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// IdentityHint carries the unverified identity fields a client supplies at
// handshake time. Presence is only established by a join-user-room event; the
// hint exists for operator logs and diagnostics.
type IdentityHint struct {
	UserID    string
	UserEmail string
}

// Client represents one live transport session between a browser and the
// relay. It owns the WebSocket connection and the buffered outbound queue;
// everything else references it by session id.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	sessionID string
	addr      string
	hint      IdentityHint
	openedAt  time.Time
	closed    bool

	mu     sync.Mutex
	userID string

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client for the provided WebSocket connection with a
// freshly allocated session id. The send channel is buffered so room delivery
// stays non-blocking.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, hint IdentityHint) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		conn:           conn,
		send:           make(chan []byte, cfg.SendQueueSize),
		hub:            hub,
		sessionID:      newSessionID(),
		addr:           addr,
		hint:           hint,
		openedAt:       time.Now(),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// SessionID returns the connection's session id, unique for its lifetime.
func (c *Client) SessionID() string {
	return c.sessionID
}

// UserID returns the user id bound to this connection, or "" while anonymous.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// GetSendChan returns the client's outbound queue for reading delivered
// frames. Used by tests; the write pump is the normal consumer.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"remote":     c.addr,
	})
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger().WithError(err).Warn("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError classifies a read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	log := c.logger()

	if errors.Is(err, websocket.ErrReadLimit) {
		log.WithField("limit", c.maxMessageSize).Warn("Inbound frame exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.WithError(err).Debug("Client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.WithError(err).Debug("Client connection closed")
		return true
	}

	log.WithError(err).Warn("WebSocket read error")
	return true
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger().WithFields(logrus.Fields{
			"burst":    c.rateLimit.Burst,
			"interval": c.rateLimit.RefillInterval,
		}).Warn("Rate limit exceeded; discarding frame")
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		// During shutdown the run loop is gone; the hub closes every
		// connection itself, so skipping unregister is safe then.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger().WithError(err).Warn("Error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		// Blocking send into the hub preserves per-connection ordering.
		select {
		case c.hub.inbound <- inboundFrame{client: c, raw: raw}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger().WithError(err).Warn("Error closing connection in writePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger().WithError(err).Warn("Error setting write deadline")
				return
			}
			if !ok {
				// The hub closed the send channel during teardown.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.logger().WithError(err).Debug("Error writing close message")
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.logger().WithError(err).Warn("Error writing frame")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger().WithError(err).Warn("Error setting write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.logger().WithError(err).Debug("Error writing ping message")
				}
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
