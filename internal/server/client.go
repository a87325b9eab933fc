// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client is one live connection. Its username is resolved from the session
// cookie at connect time and never changes.
type Client struct {
	id       ulid.ULID
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	username string
	addr     string
	closed   bool
}

// NewClient creates a Client for conn. conn may be nil in tests that drive
// the hub directly; such clients get no pumps.
func NewClient(conn *websocket.Conn, hub *Hub, username, addr string) *Client {
	return &Client{
		id:       ulid.MustNew(ulid.Now(), rand.Reader),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      hub,
		username: username,
		addr:     addr,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id.String()
}

// Username returns the username this connection was resolved to.
func (c *Client) Username() string {
	return c.username
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warn("error setting initial read deadline", "id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.log.Warn("error setting read deadline in pong handler", "id", c.id, "error", err)
		}
		return nil
	})
}

// handleReadError logs the read error and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.hub.log.Debug("client disconnected", "id", c.id, "username", c.username, "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.hub.log.Debug("client connection closed", "id", c.id, "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		c.hub.log.Warn("unexpected websocket close", "id", c.id, "error", err)
		return true
	}

	c.hub.log.Warn("websocket read error", "id", c.id, "error", err)
	return true
}

// processMessage decodes an inbound frame and submits chat text to the hub.
// Frames that are not msg events are logged and dropped.
func (c *Client) processMessage(raw []byte) bool {
	ev, err := DecodeEvent(raw)
	if err != nil {
		c.hub.log.Debug("invalid frame from client", "id", c.id, "error", err)
		return false
	}

	chat, ok := ev.(ChatEvent)
	if !ok {
		c.hub.log.Debug("ignoring non-msg event from client", "id", c.id, "event", ev.EventName())
		return false
	}

	select {
	case c.hub.broadcast <- BroadcastMessage{Sender: c, Text: chat.Msg}:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.hub.log.Warn("error closing connection", "id", c.id, "error", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Warn("error setting write deadline", "id", c.id, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("error writing message", "id", c.id, "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.hub.log.Warn("error writing close message", "id", c.id, "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Warn("error setting write deadline for ping", "id", c.id, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.hub.log.Warn("error writing ping message", "id", c.id, "error", err)
		return false
	}
	return true
}
