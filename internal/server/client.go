// Package server manages individual WebSocket connections: read/write
// pumps, protocol dispatch into the room engine, rate limiting, and
// lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bytechat/bytechat/internal/room"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Client represents one WebSocket connection. It carries the ephemeral
// connection identity the room engine keys on, and implements
// room.Sender so the coordinator and relays can deliver envelopes to it.
type Client struct {
	id          room.ConnID
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	addr        string
	closed      bool
	rateLimiter *rateLimiter
	log         *slog.Logger
}

// newClient wires a freshly upgraded connection into the hub. The send
// channel is buffered so slow readers never block the room lock.
func newClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}
	return &Client{
		id:          room.ConnID(uuid.NewString()),
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		hub:         hub,
		addr:        addr,
		rateLimiter: newRateLimiter(hub.cfg.RateLimitBurst, hub.cfg.RateLimitRefill),
		log:         hub.log,
	}
}

// Send marshals the envelope and queues it for delivery. It never
// blocks; false means the connection is gone or its queue is full.
func (c *Client) Send(env room.Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		c.log.Error("failed to marshal envelope", "event", env.Event, "error", err)
		return false
	}
	return c.hub.safeSend(c, payload)
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs the error appropriately and returns true if the
// read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("message exceeded maximum size", "addr", c.addr, "limit", c.hub.cfg.MaxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("client disconnected", "addr", c.addr, "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("client connection closed", "addr", c.addr, "reason", err)
		return true
	}

	c.log.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// dispatch routes one inbound frame into the room engine and reports
// whether the connection may keep going. Terminal protocol violations
// (room full, duplicate username, message without membership) stop the
// read loop, which tears the connection down after the queued status
// notice has been flushed.
func (c *Client) dispatch(raw []byte) bool {
	var env room.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("dropping malformed frame", "addr", c.addr, "error", err)
		return true
	}

	switch env.Event {
	case room.EventJoin:
		username, err := room.ParseJoin(env.Data)
		if err != nil {
			c.Send(room.StatusNotice("Invalid message."))
			return true
		}
		err = c.hub.coordinator.Join(c.id, c, username)
		return !room.Terminal(err)
	case room.EventMessage:
		err := c.hub.relay.Send(c.id, c, env.Data)
		return !room.Terminal(err)
	case room.EventPublicKey:
		c.hub.keys.Forward(c.id, env.Data)
		return true
	default:
		c.log.Debug("ignoring unknown event", "event", env.Event, "addr", c.addr)
		return true
	}
}

func (c *Client) readPump() {
	// The write pump owns closing the connection so any status notice
	// queued by a rejection is flushed before the close frame.
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			// Hub loop already stopped; shutdown closes the connection.
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.rateLimiter.allow() {
			c.log.Warn("rate limit exceeded, discarding frame", "addr", c.addr)
			continue
		}

		if !c.dispatch(raw) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.hub.ctx.Done():
			return
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn("error setting write deadline", "addr", c.addr, "error", err)
				return
			}
			if !ok {
				// Channel closed by the hub: drain is complete, say goodbye.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.log.Warn("error writing close message", "addr", c.addr, "error", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("error writing message", "addr", c.addr, "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn("error setting ping deadline", "addr", c.addr, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection safely closes the WebSocket connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error closing connection", "addr", c.addr, "error", err)
		}
	}
}
