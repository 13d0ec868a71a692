// Package server coordinates WebSocket connection registration, pump
// lifecycles, and graceful teardown for the ByteChat service via the Hub
// type. Protocol semantics live in the room package; the hub only owns
// transport-level connection state, joined or not.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bytechat/bytechat/internal/room"
)

// Hub tracks every open WebSocket connection and handles registration,
// unregistration, and shutdown. Connections that never join the room are
// still tracked here so shutdown can close them.
type Hub struct {
	clients     map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	coordinator *room.Room
	relay       *room.MessageRelay
	keys        *room.KeyExchangeRelay
	cfg         Config
	upgrader    websocket.Upgrader
	log         *slog.Logger
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHub creates a hub bound to the given room engine. The returned hub
// is ready to accept connections once Run is started.
func NewHub(cfg Config, coordinator *room.Room, relay *room.MessageRelay, keys *room.KeyExchangeRelay, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginChecker(cfg.Origins(), log)
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		coordinator: coordinator,
		relay:       relay,
		keys:        keys,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run starts the hub's main event loop, handling connection registration
// and unregistration. It should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration, skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("connection registered", "addr", client.addr, "conn", client.id, "connections", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock; buffered
				// notices drain before the write pump says goodbye.
				close(client.send)
				h.log.Info("connection unregistered", "addr", client.addr, "conn", client.id, "connections", clientCount)
			} else {
				h.mutex.Unlock()
			}
			// Disconnect in any state triggers idempotent room cleanup.
			h.coordinator.Leave(client.id)
		}
	}
}

// safeSend queues a payload for one client without ever blocking the
// caller. It reports false when the client is gone or its queue is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("recovered from send on closed connection", "addr", client.addr, "panic", r)
		}
	}()

	// Hold the lock during the entire send so unregistration cannot
	// close the channel mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// shutdownClients closes all active connections.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// connection goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
