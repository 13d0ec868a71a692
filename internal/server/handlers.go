// Package server exposes the HTTP handlers: WebSocket upgrades, the
// health check, and the read-only history projection.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bytechat/bytechat/internal/room"
)

// ServeWS handles WebSocket upgrade requests. It upgrades the HTTP
// connection, mints the connection identity, and hands the client to the
// hub, which launches the read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, h, r.RemoteAddr)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns
// server status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ByteChat server is running!")
}

// HistoryHandler returns a handler serving the persisted message log as
// a JSON array, oldest first. It is the same projection delivered over
// the history event at join time.
func HistoryHandler(store room.HistoryStore, limit int, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		messages, err := store.Recent(limit)
		if err != nil {
			log.Error("history listing failed", "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if messages == nil {
			messages = []room.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			log.Warn("error writing history response", "error", err)
		}
	}
}
