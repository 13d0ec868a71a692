// Package server wires the HTTP handlers into a router for the ByteChat
// application.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bytechat/bytechat/internal/room"
)

// NewRouter configures and returns the application router: health check,
// WebSocket endpoint, history projection, and Prometheus metrics.
func NewRouter(hub *Hub, store room.HistoryStore, cfg Config, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/history", HistoryHandler(store, cfg.HistoryLimit, log)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
