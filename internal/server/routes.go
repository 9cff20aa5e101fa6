package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/callrelay/internal/config"
	"github.com/BioHazard786/callrelay/internal/signaling"
)

// Server exposes the hub over HTTP.
type Server struct {
	hub      *signaling.Hub
	cfg      *config.ServerConfig
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// New builds the HTTP surface for hub.
func New(cfg *config.ServerConfig, hub *signaling.Hub, log *slog.Logger) *Server {
	s := &Server{hub: hub, cfg: cfg, log: log}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		Subprotocols:    signaling.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.AllowsOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// Handler routes /health, /rooms and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("GET /rooms", s.Rooms)
	mux.HandleFunc("/ws", s.ServeWs)
	return mux
}

// HealthCheck reports liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// Rooms returns a JSON snapshot of rooms and identities.
func (s *Server) Rooms(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && s.cfg.AllowsOrigin(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Snapshot()); err != nil {
		s.log.Error("failed to write rooms snapshot", "error", err)
	}
}

// ServeWs upgrades the request and attaches the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := signaling.NewClient(s.hub, conn, signaling.ClientOptions{
		SendBuffer:     s.cfg.SendBuffer,
		MaxMessageSize: s.cfg.MaxMessageSize,
	})

	if err := s.hub.Register(client); err != nil {
		s.log.Warn("rejecting connection", "remote", r.RemoteAddr, "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	// These methods handle the client's lifecycle.
	go client.WritePump()
	go client.ReadPump()
}
