// Package net serves the HTTP surface: session joins, the websocket state
// feed and operational diagnostics.
package net

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"gridrun/server/internal/hub"
	"gridrun/server/internal/sim"
	"gridrun/server/internal/telemetry"
	"gridrun/server/levels/catalog"
	"gridrun/server/logging"
	"gridrun/server/logging/network"
)

// HTTPHandlerConfig carries the observability surfaces the handler reports
// through and the level catalog backing editor spawns by designer id. Nil
// fields fall back to no-op implementations.
type HTTPHandlerConfig struct {
	Log     telemetry.Logger
	Pub     logging.Publisher
	Catalog *catalog.Resolver
}

// Handler binds the hub to its HTTP routes and owns the websocket upgrade
// path.
type Handler struct {
	hub      *hub.Hub
	catalog  *catalog.Resolver
	log      telemetry.Logger
	pub      logging.Publisher
	upgrader websocket.Upgrader
}

// NewHandler constructs the handler without binding routes, for callers that
// compose their own mux.
func NewHandler(h *hub.Hub, cfg HTTPHandlerConfig) *Handler {
	logger := cfg.Log
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	pub := cfg.Pub
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Handler{
		hub:     h,
		catalog: cfg.Catalog,
		log:     logger,
		pub:     pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// NewHTTPHandler builds the full route table around a hub.
func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	handler := NewHandler(h, cfg)
	mux := nethttp.NewServeMux()
	handler.Register(mux)
	return mux
}

// Register binds the handler's routes onto the provided mux.
func (h *Handler) Register(mux *nethttp.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/join", h.handleJoin)
	mux.HandleFunc("/diagnostics", h.handleDiagnostics)
	mux.HandleFunc("/ws", h.handleSocket)
}

func (h *Handler) handleHealthz(w nethttp.ResponseWriter, r *nethttp.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *Handler) handleJoin(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
	}

	join, err := h.hub.Join(req.Nickname)
	if err != nil {
		h.log.Printf("join rejected: %v", err)
		httpError(w, "join rejected", nethttp.StatusServiceUnavailable)
		return
	}

	data, err := json.Marshal(join)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *Handler) handleDiagnostics(w nethttp.ResponseWriter, r *nethttp.Request) {
	payload := struct {
		Status               string                  `json:"status"`
		ServerTime           int64                   `json:"serverTime"`
		Frame                uint64                  `json:"t"`
		SimulationsPerSecond int                     `json:"simulationsPerSecond"`
		Players              []hub.DiagnosticsPlayer `json:"players"`
	}{
		Status:               "ok",
		ServerTime:           time.Now().UnixMilli(),
		Frame:                h.hub.Frame(),
		SimulationsPerSecond: h.hub.Loop().Session().Clock().SimulationsPerSecond(),
		Players:              h.hub.DiagnosticsSnapshot(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *Handler) handleSocket(w nethttp.ResponseWriter, r *nethttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpError(w, "missing token", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("upgrade failed: %v", err)
		return
	}

	remote, err := h.hub.Subscribe(token, conn)
	if err != nil {
		if errors.Is(err, hub.ErrUnknownSession) {
			message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session")
			conn.WriteMessage(websocket.CloseMessage, message)
			conn.Close()
		}
		return
	}

	network.ConnectionOpened(context.Background(), h.pub, h.hub.Frame(), playerRef(remote), network.ConnectionOpenedPayload{
		RemoteAddr: r.RemoteAddr,
		Protocol:   hub.ProtocolVersion,
	}, nil)

	h.serveSession(conn, remote)
}

func playerRef(r *hub.Remote) logging.EntityRef {
	return logging.EntityRef{ID: sim.PlayerEntityID(r.NetID()), Kind: logging.EntityKindPlayer}
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
