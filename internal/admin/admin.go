// Package admin exposes the gateway's HTTP surface: session stats,
// Prometheus metrics, health and the subscriber push channel.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/metrics"
	"github.com/intelcon-group/fleet-gateway/internal/session"
)

// authWait is how long an attached subscriber has to present its token
// before it is dropped.
const authWait = 10 * time.Second

// Handler serves the admin endpoints.
type Handler struct {
	log      *zap.Logger
	cfg      *config.Config
	registry *session.Registry
	hub      *fanout.Hub
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New creates the handler.
func New(log *zap.Logger, cfg *config.Config, registry *session.Registry,
	hub *fanout.Hub, m *metrics.Metrics) *Handler {

	return &Handler{
		log:      log.Named("admin"),
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the chi router for the admin listener.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/jimi/stats", h.handleStats)
	r.Get("/subscribe", h.handleSubscribe)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		h.metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	devices := h.registry.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}

// authMessage is the first message a subscriber must send.
type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := fanout.NewWSSubscriber(conn)
	h.hub.Attach(sub)
	h.metrics.Subscribers.Inc()

	go h.runSubscriber(conn, sub)
}

// runSubscriber performs the token handshake, then reads until the peer
// goes away so the detach is prompt.
func (h *Handler) runSubscriber(conn *websocket.Conn, sub *fanout.WSSubscriber) {
	defer func() {
		h.hub.Detach(sub.ID())
		h.metrics.Subscribers.Dec()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(authWait))

	var auth authMessage
	if err := conn.ReadJSON(&auth); err != nil {
		h.log.Info("subscriber dropped before auth", zap.String("id", sub.ID()), zap.Error(err))
		return
	}

	if auth.Type != "auth" || auth.Token != h.cfg.SubscriberToken || h.cfg.SubscriberToken == "" {
		h.log.Info("subscriber auth rejected", zap.String("id", sub.ID()))
		return
	}

	h.hub.Authenticate(sub.ID())
	h.log.Info("subscriber authenticated", zap.String("id", sub.ID()))

	_ = conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Serve runs the admin HTTP server until the listener fails or the
// process exits.
func (h *Handler) Serve() error {
	h.log.Info("admin listening", zap.String("addr", h.cfg.AdminAddr))
	srv := &http.Server{
		Addr:         h.cfg.AdminAddr,
		Handler:      h.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket pushes are long-lived
	}
	return srv.ListenAndServe()
}
