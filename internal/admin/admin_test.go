package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/metrics"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
)

func newTestHandler(t *testing.T) (*Handler, *fanout.Hub, *session.Registry) {
	t.Helper()

	cfg := config.Default()
	cfg.SubscriberToken = "s3cret"

	hub := fanout.NewHub(zap.NewNop())
	registry := session.NewRegistry()
	h := New(zap.NewNop(), cfg, registry, hub, metrics.New())

	return h, hub, registry
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsEmpty(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jimi/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Count   int             `json:"count"`
		Devices []session.Stats `json:"devices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Devices)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dialSubscriber(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSubscribeAuthFlow(t *testing.T) {
	h, hub, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialSubscriber(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "s3cret"}))

	// Once authenticated, published fixes reach the socket.
	fix := telemetry.Fix{
		IMEI:       "356938035643809",
		Latitude:   -12.046374,
		Longitude:  -77.042793,
		Timestamp:  time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC),
		Positioned: true,
		Protocol:   telemetry.ProtocolRuptela,
	}

	// Re-publish on a short tick until the handshake lands; a websocket
	// read deadline error is terminal, so only one blocking read runs.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				hub.Publish(fanout.NewFixMessage(fix))
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg fanout.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, fanout.TypeGPSData, msg.Type)
}

func TestSubscribeBadTokenGetsNothing(t *testing.T) {
	h, hub, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialSubscriber(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "wrong"}))

	// The rejected subscriber is detached; nothing is ever delivered.
	fix := telemetry.Fix{IMEI: "356938035643809", Positioned: true, Protocol: telemetry.ProtocolRuptela}
	hub.Publish(fanout.NewFixMessage(fix))

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg fanout.Message
	err := conn.ReadJSON(&msg)
	assert.Error(t, err)
}
