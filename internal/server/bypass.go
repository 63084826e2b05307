package server

import (
	"encoding/hex"
	"net"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
)

// bypassHandler is the log-only family: bytes are hex-logged and
// discarded, nothing is acknowledged. Used to observe unidentified
// hardware before a real handler exists for it.
type bypassHandler struct {
	srv *Server
	log *zap.Logger
}

func newBypassHandler(s *Server) *bypassHandler {
	return &bypassHandler{srv: s, log: s.log.Named("bypass")}
}

// Handle implements handler.
func (h *bypassHandler) Handle(conn net.Conn, lst config.Listener) {
	log := h.log.With(zap.String("remote", conn.RemoteAddr().String()), zap.Int("port", lst.Port))
	log.Info("bypass connection opened")

	err := h.srv.readLoop(conn, func(data []byte) error {
		log.Debug("bypass data", zap.Int("len", len(data)), zap.String("hex", hex.EncodeToString(data)))
		return nil
	})

	if err != nil && !isExpectedClose(err) {
		log.Info("read error", zap.Error(err))
	}
	log.Info("bypass connection closed")
}
