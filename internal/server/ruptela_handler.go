package server

import (
	"encoding/hex"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/framing"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
	"github.com/intelcon-group/fleet-gateway/pkg/ruptela"
)

type ruptelaHandler struct {
	srv *Server
	log *zap.Logger
}

func newRuptelaHandler(s *Server) *ruptelaHandler {
	return &ruptelaHandler{srv: s, log: s.log.Named("ruptela")}
}

// Handle implements handler.
func (h *ruptelaHandler) Handle(conn net.Conn, lst config.Listener) {
	sess := session.New(conn, lst.Port)
	log := h.log.With(zap.String("remote", sess.Remote()), zap.Int("port", lst.Port))

	defer func() {
		sess.Close()
		h.srv.registry.Remove(sess)
		log.Info("session closed", zap.String("device", sess.Identifier()))
	}()

	reader := framing.NewRuptelaReader()
	dec := ruptela.NewDecoder()
	enc := ruptela.NewEncoder()

	err := h.srv.readLoop(conn, func(data []byte) error {
		frames, ferr := reader.Push(data)
		if ferr != nil {
			h.srv.metrics.FramingErrors.WithLabelValues(lst.Family).Inc()
			var fe *framing.Error
			if errors.As(ferr, &fe) && !fe.Recoverable {
				return ferr
			}
			log.Warn("framing error", zap.Error(ferr))
		}

		for _, raw := range frames {
			h.srv.metrics.FramesDecoded.WithLabelValues(lst.Family).Inc()
			h.processFrame(log, sess, dec, enc, lst, raw)
		}
		return nil
	})

	if err != nil && !isExpectedClose(err) {
		log.Info("read error", zap.String("device", sess.Identifier()), zap.Error(err))
	}
}

func (h *ruptelaHandler) processFrame(log *zap.Logger, sess *session.Session,
	dec *ruptela.Decoder, enc *ruptela.Encoder, lst config.Listener, raw []byte) {

	msg, err := dec.Decode(raw)
	if err != nil {
		// The frame reader verified length and CRC; a decode failure here
		// is a malformed header and there is nothing to acknowledge.
		log.Warn("decode error", zap.Error(err), zap.String("frame", hex.EncodeToString(raw)))
		return
	}

	// Ruptela has no login command; the first frame's IMEI stamps the
	// session.
	if !sess.LoggedIn() {
		sess.Login(msg.DeviceIMEI())
		h.srv.registry.Add(sess)
		log.Info("device identified", zap.String("imei", msg.DeviceIMEI()))
	}
	sess.CountPacket()

	switch m := msg.(type) {
	case *ruptela.RecordsMessage:
		h.handleRecords(log, sess, enc, lst, m)

	case *ruptela.IdentificationMessage:
		h.handleIdentification(log, sess, enc, lst, m)

	case *ruptela.HeartbeatMessage:
		h.writeAck(log, sess, enc.HeartbeatAck(), lst)

	case *ruptela.UnknownMessage:
		// No response command is defined for unrecognized frames.
		log.Debug("unknown command",
			zap.Uint8("command", m.Command()),
			zap.String("imei", m.DeviceIMEI()),
			zap.Int("body_len", len(m.Body)))
	}
}

func (h *ruptelaHandler) handleRecords(log *zap.Logger, sess *session.Session,
	enc *ruptela.Encoder, lst config.Listener, m *ruptela.RecordsMessage) {

	fixes := make([]telemetry.Fix, 0, len(m.Records))
	for _, rec := range m.Records {
		fixes = append(fixes, telemetry.Fix{
			IMEI:       m.DeviceIMEI(),
			Latitude:   rec.Latitude,
			Longitude:  rec.Longitude,
			Timestamp:  rec.Timestamp,
			Speed:      float64(rec.Speed),
			Course:     rec.Angle,
			Altitude:   rec.Altitude,
			HDOP:       rec.HDOP,
			Satellites: int(rec.Satellites),
			Positioned: true,
			RealTime:   true,
			Protocol:   telemetry.ProtocolRuptela,
			SourcePort: lst.Port,
			IO:         rec.IO,
			EventID:    rec.EventID,
		})
	}

	valid := telemetry.Normalize(fixes)
	rejected := len(fixes) - len(valid)
	if rejected > 0 {
		h.srv.metrics.FixesRejected.WithLabelValues(lst.Family).Add(float64(rejected))
	}

	// The device re-sends on a negative acknowledgement; positive means at
	// least one record survived validation, even if the window later
	// suppresses it as a duplicate.
	h.writeAck(log, sess, enc.RecordsAck(len(valid) > 0), lst)

	for _, fix := range telemetry.Consolidate(valid) {
		sess.MarkFix(fix.Timestamp)

		if !h.srv.dedup.Observe(fix) {
			h.srv.metrics.FixesDeduped.WithLabelValues(lst.Family).Inc()
			continue
		}

		h.srv.metrics.FixesEmitted.WithLabelValues(lst.Family).Inc()
		h.srv.hub.Publish(fanout.NewFixMessage(fix))
	}

	log.Debug("records batch",
		zap.String("imei", m.DeviceIMEI()),
		zap.Int("records", len(m.Records)),
		zap.Int("valid", len(valid)),
		zap.Uint8("records_left", m.RecordsLeft))
}

func (h *ruptelaHandler) handleIdentification(log *zap.Logger, sess *session.Session,
	enc *ruptela.Encoder, lst config.Listener, m *ruptela.IdentificationMessage) {

	// Devices are authorized by default; rejection with a back-off delay
	// is an operator policy hook, not a runtime decision the gateway
	// takes on its own.
	var frame []byte
	if m.Command() == ruptela.CmdDynamicIdentification {
		frame = enc.DynamicIdentificationAck(true, 0)
	} else {
		frame = enc.IdentificationAck(true, 0)
	}
	h.writeAck(log, sess, frame, lst)

	log.Info("device identification",
		zap.String("imei", m.DeviceIMEI()),
		zap.Uint8("device_type", m.DeviceType),
		zap.Uint16("firmware", m.Firmware),
		zap.String("imsi", m.IMSI))
}

func (h *ruptelaHandler) writeAck(log *zap.Logger, sess *session.Session, frame []byte, lst config.Listener) {
	if err := sess.WriteFrame(frame); err != nil {
		if !errors.Is(err, session.ErrClosed) {
			log.Info("ack write failed", zap.String("device", sess.Identifier()), zap.Error(err))
		}
		return
	}
	h.srv.metrics.AcksWritten.WithLabelValues(lst.Family).Inc()
}
