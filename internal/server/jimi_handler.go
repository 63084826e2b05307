package server

import (
	"encoding/hex"
	"errors"
	"io"
	"math"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/framing"
	"github.com/intelcon-group/fleet-gateway/internal/poller"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/encoder"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// Accepted digit counts for a filtered BCD identity. Full IMEIs decode to
// 15-16 digits behind a leading zero nibble; units with padded identity
// fields come in shorter and are kept as long as enough digits survive to
// tell devices apart.
const (
	minIMEIDigits = 10
	maxIMEIDigits = 16
)

type jimiHandler struct {
	srv *Server
	log *zap.Logger
}

func newJimiHandler(s *Server) *jimiHandler {
	return &jimiHandler{srv: s, log: s.log.Named("jimi")}
}

// Handle implements handler. It owns the connection's frame reader and
// session for the life of the connection.
func (h *jimiHandler) Handle(conn net.Conn, lst config.Listener) {
	sess := session.New(conn, lst.Port)
	log := h.log.With(zap.String("remote", sess.Remote()), zap.Int("port", lst.Port))

	defer func() {
		sess.Close()
		h.srv.registry.Remove(sess)
		log.Info("session closed", zap.String("device", sess.Identifier()))
	}()

	reader := framing.NewJimiReader()
	// The reader has already verified checksums on everything it yields.
	dec := jimi.NewDecoder(jimi.WithSkipCRC(), jimi.WithAllowUnknownProtocols())
	enc := encoder.New()

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

func (h *jimiHandler) processFrame(log *zap.Logger, sess *session.Session,
	dec *jimi.Decoder, enc *encoder.Encoder, lst config.Listener, raw []byte) {

	// The decoder runs lenient: short payloads downgrade to a generic
	// packet so the device still gets an acknowledgement. Anything that
	// errors here is structurally unusable.
	pkt, err := dec.Decode(raw)
	if err != nil {
		log.Warn("decode error", zap.Error(err), zap.String("frame", hex.EncodeToString(raw)))
		return
	}

	sess.ObserveSerial(pkt.SerialNumber())

	switch p := pkt.(type) {
	case *packet.LoginPacket:
		h.handleLogin(log, sess, enc, p)

	case *packet.LocationPacket:
		h.handleLocation(log, sess, lst, p)

	case *packet.HeartbeatPacket:
		h.writeAck(log, sess, enc.HeartbeatAck(p.ProtocolNumber(), p.SerialNumber()))

	case *packet.TimeRequestPacket:
		h.writeAck(log, sess, enc.TimeResponse(p.SerialNumber(), time.Now()))

	default:
		if protocol.NoReply(pkt.ProtocolNumber()) {
			log.Debug("no-reply frame",
				zap.Uint8("protocol", pkt.ProtocolNumber()),
				zap.String("device", sess.Identifier()))
			return
		}
		h.writeAck(log, sess, enc.Ack(pkt.ProtocolNumber(), pkt.SerialNumber()))
	}
}

func (h *jimiHandler) handleLogin(log *zap.Logger, sess *session.Session,
	enc *encoder.Encoder, p *packet.LoginPacket) {

	if sess.LoggedIn() {
		log.Info("duplicate login", zap.String("imei", sess.IMEI()))
		return
	}

	if len(p.IMEI) < minIMEIDigits || len(p.IMEI) > maxIMEIDigits {
		log.Warn("login rejected: malformed IMEI",
			zap.String("imei", p.IMEI), zap.Int("digits", len(p.IMEI)))
		return
	}

	sess.Login(p.IMEI)

	// The login ACK must reach the wire before the first poll can fire.
	h.writeAck(log, sess, enc.LoginAck(p.SerialNumber()))

	h.srv.registry.Add(sess)
	log.Info("device logged in",
		zap.String("imei", p.IMEI),
		zap.Uint16("type_id", p.TypeID),
		zap.Uint16("serial", p.SerialNumber()))

	poll := poller.New(log.With(zap.String("imei", p.IMEI)), func() error {
		frame := enc.RequestLocation(sess.NextSerial())
		if err := sess.WriteFrame(frame); err != nil {
			return err
		}
		h.srv.metrics.PollsSent.Inc()
		return nil
	})

	if sess.AttachPoller(poll) {
		poll.Start(poller.SettleDelay)
	} else {
		poll.Stop()
	}
}

func (h *jimiHandler) handleLocation(log *zap.Logger, sess *session.Session,
	lst config.Listener, p *packet.LocationPacket) {

	lon := p.Coordinates.SignedLongitude()
	if lst.HemisphereWest {
		lon = -math.Abs(lon)
	}

	fix := telemetry.Fix{
		IMEI:       sess.IMEI(),
		Latitude:   p.Coordinates.SignedLatitude(),
		Longitude:  lon,
		Timestamp:  p.DateTime,
		Speed:      float64(p.Speed),
		Course:     float64(p.CourseStatus.Course),
		Satellites: int(p.Satellites),
		Positioned: p.IsPositioned(),
		RealTime:   p.IsRealTime(),
		Protocol:   telemetry.ProtocolJimi,
		Serial:     p.SerialNumber(),
		SourcePort: lst.Port,
	}
	if p.Cell.IsValid() {
		cell := p.Cell
		fix.Cell = &cell
	}

	valid := telemetry.Normalize([]telemetry.Fix{fix})
	if len(valid) == 0 {
		// An invalid fix is dropped silently and does not count as the
		// device responding autonomously.
		h.srv.metrics.FixesRejected.WithLabelValues(lst.Family).Inc()
		return
	}

	fix = valid[0]
	sess.MarkFix(fix.Timestamp)

	if !h.srv.dedup.Observe(fix) {
		h.srv.metrics.FixesDeduped.WithLabelValues(lst.Family).Inc()
		return
	}

	h.srv.metrics.FixesEmitted.WithLabelValues(lst.Family).Inc()
	h.srv.hub.Publish(fanout.NewFixMessage(fix))

	log.Debug("fix emitted",
		zap.String("imei", fix.IMEI),
		zap.Float64("lat", fix.Latitude),
		zap.Float64("lon", fix.Longitude),
		zap.Time("ts", fix.Timestamp))
}

func (h *jimiHandler) writeAck(log *zap.Logger, sess *session.Session, frame []byte) {
	if err := sess.WriteFrame(frame); err != nil {
		if !errors.Is(err, session.ErrClosed) {
			log.Info("ack write failed", zap.String("device", sess.Identifier()), zap.Error(err))
		}
		return
	}
	h.srv.metrics.AcksWritten.WithLabelValues(config.FamilyJimi).Inc()
}

// isExpectedClose reports whether the read error is a normal end of
// session rather than something worth logging loudly.
func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
