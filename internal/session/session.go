// Package session holds the per-connection device state and the process
// registry the admin surface reads.
package session

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/intelcon-group/fleet-gateway/internal/poller"
)

// ErrClosed is returned by WriteFrame after the session has closed. No
// frame is ever written to a closed socket.
var ErrClosed = errors.New("session closed")

// Session is the state of one device connection. The connection worker
// owns all mutable fields; the poll scheduler and the admin snapshot only
// reach them through the methods here, which take the session lock.
type Session struct {
	conn        net.Conn
	remote      string
	sourcePort  int
	connectedAt time.Time

	mu           sync.Mutex
	imei         string
	loggedIn     bool
	lastSerial   uint16
	nextSerial   uint16
	lastFix      time.Time
	packets      uint64
	fixesEmitted uint64
	closed       bool
	poll         *poller.Poller

	// writeMu serializes socket writes between the connection worker's
	// ACK path and the poll scheduler. Frames are atomic on the wire.
	writeMu sync.Mutex
}

// New creates a session for an accepted connection.
func New(conn net.Conn, sourcePort int) *Session {
	return &Session{
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		sourcePort:  sourcePort,
		connectedAt: time.Now(),
	}
}

// Identifier returns the IMEI once known, the remote address before that.
func (s *Session) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.imei != "" {
		return s.imei
	}
	return s.remote
}

// IMEI returns the device identity, empty before login.
func (s *Session) IMEI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imei
}

// Remote returns the peer address.
func (s *Session) Remote() string {
	return s.remote
}

// SourcePort returns the listener port the device connected to.
func (s *Session) SourcePort() int {
	return s.sourcePort
}

// Login stamps the device identity and marks the session logged in.
// The IMEI is immutable once set: a duplicate login keeps the original
// and reports false.
func (s *Session) Login(imei string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedIn {
		return false
	}
	s.imei = imei
	s.loggedIn = true
	return true
}

// LoggedIn reports whether login completed.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// ObserveSerial records the serial of a received frame.
func (s *Session) ObserveSerial(serial uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSerial = serial
	s.packets++
}

// CountPacket increments the received-frame counter for sessions whose
// protocol carries no frame serial.
func (s *Session) CountPacket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
}

// NextSerial draws the next outbound serial, monotonically increasing.
func (s *Session) NextSerial() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSerial++
	return s.nextSerial
}

// MarkFix records a valid fix and notifies the poll scheduler if any.
func (s *Session) MarkFix(t time.Time) {
	s.mu.Lock()
	s.lastFix = time.Now()
	s.fixesEmitted++
	poll := s.poll
	s.mu.Unlock()

	if poll != nil {
		poll.NotifyFix(t)
	}
}

// AttachPoller installs the session's poll scheduler. At most one exists;
// a second attach is rejected.
func (s *Session) AttachPoller(p *poller.Poller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poll != nil || s.closed {
		return false
	}
	s.poll = p
	return true
}

// Poller returns the attached scheduler, nil for Ruptela sessions.
func (s *Session) Poller() *poller.Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll
}

// WriteFrame writes one frame to the device socket. Writes are serialized
// and refused after close.
func (s *Session) WriteFrame(frame []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.Write(frame)
	return err
}

// Close marks the session closed, stops the poll scheduler and closes the
// socket. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	poll := s.poll
	s.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	_ = s.conn.Close()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats is the admin snapshot of one session.
type Stats struct {
	IMEI         string    `json:"imei"`
	Remote       string    `json:"remote"`
	SourcePort   int       `json:"source_port"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastFix      time.Time `json:"last_fix,omitempty"`
	Packets      uint64    `json:"packets"`
	FixesEmitted uint64    `json:"fixes_emitted"`
	PollPhase    string    `json:"poll_phase,omitempty"`
}

// Snapshot captures the session counters for the admin surface.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		IMEI:         s.imei,
		Remote:       s.remote,
		SourcePort:   s.sourcePort,
		ConnectedAt:  s.connectedAt,
		LastFix:      s.lastFix,
		Packets:      s.packets,
		FixesEmitted: s.fixesEmitted,
	}
	if s.poll != nil {
		st.PollPhase = s.poll.Phase().String()
	}
	return st
}
