package fanout

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// ErrSlowSubscriber marks a subscriber whose outbound queue stayed full.
var ErrSlowSubscriber = errors.New("subscriber queue full")

const (
	// outQueueSize bounds the per-subscriber outbound queue. A subscriber
	// that cannot drain this many messages is not writable.
	outQueueSize = 64

	writeWait = 10 * time.Second
)

// WSSubscriber adapts a websocket connection to the Subscriber interface.
// Writes are decoupled from the hub through a bounded queue drained by a
// single writer goroutine, so a stalled peer never blocks Publish.
type WSSubscriber struct {
	id        string
	conn      *websocket.Conn
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSSubscriber wraps an upgraded websocket connection and starts its
// writer. The caller attaches it to the hub.
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	s := &WSSubscriber{
		id:   xid.New().String(),
		conn: conn,
		out:  make(chan Message, outQueueSize),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// ID implements Subscriber.
func (s *WSSubscriber) ID() string {
	return s.id
}

// Send implements Subscriber. It never blocks: a full queue reports the
// subscriber unwritable and the hub detaches it.
func (s *WSSubscriber) Send(msg Message) error {
	select {
	case <-s.done:
		return errors.New("subscriber closed")
	case s.out <- msg:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close implements Subscriber.
func (s *WSSubscriber) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.conn.Close()
}

func (s *WSSubscriber) writePump() {
	defer s.conn.Close()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
