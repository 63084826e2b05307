// Package server accepts tracker connections on the configured ports and
// runs one worker per connection. Each port is tagged with a protocol
// family; the worker owns the connection's frame reader and session.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/metrics"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
)

// handler processes the connections of one protocol family.
type handler interface {
	Handle(conn net.Conn, lst config.Listener)
}

// Server is the multi-port listener.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	hub      *fanout.Hub
	registry *session.Registry
	dedup    *telemetry.DedupWindow
	metrics  *metrics.Metrics

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	closed    bool

	wg sync.WaitGroup
}

// New creates a server. Start binds the ports.
func New(cfg *config.Config, log *zap.Logger, hub *fanout.Hub,
	registry *session.Registry, dedup *telemetry.DedupWindow, m *metrics.Metrics) *Server {

	return &Server{
		cfg:      cfg,
		log:      log.Named("server"),
		hub:      hub,
		registry: registry,
		dedup:    dedup,
		metrics:  m,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds every configured port and launches its accept loop.
func (s *Server) Start() error {
	for _, lst := range s.cfg.Listeners {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", lst.Port))
		if err != nil {
			s.Shutdown()
			return fmt.Errorf("listen port %d: %w", lst.Port, err)
		}

		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		s.log.Info("listening",
			zap.Int("port", lst.Port),
			zap.String("family", lst.Family),
			zap.Bool("hemisphere_west", lst.HemisphereWest))

		s.wg.Add(1)
		go s.acceptLoop(ln, lst)
	}

	return nil
}

// Shutdown closes the listeners and every open connection, then waits for
// the workers to drain.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener, lst config.Listener) {
	defer s.wg.Done()

	h := s.handlerFor(lst)
	sem := make(chan struct{}, s.cfg.MaxConnsPerPort)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", zap.Int("port", lst.Port), zap.Error(err))
			continue
		}

		select {
		case sem <- struct{}{}:
		default:
			s.log.Warn("connection limit reached, refusing",
				zap.Int("port", lst.Port), zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		s.configureConn(conn)
		s.track(conn)

		s.metrics.ActiveSessions.WithLabelValues(lst.Family).Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				<-sem
				s.untrack(conn)
				s.metrics.ActiveSessions.WithLabelValues(lst.Family).Dec()
			}()
			defer s.recoverPanic(lst, conn)

			h.Handle(conn, lst)
		}()
	}
}

// recoverPanic keeps a programming bug in one worker from taking the
// process down; the connection is sacrificed and the bug logged.
func (s *Server) recoverPanic(lst config.Listener, conn net.Conn) {
	if r := recover(); r != nil {
		s.log.Error("connection worker panic",
			zap.Int("port", lst.Port),
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Any("panic", r),
			zap.Stack("stack"))
		_ = conn.Close()
	}
}

func (s *Server) configureConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(s.cfg.KeepAlivePeriod())
	}
}

func (s *Server) handlerFor(lst config.Listener) handler {
	switch lst.Family {
	case config.FamilyJimi:
		return newJimiHandler(s)
	case config.FamilyRuptelaFMB, config.FamilyRuptelaECO:
		return newRuptelaHandler(s)
	default:
		return newBypassHandler(s)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// readLoop drives a connection: it refreshes the idle deadline before
// each read and feeds the bytes to process until the peer goes away.
func (s *Server) readLoop(conn net.Conn, process func([]byte) error) error {
	buf := make([]byte, 1024)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout()))

		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		if err := process(buf[:n]); err != nil {
			return err
		}
	}
}
