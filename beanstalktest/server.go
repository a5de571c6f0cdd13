// Package beanstalktest provides loopback beanstalkd peers for tests: a TCP
// server that hands each accepted connection to a Handler, a Peer for
// scripting replies byte by byte, and Fake, a small in-memory beanstalkd.
package beanstalktest

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Zereker/beanstalk"
	"github.com/pkg/errors"
)

// Handler is the interface for handling incoming TCP connections.
// Handle owns the connection and should close it when done.
type Handler interface {
	Handle(conn *net.TCPConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *net.TCPConn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *net.TCPConn) {
	f(conn)
}

// Server is a TCP server that dispatches connections to a Handler and keeps
// track of them so tests can drop them at will.
type Server struct {
	listener *net.TCPListener
	logger   beanstalk.Logger

	mu       sync.Mutex
	shutdown bool
	conns    map[*net.TCPConn]struct{}
	accepted int
	wg       sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger beanstalk.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
		conns:    make(map[*net.TCPConn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewServer starts a server on a loopback port serving handler in the
// background. It panics if no port can be bound.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	s, err := New(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}, opts...)
	if err != nil {
		panic("beanstalktest: failed to listen: " + err.Error())
	}
	go func() {
		_ = s.Serve(context.Background(), handler)
	}()
	return s
}

// Serve starts accepting connections and dispatching them to the handler.
// It blocks until the context is canceled, the server is closed or an
// unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.wg.Add(1)
	defer s.wg.Done()
	s.logger.Debug("test server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Debug("test server stopped", "addr", s.listener.Addr())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		_ = conn.SetNoDelay(true)
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			handler.Handle(conn)
		}()
	}
}

func (s *Server) track(conn *net.TCPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
	s.accepted++
}

func (s *Server) untrack(conn *net.TCPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Accepted returns how many connections were accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// DropConnections closes every open connection from the server side and
// returns how many were closed. The listener keeps accepting.
func (s *Server) DropConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	return len(s.conns)
}

// StopListening closes the listener but leaves open connections alone, so a
// client that loses its connection afterwards cannot reconnect.
func (s *Server) StopListening() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	return s.listener.Close()
}

// Close stops accepting, drops every connection and waits for the handlers
// to return.
func (s *Server) Close() error {
	err := s.StopListening()
	s.DropConnections()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listener's address in host:port form.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
