// Package server constructs and runs the connection acceptor, which binds the
// listening socket and hands every accepted connection to the worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts TCP connections and serves each one on a pool worker. The
// accept loop never runs handler code itself.
type Server struct {
	cfg     Config
	pool    *Pool
	handler *Handler
	log     *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
}

// NewServer validates cfg and starts the worker pool. A nil logger falls
// back to the logrus standard logger.
func NewServer(cfg Config, logger *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "server")

	pool, err := NewPool(cfg.PoolSize,
		WithQueueLimit(cfg.QueueLimit),
		WithPoolLogger(logger.WithField("component", "pool")),
	)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		pool:    pool,
		handler: NewHandler(cfg),
		log:     entry,
	}, nil
}

// Listen binds the listening socket. A bind failure is a startup error and
// is not retried.
func (s *Server) Listen() error {
	lc := net.ListenConfig{Control: listenControl(s.cfg.ReusePort)}

	ln, err := lc.Listen(context.Background(), s.cfg.Network(), s.cfg.Address())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Address(), err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"address": ln.Addr().String(),
		"workers": s.pool.Size(),
	}).Info("Listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed. Failed accepts
// are logged and retried with a growing pause; they never stop the loop.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			backoff = nextBackoff(backoff)
			s.log.WithError(err).Errorf("Accept failed; retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}

		backoff = 0
		s.dispatch(conn)
	}
}

// ListenAndServe binds the configured address and runs the accept loop.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// dispatch wraps conn in a task and submits it. A connection the pool
// refuses is closed straight away.
func (s *Server) dispatch(conn net.Conn) {
	entry := s.log.WithFields(logrus.Fields{
		"conn":   uuid.NewString(),
		"remote": conn.RemoteAddr().String(),
	})

	err := s.pool.Submit(func() {
		s.serveConn(conn, entry)
	})
	if err != nil {
		entry.WithError(err).Warn("Connection rejected")
		if cerr := conn.Close(); !isExpectedCloseError(cerr) {
			entry.WithError(cerr).Warn("Error closing rejected connection")
		}
	}
}

func (s *Server) serveConn(conn net.Conn, entry *logrus.Entry) {
	start := time.Now()

	if err := s.handler.ServeConn(conn); err != nil {
		if errors.Is(err, ErrEmptyRequest) {
			entry.Debug("Connection closed without a request")
			return
		}
		if isExpectedCloseError(err) {
			entry.WithError(err).Debug("Peer went away before the response completed")
			return
		}
		entry.WithError(err).Warn("Request failed")
		return
	}

	entry.WithField("duration", time.Since(start)).Debug("Request served")
}

// Shutdown closes the listener and waits up to timeout for queued and
// in-flight connections to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Shutting down server...")
	s.closed.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
	}
	if err := s.pool.Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("drain worker pool: %w", err))
	}

	return errors.Join(errs...)
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}
