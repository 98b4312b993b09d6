package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bolt-proto/boltd/auth"
	"github.com/bolt-proto/boltd/backend"
	"github.com/bolt-proto/boltd/internal/chunk"
	"github.com/bolt-proto/boltd/internal/session"
)

// Config is everything Server needs beyond the backend/auth collaborators
// themselves: listen address, TLS, capacity and timeout limits (§6, §11).
type Config struct {
	Addr           string
	TLS            *tls.Config
	MaxSessions    int
	IdleTimeout    time.Duration
	ReapInterval   time.Duration
	MaxMessageSize int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = chunk.DefaultMaxMessageSize
	}
	return c
}

// Server listens for Bolt connections and drives each through connection.run
// until it closes or the server is shut down. Grounded on
// original_source/src/server/builder.rs's BoltServerBuilder, trading that
// reference's builder-pattern configuration for a plain struct literal —
// idiomatic enough in Go that the teacher's own driver config (neo4j/config.go)
// uses the same plain-struct-plus-functional-options shape rather than a
// fluent builder.
type Server struct {
	cfg      Config
	backend  backend.BoltBackend
	auth     auth.Validator
	log      *slog.Logger
	registry *session.Registry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	idCount  atomic.Int64

	metrics *Metrics
}

// Addr returns the listener's bound address once ListenAndServe has
// started listening, or "" before that. Useful in tests that bind to
// ":0" and need the OS-assigned port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func New(cfg Config, be backend.BoltBackend, validator auth.Validator, log *slog.Logger, metrics *Metrics) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		backend:  be,
		auth:     validator,
		log:      log,
		registry: session.NewRegistry(cfg.MaxSessions),
		metrics:  metrics,
	}
}

// ListenAndServe opens the listener and blocks, accepting connections
// until ctx is cancelled. It starts the idle reaper as a background
// goroutine and waits for every in-flight connection to finish before
// returning, so a caller doing `ListenAndServe` then `<-done` gets a
// genuinely graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", "addr", ln.Addr().String())

	reapCtx, cancelReap := context.WithCancel(ctx)
	defer cancelReap()
	go s.registry.RunIdleReaper(reapCtx, s.cfg.ReapInterval, s.cfg.IdleTimeout, func(sess *session.Session) {
		s.log.Info("reaping idle session", "id", sess.ID)
		// Teardown closes the socket, which unblocks that connection's own
		// goroutine out of its blocked read and lets it exit on its own;
		// Unregister just stops the registry from tracking it any further.
		if err := sess.Teardown(context.Background()); err != nil {
			s.log.Warn("error tearing down idle session", "id", sess.ID, "err", err)
		}
		s.registry.Unregister(sess.ID)
	})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	id := conn.RemoteAddr().String() + "#" + strconv.FormatInt(s.idCount.Add(1), 10)
	sess := session.New(id, conn.RemoteAddr().String())
	sess.SetCloser(conn)

	if err := s.registry.Register(sess); err != nil {
		s.log.Warn("rejecting connection at capacity", "remote", conn.RemoteAddr())
		conn.Close()
		if s.metrics != nil {
			s.metrics.ConnectionsRejected.Inc()
		}
		return
	}
	defer s.registry.Unregister(id)

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	c := &connection{
		conn:    conn,
		br:      bufio.NewReader(conn),
		cw:      chunk.NewWriter(conn),
		sess:    sess,
		backend: s.backend,
		auth:    s.auth,
		log:     s.log.With("session", id, "remote", conn.RemoteAddr().String()),
		maxMsg:  s.cfg.MaxMessageSize,
	}
	c.run(ctx)
}

// Close stops accepting new connections; in-flight connections are left
// to finish on their own. Closing the listener unblocks ListenAndServe's
// Accept, which then returns an accept error without waiting for those
// connections; cancelling ListenAndServe's ctx is the path that waits.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}
