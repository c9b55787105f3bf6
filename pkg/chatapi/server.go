package chatapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/harun/backlog-agent/internal/observability"
	"github.com/rs/zerolog"
)

// SessionHeader carries the conversation identifier in both directions.
const SessionHeader = "X-Session-ID"

// Options configures the chat server
type Options struct {
	Host            string
	Port            int
	AllowAllOrigins bool
	// MaxMessages is the history bound applied before every submission.
	MaxMessages        int
	RateLimit          int
	RateWindow         time.Duration
	SessionIdleTimeout time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Server exposes agent sessions over HTTP
type Server struct {
	options     Options
	registry    *SessionRegistry
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startTime   time.Time
	handler     http.Handler

	mu             sync.Mutex
	server         *http.Server
	isShuttingDown bool
	stopSweeper    chan struct{}
}

// NewServer creates a chat server that builds sessions with factory
func NewServer(options Options, factory SessionFactory, logger zerolog.Logger) (*Server, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if options.Port == 0 {
		options.Port = 5000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateWindow == 0 {
		options.RateWindow = time.Minute
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		options:     options,
		registry:    NewSessionRegistry(factory, options.SessionIdleTimeout),
		rateLimiter: NewRateLimiter(options.RateLimit, options.RateWindow),
		logger:      logger.With().Str("component", "chatapi").Logger(),
		startTime:   time.Now(),
		stopSweeper: make(chan struct{}),
	}
	s.handler = s.routes()

	observability.EnsureRegistered()

	return s, nil
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the session registry
func (s *Server) Sessions() *SessionRegistry {
	return s.registry
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
}

// Start listens on the configured address and serves until Stop is called
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener until Stop is called. After Stop it
// closes listener and returns immediately.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.isShuttingDown {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	go s.sweepSessions()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Msg("Starting chat server")

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("chat server failed: %w", err)
	}
	return nil
}

// Stop rejects new requests and waits for in-flight ones to finish
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.isShuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	server := s.server
	close(s.stopSweeper)
	s.mu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")
	s.rateLimiter.Stop()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown chat server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isShuttingDown
}

func (s *Server) sweepSessions() {
	if s.options.SessionIdleTimeout <= 0 {
		return
	}

	interval := s.options.SessionIdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.registry.Sweep(); removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("Expired idle sessions")
			}
		case <-s.stopSweeper:
			return
		}
	}
}
