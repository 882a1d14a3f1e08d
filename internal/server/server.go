// Package server exposes the central agent over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/delegent/internal/agent"
	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/memory"
)

// Answerer runs one query through the agents.
type Answerer interface {
	RunResult(ctx context.Context, query string) (*agent.Result, error)
}

// Server is the Delegent query service.
type Server struct {
	cfg     config.ServerConfig
	backend string
	agent   Answerer
	memory  memory.Store
	log     *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a server. mem receives the turns of every answered query.
func New(cfg config.ServerConfig, backend string, a Answerer, mem memory.Store, log *logging.Logger) *Server {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Minute
	}
	return &Server{
		cfg:       cfg,
		backend:   backend,
		agent:     a,
		memory:    mem,
		log:       log.Sub("server"),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// sameOrigin admits non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(withJSONFallback(mux), s.log)
}

// Start listens on cfg.Addr and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("backend", s.backend).
		Msg("server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// answer runs query and records the exchange. Nothing is recorded when
// the run fails.
func (s *Server) answer(ctx context.Context, query string) (*agent.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	res, err := s.agent.RunResult(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.memory != nil {
		if err := s.memory.Append(ctx, memory.UserTurn(query), memory.AgentTurn(res.Answer)); err != nil {
			return nil, fmt.Errorf("recording turns: %w", err)
		}
	}
	return res, nil
}
