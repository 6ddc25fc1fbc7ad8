// Package api exposes the agent over HTTP.
//
// Endpoints:
//
//	POST   /v1/query               → run one conversational turn
//	GET    /v1/conversations       → list recent conversations
//	GET    /v1/conversations/{id}  → stored turns of one conversation
//	DELETE /v1/conversations/{id}  → clear one conversation
//	GET    /health                 → liveness probe
//	GET    /ready                  → readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging and recovery middleware
//   - query.go: the query endpoint and its error mapping
//   - conversations.go: conversation endpoints (read and clear via tools)
//   - health.go: health check endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Turns
	// include a generation call, so this is generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the agent's HTTP front door.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	query         *QueryHandler
	conversations *ConversationsHandler
	health        *HealthHandler
}

// NewServer creates a server with all routes registered. The tool invoker
// backs the conversation endpoints; readyCheck backs the readiness probe.
func NewServer(runner QueryRunner, tools ToolInvoker, readyCheck func(ctx context.Context) error, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:           mux,
		logger:        logger,
		query:         NewQueryHandler(runner, logger),
		conversations: NewConversationsHandler(tools, logger),
		health:        NewHealthHandler(readyCheck, logger),
	}

	s.query.RegisterRoutes(mux)
	s.conversations.RegisterRoutes(mux)
	s.health.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, s.recoveryMiddleware, s.loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
