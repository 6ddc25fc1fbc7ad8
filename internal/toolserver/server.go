// Package toolserver hosts MCP tool servers over HTTP.
//
// Each satellite process (document retrieval, conversation history) builds a
// Server, registers its tools on the embedded MCP server, and calls Run. The
// agent connects to the /sse endpoint; the deployment layer probes /health
// and /ready.
package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Config holds tool-server settings.
type Config struct {
	// Name and Version identify this server to MCP clients.
	Name    string
	Version string

	// Addr is the listen address.
	Addr string

	// ReadyCheck, when set, backs the /ready probe. A nil check means the
	// server is ready as soon as it listens.
	ReadyCheck func(ctx context.Context) error

	Logger log.Logger
}

// Server serves one MCP tool server over SSE plus health probes.
type Server struct {
	mcpServer *mcp.Server
	cfg       Config
	logger    log.Logger
}

// New creates a server. Tools are registered on MCP() before Run.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	return &Server{mcpServer: mcpServer, cfg: cfg, logger: logger}, nil
}

// MCP exposes the embedded MCP server for tool registration.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// The SSE handler owns everything under /sse, including the
	// per-session message endpoints it hands out.
	sse := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcpServer }, nil)
	mux.Handle("/sse", sse)

	mux.HandleFunc("GET /health", s.liveness)
	mux.HandleFunc("GET /ready", s.readiness)

	return chain(mux, s.recoveryMiddleware, s.loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting tool server",
			"name", s.cfg.Name,
			"addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down tool server", "name", s.cfg.Name)
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

// liveness reports the process is alive.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.Name,
		"version": s.cfg.Version,
	})
}

// readiness reports whether the server's backing dependency is reachable.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ReadyCheck != nil {
		if err := s.cfg.ReadyCheck(r.Context()); err != nil {
			s.logger.Error("readiness check failed", "error", err)
			writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

// loggingMiddleware logs requests with method, path, and duration. SSE
// streams are long-lived, so the log line lands when the stream closes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// chain applies middleware in order: first middleware wraps outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// writeJSON writes a JSON response, buffering first so headers go out only
// after a successful encode.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
}
