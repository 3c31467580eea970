// Package gateway exposes the agent runtime over HTTP and WebSocket.
//
// Every JSON endpoint replies with the same envelope: {success, data}
// on the happy path, {success: false, error} otherwise, both stamped
// with a timestamp.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagehand-ai/stagehand/internal/agent"
	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/internal/mcp"
	"github.com/stagehand-ai/stagehand/internal/metrics"
	"github.com/stagehand-ai/stagehand/internal/sessions"
	"github.com/stagehand-ai/stagehand/internal/tools"
)

const shutdownTimeout = 5 * time.Second

// HealthChecker probes the model backend for the health endpoint.
type HealthChecker interface {
	CheckHealth(ctx context.Context) llm.Health
}

// Config holds the listener settings.
type Config struct {
	Addr     string
	SafeMode bool
}

// Deps wires the runtime components into the gateway.
type Deps struct {
	LLM          HealthChecker
	Registry     *tools.Registry
	Agent        *agent.Agent
	Orchestrator *agent.Orchestrator
	Sessions     *sessions.Store
	Bus          *events.Bus
	Metrics      *metrics.Store
	MCP          *mcp.Manager
	Logger       *slog.Logger
}

// Server is the HTTP/WebSocket front of the runtime.
type Server struct {
	cfg    Config
	logger *slog.Logger

	llm          HealthChecker
	registry     *tools.Registry
	agent        *agent.Agent
	orchestrator *agent.Orchestrator
	sessions     *sessions.Store
	bus          *events.Bus
	metrics      *metrics.Store
	mcp          *mcp.Manager

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a server over the given dependencies.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		logger:       logger.With("component", "gateway"),
		llm:          deps.LLM,
		registry:     deps.Registry,
		agent:        deps.Agent,
		orchestrator: deps.Orchestrator,
		sessions:     deps.Sessions,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		mcp:          deps.MCP,
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics/prometheus", promhttp.Handler())

	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/permissions/{role}", s.handlePermissions)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/metrics", s.handleGetMetrics)
	mux.HandleFunc("DELETE /api/metrics", s.handleResetMetrics)

	mux.HandleFunc("GET /api/mcp/servers", s.handleListServers)
	mux.HandleFunc("POST /api/mcp/servers", s.handleAddServer)
	mux.HandleFunc("PATCH /api/mcp/servers/{id}", s.handlePatchServer)
	mux.HandleFunc("DELETE /api/mcp/servers/{id}", s.handleDeleteServer)
	mux.HandleFunc("POST /api/mcp/servers/{id}/reconnect", s.handleReconnectServer)
	mux.HandleFunc("GET /api/mcp/tools", s.handleFederatedTools)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Start binds the listener and begins serving in the background. The
// port is bound before Start returns, so callers may begin slow work
// (like connecting tool servers) knowing requests are already accepted.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Timestamp: time.Now()})
}

func (s *Server) respondError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, envelope{Error: fmt.Sprintf(format, args...), Timestamp: time.Now()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
