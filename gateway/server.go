// Package gateway exposes the flow engine over HTTP: flow CRUD for the
// editor, test and batch execution, health, Prometheus metrics, and a
// websocket stream of execution log lines.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/engine"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/metric"
)

// maxRequestSize bounds request bodies; flow definitions are small
const maxRequestSize = 1 << 20

// ExecutionService is the engine surface the gateway calls
type ExecutionService interface {
	TestExecution(ctx context.Context, flow *flowstore.Flow, itemID string) (*engine.ExecutionResult, error)
	RunBatch(ctx context.Context) (*engine.BatchSummary, error)
}

// FlowStore is the flow persistence surface the gateway calls
type FlowStore interface {
	Create(ctx context.Context, flow *flowstore.Flow) error
	Get(ctx context.Context, id string) (*flowstore.Flow, error)
	Update(ctx context.Context, flow *flowstore.Flow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*flowstore.Flow, error)
	Publish(ctx context.Context, id string) error
	Unpublish(ctx context.Context, id string) error
}

// Config configures the gateway server
type Config struct {
	Addr         string `json:"addr" yaml:"addr"`
	ReadTimeout  int    `json:"read_timeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"write_timeout" yaml:"write_timeout"` // seconds
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "gateway", "Validate", "addr is required")
	}
	return nil
}

// Server is the HTTP gateway
type Server struct {
	config   Config
	engine   ExecutionService
	flows    FlowStore
	registry *metric.Registry
	stream   *LogStream
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a gateway server. The metric registry is optional; when
// nil the /metrics endpoint is not mounted.
func NewServer(cfg Config, eng ExecutionService, flows FlowStore, registry *metric.Registry, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if eng == nil || flows == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("engine and flow store are required"), "gateway", "NewServer", "validate input")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   cfg,
		engine:   eng,
		flows:    flows,
		registry: registry,
		stream:   NewLogStream(logger),
		logger:   logger.With("component", "gateway"),
	}, nil
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(
			s.registry.Prometheus(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	mux.HandleFunc("GET /api/v1/flows", s.handleListFlows)
	mux.HandleFunc("POST /api/v1/flows", s.handleCreateFlow)
	mux.HandleFunc("GET /api/v1/flows/{id}", s.handleGetFlow)
	mux.HandleFunc("PUT /api/v1/flows/{id}", s.handleUpdateFlow)
	mux.HandleFunc("DELETE /api/v1/flows/{id}", s.handleDeleteFlow)
	mux.HandleFunc("POST /api/v1/flows/{id}/publish", s.handlePublishFlow)
	mux.HandleFunc("POST /api/v1/flows/{id}/unpublish", s.handleUnpublishFlow)

	mux.HandleFunc("POST /api/v1/executions/test", s.handleTestExecution)
	mux.HandleFunc("POST /api/v1/executions/batch", s.handleBatch)
	mux.HandleFunc("GET /api/v1/executions/stream", s.stream.HandleSubscribe)

	return mux
}

// Start runs the HTTP server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("server already running"), "gateway", "Start", "validate state")
	}

	readTimeout := time.Duration(s.config.ReadTimeout) * time.Second
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(s.config.WriteTimeout) * time.Second
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}

	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	server := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", "addr", s.config.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.WrapFatal(err, "gateway", "Start", "serve HTTP")
		}
		return nil
	}
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "gateway", "Stop", "shutdown HTTP server")
	}
	s.logger.Info("Gateway stopped")
	return nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Response encoding failed", "error", err)
	}
}

// writeError maps a classified error to an HTTP status with a sanitized
// message; full detail stays in the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
		message = "resource not found"
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
		message = "service temporarily unavailable"
		if strings.Contains(err.Error(), "timeout") {
			status = http.StatusGatewayTimeout
			message = "request timeout"
		}
	}

	s.logger.Error("Request failed", "status", status, "error", err)
	s.writeJSON(w, status, map[string]any{"error": message, "status": status})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
