// Package api implements the HTTP API.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/sanjeevni-ai/sanjeevni/internal/agent"
	"github.com/sanjeevni-ai/sanjeevni/internal/buildinfo"
	"github.com/sanjeevni-ai/sanjeevni/internal/connwatch"
	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
	"github.com/sanjeevni-ai/sanjeevni/internal/telemetry"
	"github.com/sanjeevni-ai/sanjeevni/internal/usage"
)

// Prefix is the path prefix of every API route.
const Prefix = "/api/v1"

// DefaultMaxInflight bounds concurrently handled messages.
const DefaultMaxInflight = 16

// Agent answers user messages.
type Agent interface {
	Handle(ctx context.Context, req agent.Request) (*agent.Result, error)
	// Delete removes a conversation, waiting for any message in progress.
	Delete(ctx context.Context, conversationID string) (bool, error)
}

// UsageSummarizer aggregates recorded token usage.
type UsageSummarizer interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// HealthReporter reports the reachability of external dependencies.
type HealthReporter interface {
	Statuses() []connwatch.Status
	Ready() bool
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int

	agent     Agent
	store     memory.Store
	usage     UsageSummarizer
	health    HealthReporter
	presenter Presenter
	inflight  *semaphore.Weighted
	service   string
	title     string

	upgrader websocket.Upgrader
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, a Agent, store memory.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		agent:     a,
		store:     store,
		presenter: DefaultPresenter{},
		inflight:  semaphore.NewWeighted(DefaultMaxInflight),
		title:     buildinfo.Title,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "api"),
	}
}

// SetUsageStore enables the usage endpoint.
func (s *Server) SetUsageStore(u UsageSummarizer) {
	s.usage = u
}

// SetHealth adds dependency status to the health endpoint.
func (s *Server) SetHealth(h HealthReporter) {
	s.health = h
}

// SetPresenter replaces the presenter that fills presentation fields.
func (s *Server) SetPresenter(p Presenter) {
	s.presenter = p
}

// SetMaxInflight bounds how many messages are handled at once. Requests
// beyond the bound wait until a slot frees or the client gives up.
func (s *Server) SetMaxInflight(n int) {
	if n <= 0 {
		n = DefaultMaxInflight
	}
	s.inflight = semaphore.NewWeighted(int64(n))
}

// SetTelemetry wraps the handler with OpenTelemetry server spans named
// after service.
func (s *Server) SetTelemetry(service string) {
	s.service = service
}

// SetTitle sets the title reported by the health endpoint.
func (s *Server) SetTitle(title string) {
	if title != "" {
		s.title = title
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+Prefix+"/conversations", s.handleConversationCreate)
	mux.HandleFunc("GET "+Prefix+"/conversations", s.handleConversationList)
	mux.HandleFunc("GET "+Prefix+"/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("DELETE "+Prefix+"/conversations/{id}", s.handleConversationDelete)
	mux.HandleFunc("POST "+Prefix+"/conversations/{id}/messages", s.handleMessage)
	mux.HandleFunc("GET "+Prefix+"/conversations/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET "+Prefix+"/conversations/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET "+Prefix+"/usage", s.handleUsage)
	mux.HandleFunc("GET "+Prefix+"/health", s.handleHealth)
	mux.HandleFunc("GET "+Prefix+"/version", s.handleVersion)

	var h http.Handler = s.withLogging(mux)
	if s.service != "" {
		h = telemetry.HTTPMiddleware(s.service)(h)
	}
	return h
}

// Start serves HTTP until Shutdown is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // tool rounds can take a while
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack supports the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"detail": message}, s.logger)
}

// HealthResponse is the health endpoint payload. Status is "degraded"
// when a watched dependency is unreachable.
type HealthResponse struct {
	Status       string             `json:"status"`
	Version      string             `json:"version"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Dependencies []connwatch.Status `json:"dependencies,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Version:     buildinfo.Version,
		Title:       s.title,
		Description: buildinfo.Description,
	}
	if s.health != nil {
		resp.Dependencies = s.health.Statuses()
		if !s.health.Ready() {
			resp.Status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}
