// Package server exposes the task router over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/taskrouter/internal/agent"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
)

// Router is the part of agent.Service the handlers call.
type Router interface {
	Submit(ctx context.Context, sessionID, text string) (*agent.RunResult, error)
	Resume(ctx context.Context, sessionID, decision string) (*agent.RunResult, error)
	Session(ctx context.Context, sessionID string) (*agent.SessionView, error)
	History(ctx context.Context, sessionID string) ([]checkpoint.Info, error)
}

// Server holds the HTTP handlers.
type Server struct {
	router  Router
	logger  *slog.Logger
	metrics *metrics
	newID   func() string
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry registers the HTTP metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.metrics = newMetrics(reg) }
}

// WithIDGenerator sets how session IDs are created for requests without one.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) { s.newID = fn }
}

// NewHandler returns the HTTP handler serving /query, /sessions, /healthz and /metrics.
func NewHandler(r Router, opts ...Option) http.Handler {
	s := &Server{
		router: r,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.NewRegistry())
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(s.instrument)

	mux.Post("/query", s.Query)
	mux.Get("/sessions/{id}", s.GetSession)
	mux.Get("/sessions/{id}/history", s.GetHistory)
	mux.Get("/healthz", s.Health)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// QueryRequest is the body of POST /query. A request with Resume answers
// the session's pending approval; otherwise Text is a new utterance.
type QueryRequest struct {
	Text      string  `json:"text,omitempty"`
	Resume    *string `json:"resume,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// QueryResponse is the reply to POST /query. Interrupts always carry args,
// empty when the action takes none.
type QueryResponse struct {
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id"`

	Interrupt bool             `json:"interrupt,omitempty"`
	Question  string           `json:"question,omitempty"`
	Function  string           `json:"function,omitempty"`
	Args      map[string]any   `json:"args"`
	ToolCalls []agent.ToolCall `json:"tool_calls,omitempty"`
}

// SessionResponse is the reply to GET /sessions/{id}.
type SessionResponse struct {
	SessionID string                 `json:"session_id"`
	Step      int                    `json:"step"`
	Status    string                 `json:"status"`
	Response  string                 `json:"response,omitempty"`
	History   []agent.Message        `json:"history"`
	Pending   *agent.ApprovalRequest `json:"pending,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CheckpointResponse is one entry of GET /sessions/{id}/history.
type CheckpointResponse struct {
	Step      int       `json:"step"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("query: invalid request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}

	var (
		res *agent.RunResult
		err error
	)
	if body.Resume != nil {
		if body.SessionID == "" {
			writeError(w, http.StatusBadRequest, "Missing 'session_id' for resume")
			return
		}
		res, err = s.router.Resume(r.Context(), body.SessionID, *body.Resume)
	} else {
		if body.Text == "" {
			writeError(w, http.StatusBadRequest, "Missing 'text' in request body")
			return
		}
		if body.SessionID == "" {
			body.SessionID = s.newID()
		}
		res, err = s.router.Submit(r.Context(), body.SessionID, body.Text)
	}
	if err != nil {
		s.fail(w, "query", body.SessionID, err)
		return
	}

	s.metrics.outcomes.WithLabelValues(string(res.Kind)).Inc()
	writeJSON(w, http.StatusOK, toQueryResponse(res))
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.router.Session(r.Context(), id)
	if err != nil {
		s.fail(w, "session", id, err)
		return
	}

	history := view.History
	if history == nil {
		history = []agent.Message{}
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: view.SessionID,
		Step:      view.Step,
		Status:    string(view.Status),
		Response:  view.Response,
		History:   history,
		Pending:   view.Pending,
		UpdatedAt: view.UpdatedAt,
	})
}

// GetHistory handles GET /sessions/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	infos, err := s.router.History(r.Context(), id)
	if err != nil {
		s.fail(w, "history", id, err)
		return
	}
	if len(infos) == 0 {
		writeError(w, http.StatusNotFound, "session "+id+" not found")
		return
	}

	out := make([]CheckpointResponse, len(infos))
	for i, info := range infos {
		out[i] = CheckpointResponse{
			Step:      info.Step,
			Status:    string(info.Status),
			Timestamp: info.Timestamp,
			Size:      info.Size,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, op, sessionID string, err error) {
	status := StatusFor(err)
	attrs := []any{
		slog.String("session_id", sessionID),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", attrs...)
	} else {
		s.logger.Warn(op+" rejected", attrs...)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps a router error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrEmptyText), errors.Is(err, flowgraph.ErrSessionIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, flowgraph.ErrInvalidResume):
		return http.StatusConflict
	case errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound
	case flowgraph.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toQueryResponse(res *agent.RunResult) QueryResponse {
	if res.Kind != agent.KindInterrupt {
		return QueryResponse{Text: res.Response, SessionID: res.SessionID}
	}
	args := res.ActionArgs
	if args == nil {
		args = map[string]any{}
	}
	return QueryResponse{
		SessionID: res.SessionID,
		Interrupt: true,
		Question:  res.Prompt,
		Function:  res.ActionName,
		Args:      args,
		ToolCalls: res.ToolCalls,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
