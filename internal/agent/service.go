package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
)

// ErrEmptyText is returned when a submit carries no text.
var ErrEmptyText = errors.New("text is required")

// ResultKind discriminates RunResult.
type ResultKind string

// Result kinds.
const (
	KindFinal     ResultKind = "final"
	KindInterrupt ResultKind = "interrupt"
)

// RunResult is what a submit or resume returns to the caller.
type RunResult struct {
	Kind      ResultKind
	SessionID string

	// Response is set for KindFinal.
	Response string

	// Prompt, ActionName, ActionArgs and ToolCalls are set for KindInterrupt.
	Prompt     string
	ActionName string
	ActionArgs map[string]any
	ToolCalls  []ToolCall
}

// SessionView is the latest committed state of a session.
type SessionView struct {
	SessionID string
	Step      int
	Status    flowgraph.Status
	Response  string
	History   []Message
	Pending   *ApprovalRequest
	UpdatedAt time.Time
}

// Service is the boundary the HTTP dispatcher calls.
type Service struct {
	graph  *flowgraph.CompiledGraph[State]
	logger *slog.Logger
}

// NewService wraps a compiled router graph.
func NewService(graph *flowgraph.CompiledGraph[State], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{graph: graph, logger: logger}
}

// Submit runs a fresh utterance for the session. The session ID is the
// caller's; Submit never invents one.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (*RunResult, error) {
	if sessionID == "" {
		return nil, flowgraph.ErrSessionIDRequired
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	s.logger.Info("query received", slog.String("session_id", sessionID), slog.String("query", text))
	res, err := s.graph.Invoke(ctx, sessionID, State{
		Query:   text,
		History: []Message{UserMessage(text)},
	})
	if err != nil {
		return nil, err
	}
	return s.toRunResult(res)
}

// Resume answers the session's pending approval with decision.
// It fails with flowgraph.ErrInvalidResume if nothing is pending.
func (s *Service) Resume(ctx context.Context, sessionID, decision string) (*RunResult, error) {
	if sessionID == "" {
		return nil, flowgraph.ErrSessionIDRequired
	}

	s.logger.Info("resume received", slog.String("session_id", sessionID), slog.String("decision", decision))
	res, err := s.graph.Resume(ctx, sessionID, decision)
	if err != nil {
		return nil, err
	}
	return s.toRunResult(res)
}

// Session returns the latest committed state of a session.
// The error wraps checkpoint.ErrNotFound for unknown sessions.
func (s *Service) Session(ctx context.Context, sessionID string) (*SessionView, error) {
	snap, err := s.graph.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		SessionID: snap.SessionID,
		Step:      snap.Step,
		Status:    snap.Status,
		Response:  snap.State.Response,
		History:   snap.State.History,
		UpdatedAt: snap.Timestamp,
	}
	if snap.Interrupt != nil {
		var req ApprovalRequest
		if err := snap.Interrupt.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode approval request: %w", err)
		}
		view.Pending = &req
	}
	return view, nil
}

// History lists the session's checkpoints, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]checkpoint.Info, error) {
	return s.graph.History(ctx, sessionID)
}

func (s *Service) toRunResult(res *flowgraph.Result[State]) (*RunResult, error) {
	if !res.Suspended() {
		s.logger.Info("sending response",
			slog.String("session_id", res.SessionID),
			slog.String("response", res.State.Response))
		return &RunResult{
			Kind:      KindFinal,
			SessionID: res.SessionID,
			Response:  res.State.Response,
		}, nil
	}

	var req ApprovalRequest
	if err := res.Interrupt.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode approval request: %w", err)
	}
	s.logger.Info("awaiting approval",
		slog.String("session_id", res.SessionID),
		slog.String("function", req.Function))
	return &RunResult{
		Kind:       KindInterrupt,
		SessionID:  res.SessionID,
		Prompt:     req.Question,
		ActionName: req.Function,
		ActionArgs: req.Args,
		ToolCalls:  req.ToolCalls,
	}, nil
}
