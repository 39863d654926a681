package flowgraph

import (
	"context"
	"log/slog"
)

// Context provides execution context to nodes.
// It extends context.Context with flowgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates a derived
// context for each node with the node ID set and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with session and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// SessionID returns the session this run belongs to.
	SessionID() string

	// NodeID returns the current node being executed.
	// Empty string outside of node execution.
	NodeID() string

	// Step returns the checkpoint step this run will commit.
	Step() int

	// ResumeValue returns the caller's decision when this node is being
	// re-entered after it suspended the run. ok is false otherwise.
	ResumeValue() (value any, ok bool)
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	sessionID string
	nodeID    string
	step      int
	resume    any
	resumed   bool
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// SessionID returns the session identifier.
func (c *executionContext) SessionID() string {
	return c.sessionID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Step returns the checkpoint step being produced.
func (c *executionContext) Step() int {
	return c.step
}

// ResumeValue returns the resume decision, if any.
func (c *executionContext) ResumeValue() (any, bool) {
	return c.resume, c.resumed
}

// ContextOption configures a Context built by NewContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger for the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextSessionID sets the session identifier.
func WithContextSessionID(id string) ContextOption {
	return func(c *executionContext) {
		c.sessionID = id
	}
}

// WithContextNodeID sets the node identifier.
func WithContextNodeID(id string) ContextOption {
	return func(c *executionContext) {
		c.nodeID = id
	}
}

// WithContextStep sets the checkpoint step.
func WithContextStep(step int) ContextOption {
	return func(c *executionContext) {
		c.step = step
	}
}

// WithContextResume marks the context as resuming with the given decision.
func WithContextResume(value any) ContextOption {
	return func(c *executionContext) {
		c.resume = value
		c.resumed = true
	}
}

// NewContext creates a Context from a standard context.
// The engine builds its own contexts; NewContext is for exercising nodes
// and routers directly.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithContextSessionID("sess-1"),
//	    flowgraph.WithContextResume("yes"))
//	out, err := approveNode(ctx, state)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withBase returns a copy of c whose cancellation and values come from base.
func withBase(c Context, base context.Context) Context {
	if ec, ok := c.(*executionContext); ok {
		cp := *ec
		cp.Context = base
		return &cp
	}
	value, resumed := c.ResumeValue()
	ec := &executionContext{
		Context:   base,
		logger:    c.Logger(),
		sessionID: c.SessionID(),
		nodeID:    c.NodeID(),
		step:      c.Step(),
	}
	if resumed {
		ec.resume = value
		ec.resumed = true
	}
	return ec
}
