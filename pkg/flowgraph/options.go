package flowgraph

import (
	"log/slog"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/observability"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// DefaultStepBudget is the number of node executions allowed per run.
const DefaultStepBudget = 25

// AbandonHandler decides the base state of a fresh run that abandons a
// pending interrupt. base is the state of the last terminated checkpoint
// (the zero value if there is none), suspended is the state stored with the
// interrupt. The returned state is merged with the run input.
//
// Without a handler the suspended run's state is discarded and base is used
// as is.
type AbandonHandler[S any] func(ctx Context, base, suspended S, interrupt Interrupt) S

// NodeErrorHandler turns a failed node execution into a final state.
// The run terminates with the returned state and it is checkpointed, so the
// session remains usable. Without a handler the error is returned to the
// caller and nothing is persisted.
type NodeErrorHandler[S any] func(ctx Context, state S, err error) S

// RunStartHandler adjusts the base state of every Invoke before the input
// is merged. Use it to clear fields that belong to a single run, since a
// reducer that skips zero values cannot clear them.
type RunStartHandler[S any] func(base S) S

// compileConfig holds configuration for a compiled graph.
type compileConfig struct {
	name        string
	store       checkpoint.Store
	locker      session.Locker
	stepBudget  int
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	onAbandon   any
	onNodeError any
	onRunStart  any
}

// defaultCompileConfig returns the default configuration.
func defaultCompileConfig() compileConfig {
	return compileConfig{
		name:       "flowgraph",
		stepBudget: DefaultStepBudget,
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
	}
}

// Option configures a compiled graph.
type Option func(*compileConfig)

// WithGraphName sets the name reported on run spans.
// Default: "flowgraph"
func WithGraphName(name string) Option {
	return func(c *compileConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithCheckpointer sets the checkpoint store.
// Default: an in-memory store, which does not survive restarts.
func WithCheckpointer(store checkpoint.Store) Option {
	return func(c *compileConfig) {
		c.store = store
	}
}

// WithLocker sets the per-session lock.
// Default: an in-process lock. Use a distributed lock when several
// processes share a checkpoint store.
func WithLocker(l session.Locker) Option {
	return func(c *compileConfig) {
		c.locker = l
	}
}

// WithStepBudget sets the maximum number of node executions per run.
// Default: 25
//
// A run that exceeds the budget fails with ErrStepBudgetExceeded and
// nothing is persisted.
//
// Panics if n <= 0.
func WithStepBudget(n int) Option {
	if n <= 0 {
		panic("flowgraph: step budget must be > 0")
	}
	return func(c *compileConfig) {
		c.stepBudget = n
	}
}

// WithLogger sets the logger for runs and node contexts.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *compileConfig) {
		c.logger = logger
	}
}

// WithMetrics enables metrics recording.
// Default: disabled.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *compileConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables span creation for runs and nodes.
// Default: disabled.
func WithTracing(s observability.SpanManager) Option {
	return func(c *compileConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithAbandonHandler sets the policy for fresh runs that abandon a pending
// interrupt. The handler's state type must match the graph's.
func WithAbandonHandler[S any](h AbandonHandler[S]) Option {
	return func(c *compileConfig) {
		c.onAbandon = h
	}
}

// WithNodeErrorHandler sets how node failures become final states.
// The handler's state type must match the graph's.
func WithNodeErrorHandler[S any](h NodeErrorHandler[S]) Option {
	return func(c *compileConfig) {
		c.onNodeError = h
	}
}

// WithRunStartHandler sets the hook applied to the base state of every
// Invoke. Resume continues the suspended run and does not call it.
// The handler's state type must match the graph's.
func WithRunStartHandler[S any](h RunStartHandler[S]) Option {
	return func(c *compileConfig) {
		c.onRunStart = h
	}
}
