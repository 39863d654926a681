package flowgraph

import (
	"context"
	"fmt"
	"time"
)

// END is the terminal node identifier.
// Use this as an edge or route target to indicate the run should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and the current state, and return an
// Outcome: either a partial update merged by the graph's Reducer, or a
// request to suspend the run.
//
// Example:
//
//	func classify(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
//	    return flowgraph.Update(State{Decision: "qa"}), nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (Outcome[S], error)

// RouterFunc selects a route label based on state.
// The label is mapped to a node ID by the routes table given to
// AddConditionalEdge.
type RouterFunc[S any] func(ctx Context, state S) string

// Reducer merges a node's partial update into the running state.
// It must not modify base in place.
type Reducer[S any] func(base, partial S) S

// OutcomeKind discriminates the variants of Outcome.
type OutcomeKind int

const (
	// OutcomeUpdate carries a partial state update.
	OutcomeUpdate OutcomeKind = iota
	// OutcomeSuspend carries an interrupt payload.
	OutcomeSuspend
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUpdate:
		return "update"
	case OutcomeSuspend:
		return "suspend"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one node execution.
// Build one with Update or Suspend.
type Outcome[S any] struct {
	kind    OutcomeKind
	partial S
	payload any
}

// Update returns an outcome that merges partial into the running state.
func Update[S any](partial S) Outcome[S] {
	return Outcome[S]{kind: OutcomeUpdate, partial: partial}
}

// Suspend returns an outcome that stops the run at the current node.
// The payload is persisted with the checkpoint and surfaced to the caller;
// it must be JSON-serializable. When the session is resumed, the same node
// runs again and Context.ResumeValue reports the caller's decision.
func Suspend[S any](payload any) Outcome[S] {
	return Outcome[S]{kind: OutcomeSuspend, payload: payload}
}

// Kind reports which variant the outcome holds.
func (o Outcome[S]) Kind() OutcomeKind {
	return o.kind
}

// Suspended reports whether the outcome requests suspension.
func (o Outcome[S]) Suspended() bool {
	return o.kind == OutcomeSuspend
}

// Partial returns the update carried by an OutcomeUpdate.
func (o Outcome[S]) Partial() S {
	return o.partial
}

// Payload returns the interrupt payload carried by an OutcomeSuspend.
func (o Outcome[S]) Payload() any {
	return o.payload
}

// WithTimeout wraps fn so it runs under a deadline of d.
// When the deadline passes first the node fails with context.DeadlineExceeded,
// which the engine treats as a node failure; any late result is discarded.
func WithTimeout[S any](d time.Duration, fn NodeFunc[S]) NodeFunc[S] {
	if d <= 0 {
		return fn
	}
	return func(ctx Context, state S) (Outcome[S], error) {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan timeoutResult[S], 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- timeoutResult[S]{err: fmt.Errorf("node panicked: %v", r)}
				}
			}()
			out, err := fn(withBase(ctx, tctx), state)
			done <- timeoutResult[S]{out: out, err: err}
		}()

		select {
		case r := <-done:
			return r.out, r.err
		case <-tctx.Done():
			return Outcome[S]{}, fmt.Errorf("node exceeded %s: %w", d, tctx.Err())
		}
	}
}

type timeoutResult[S any] struct {
	out Outcome[S]
	err error
}
