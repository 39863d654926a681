package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/observability"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// Status reports how a run ended.
type Status = checkpoint.Status

// Run status values.
const (
	StatusTerminated = checkpoint.StatusTerminated
	StatusSuspended  = checkpoint.StatusSuspended
)

// Result is the outcome of Invoke or Resume.
type Result[S any] struct {
	// SessionID is the session the run belongs to.
	SessionID string
	// Status is StatusTerminated or StatusSuspended.
	Status Status
	// State is the session state committed by the run.
	State S
	// Interrupt is set when Status is StatusSuspended.
	Interrupt *Interrupt
	// Step is the checkpoint step the run committed.
	Step int
}

// Suspended reports whether the run stopped at an interrupt.
func (r *Result[S]) Suspended() bool {
	return r.Status == StatusSuspended
}

// Interrupt describes a pending suspension.
type Interrupt struct {
	// NodeID is the node that suspended and will receive the resume decision.
	NodeID string
	// Payload is the JSON-encoded value the node suspended with.
	Payload json.RawMessage
	// CreatedAt is when the run suspended.
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (i *Interrupt) Decode(v any) error {
	if len(i.Payload) == 0 {
		return fmt.Errorf("interrupt at %s has no payload", i.NodeID)
	}
	return json.Unmarshal(i.Payload, v)
}

func interruptFrom(cp *checkpoint.Interrupt) *Interrupt {
	if cp == nil {
		return nil
	}
	return &Interrupt{
		NodeID:    cp.NodeID,
		Payload:   cp.Payload,
		CreatedAt: cp.CreatedAt,
	}
}

// runSpec describes one invoke or resume.
type runSpec struct {
	mode      string
	sessionID string
	start     string
	step      int
	parent    int
	resume    any
	resumed   bool
}

// runOutcome is what the step loop hands to commit.
type runOutcome[S any] struct {
	state     S
	status    Status
	nodeID    string
	payload   any
	lastNode  string
	nodeCount int
}

// Invoke starts a run for the session with fresh input.
//
// The session's latest state (empty for a new session) is merged with
// input using the graph's Reducer, then nodes execute from the entry point
// until the run terminates or a node suspends. Exactly one checkpoint is
// persisted per run; it is the commit point.
//
// If the session has a pending interrupt, that interrupt is abandoned: the
// run starts from the state of the last terminated checkpoint, adjusted by
// the AbandonHandler if one is configured. Abandonment is logged at WARN.
//
// Runs for the same session are serialized; Invoke blocks until any run
// in flight for the session completes or ctx is done.
func (cg *CompiledGraph[S]) Invoke(ctx context.Context, sessionID string, input S) (*Result[S], error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	var result *Result[S]
	err := session.WithLock(ctx, cg.locker, sessionID, func(ctx context.Context) error {
		latest, err := cg.loadLatest(ctx, sessionID)
		if err != nil {
			return err
		}

		spec := runSpec{
			mode:      "invoke",
			sessionID: sessionID,
			start:     cg.entryPoint,
			step:      1,
		}

		var base S
		if latest != nil {
			spec.step = latest.Step + 1
			if latest.Suspended() {
				base, err = cg.abandon(ctx, latest, spec.step)
				spec.parent = latest.ParentStep
			} else {
				base, err = decodeState[S](sessionID, latest.State)
				spec.parent = latest.Step
			}
			if err != nil {
				return err
			}
		}

		if cg.onRunStart != nil {
			base = cg.onRunStart(base)
		}
		result, err = cg.execute(ctx, spec, cg.reducer(base, input))
		return err
	})
	return result, err
}

// abandon computes the base state for a fresh run on a suspended session.
func (cg *CompiledGraph[S]) abandon(ctx context.Context, suspended *checkpoint.Checkpoint, step int) (S, error) {
	var base S
	sessionID := suspended.SessionID

	if suspended.ParentStep > 0 {
		parent, err := cg.store.Load(ctx, sessionID, suspended.ParentStep)
		if err != nil {
			return base, &CheckpointError{SessionID: sessionID, Op: opLoad, Err: err}
		}
		if base, err = decodeState[S](sessionID, parent.State); err != nil {
			return base, err
		}
	}

	nodeID := suspended.Interrupt.NodeID
	observability.LogInterruptAbandoned(cg.logger, sessionID, nodeID, suspended.Step)
	cg.metrics.RecordAbandonedInterrupt(ctx, nodeID)

	if cg.onAbandon == nil {
		return base, nil
	}

	held, err := decodeState[S](sessionID, suspended.State)
	if err != nil {
		return base, err
	}
	hctx := &executionContext{
		Context:   ctx,
		logger:    observability.EnrichLogger(cg.logger, sessionID, nodeID, step),
		sessionID: sessionID,
		nodeID:    nodeID,
		step:      step,
	}
	return cg.onAbandon(hctx, base, held, *interruptFrom(suspended.Interrupt)), nil
}

// execute drives one run with run-level observability and commits it.
func (cg *CompiledGraph[S]) execute(ctx context.Context, spec runSpec, state S) (result *Result[S], err error) {
	started := time.Now()
	elapsed := observability.TimedOperation()
	observability.LogRunStart(cg.logger, spec.sessionID, spec.mode)

	runCtx, span := cg.spans.StartRunSpan(ctx, cg.name, spec.sessionID, spec.mode)
	defer func() {
		cg.spans.EndSpanWithError(span, err)
	}()

	out, err := cg.loop(runCtx, spec, state)
	if err == nil {
		result, err = cg.commit(runCtx, spec, out)
	}

	status := "failed"
	if err == nil {
		status = string(result.Status)
	}
	cg.metrics.RecordRun(runCtx, status, time.Since(started))

	if err != nil {
		observability.LogRunError(cg.logger, spec.sessionID, err, elapsed(), out.lastNode)
		return nil, err
	}
	observability.LogRunComplete(cg.logger, spec.sessionID, status, elapsed(), out.nodeCount)
	return result, nil
}

// loop executes nodes from spec.start until the run terminates or suspends.
func (cg *CompiledGraph[S]) loop(ctx context.Context, spec runSpec, state S) (runOutcome[S], error) {
	out := runOutcome[S]{lastNode: spec.start}
	current := spec.start
	resume, resumed := spec.resume, spec.resumed
	runLogger := cg.logger.With(
		slog.String("session_id", spec.sessionID),
		slog.Int("step", spec.step),
	)

	for executed := 0; ; executed++ {
		if executed >= cg.stepBudget {
			return out, &StepBudgetError{Budget: cg.stepBudget, NodeID: current}
		}

		// Check for cancellation before executing node
		if err := ctx.Err(); err != nil {
			return out, &CancellationError{NodeID: current, Cause: err}
		}

		out.lastNode = current
		nodeCtx := &executionContext{
			Context:   ctx,
			logger:    runLogger.With(slog.String("node_id", current)),
			sessionID: spec.sessionID,
			nodeID:    current,
			step:      spec.step,
			resume:    resume,
			resumed:   resumed,
		}
		// Only the node that suspended sees the decision.
		resume, resumed = nil, false

		outcome, err := cg.runNode(nodeCtx, runLogger, current, state)
		out.nodeCount++
		if err != nil {
			if cg.onNodeError == nil {
				return out, err
			}
			out.state = cg.onNodeError(nodeCtx, state, err)
			out.status = StatusTerminated
			return out, nil
		}

		if outcome.Suspended() {
			out.state = state
			out.status = StatusSuspended
			out.nodeID = current
			out.payload = outcome.Payload()
			return out, nil
		}

		state = cg.reducer(state, outcome.Partial())

		if cg.terminals[current] {
			out.state = state
			out.status = StatusTerminated
			return out, nil
		}

		next, err := cg.nextNode(nodeCtx, state, current)
		if err != nil {
			return out, err
		}
		if next == END {
			out.state = state
			out.status = StatusTerminated
			return out, nil
		}
		current = next
	}
}

// runNode executes a single node with per-node observability.
func (cg *CompiledGraph[S]) runNode(ctx *executionContext, logger *slog.Logger, nodeID string, state S) (Outcome[S], error) {
	observability.LogNodeStart(logger, nodeID)

	spanCtx, span := cg.spans.StartNodeSpan(ctx.Context, nodeID, ctx.step)
	nodeCtx := *ctx
	nodeCtx.Context = spanCtx

	nodeStart := time.Now()
	outcome, err := cg.executeNode(&nodeCtx, nodeID, state)
	nodeDuration := time.Since(nodeStart)

	cg.metrics.RecordNodeExecution(spanCtx, nodeID, nodeDuration, err)
	cg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogNodeError(logger, nodeID, err)
		return outcome, err
	}
	observability.LogNodeComplete(logger, nodeID, float64(nodeDuration.Microseconds())/1000)
	return outcome, nil
}

// executeNode executes a single node with panic recovery.
// Returns the outcome and any error (including wrapped panics).
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (outcome Outcome[S], err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// This shouldn't happen if compilation was successful
		return outcome, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome[S]{}
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	outcome, err = fn(ctx, state)
	if err != nil {
		return Outcome[S]{}, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}
	return outcome, nil
}

// nextNode determines the node that follows current.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	if to, ok := cg.edges[current]; ok {
		return to, nil
	}

	edge, ok := cg.conditionalEdges[current]
	if !ok {
		// No outgoing edges - this shouldn't happen if compilation was successful
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("%w: %s", ErrNoOutgoingEdge, current),
		}
	}

	label := edge.router(ctx, state)
	to, ok := edge.routes[label]
	if !ok {
		return "", &RouterError{
			FromNode: current,
			Returned: label,
			Err:      ErrUnknownRoute,
		}
	}
	return to, nil
}

// commit persists the run's checkpoint. Nothing the run did is visible to
// later runs until Save succeeds.
func (cg *CompiledGraph[S]) commit(ctx context.Context, spec runSpec, out runOutcome[S]) (*Result[S], error) {
	if err := ctx.Err(); err != nil {
		return nil, &CancellationError{Cause: err}
	}

	stateBytes, err := json.Marshal(out.state)
	if err != nil {
		return nil, &CheckpointError{
			SessionID: spec.sessionID,
			Op:        opSerialize,
			Err:       fmt.Errorf("%w: %w", ErrSerializeState, err),
		}
	}

	cp := checkpoint.New(spec.sessionID, spec.step, out.status, stateBytes)
	if out.status == StatusSuspended {
		payload, err := json.Marshal(out.payload)
		if err != nil {
			return nil, &CheckpointError{
				SessionID: spec.sessionID,
				Op:        opSerialize,
				Err:       fmt.Errorf("%w: interrupt payload: %w", ErrSerializeState, err),
			}
		}
		cp = cp.WithParent(spec.parent).WithInterrupt(out.nodeID, payload)
	}

	if err := cg.store.Save(ctx, cp); err != nil {
		cg.metrics.RecordCheckpoint(ctx, "error", 0)
		observability.LogCheckpointError(cg.logger, spec.sessionID, opSave, err)
		return nil, &CheckpointError{SessionID: spec.sessionID, Op: opSave, Err: err}
	}

	size := len(stateBytes)
	cg.metrics.RecordCheckpoint(ctx, "ok", int64(size))
	observability.LogCheckpoint(cg.logger, spec.sessionID, spec.step, size)

	result := &Result[S]{
		SessionID: spec.sessionID,
		Status:    out.status,
		State:     out.state,
		Step:      spec.step,
	}
	if cp.Interrupt != nil {
		cg.metrics.RecordInterrupt(ctx, out.nodeID)
		observability.LogInterrupt(cg.logger, spec.sessionID, out.nodeID, spec.step)
		result.Interrupt = interruptFrom(cp.Interrupt)
	}
	return result, nil
}

// loadLatest returns the session's latest checkpoint, or nil for a new session.
func (cg *CompiledGraph[S]) loadLatest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	cp, err := cg.store.LoadLatest(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		observability.LogCheckpointError(cg.logger, sessionID, opLoad, err)
		return nil, &CheckpointError{SessionID: sessionID, Op: opLoad, Err: err}
	}
	if cp.Version > checkpoint.Version {
		return nil, &CheckpointError{
			SessionID: sessionID,
			Op:        opDecode,
			Err: fmt.Errorf("%w: got %d, expected at most %d",
				ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}
	return cp, nil
}

// decodeState unmarshals a stored state.
func decodeState[S any](sessionID string, data []byte) (S, error) {
	var state S
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, &CheckpointError{
			SessionID: sessionID,
			Op:        opDecode,
			Err:       fmt.Errorf("%w: %w", ErrDeserializeState, err),
		}
	}
	return state, nil
}
