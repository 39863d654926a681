/*
Package flowgraph provides a stateful graph workflow engine with durable
interrupt and resume.

# Overview

A graph is a set of named nodes joined by static and conditional edges.
Each run executes nodes for one session against that session's state,
starting at the entry node, until a terminal node is reached or a node
suspends. The run's result is persisted as a single checkpoint; a later
request for the same session picks up from that checkpoint, possibly in
another process.

# Basic Usage

Nodes return an Outcome: a partial update that the graph's Reducer merges
into the running state, or a suspension:

	type State struct {
	    Input  string
	    Output string
	}

	func merge(base, partial State) State {
	    if partial.Input != "" {
	        base.Input = partial.Input
	    }
	    if partial.Output != "" {
	        base.Output = partial.Output
	    }
	    return base
	}

	func process(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	    return flowgraph.Update(State{Output: "Processed: " + s.Input}), nil
	}

	func main() {
	    compiled, err := flowgraph.NewGraph(merge).
	        AddNode("process", process).
	        AddEdge("process", flowgraph.END).
	        SetEntry("process").
	        Compile()
	    if err != nil {
	        log.Fatal(err)
	    }

	    res, err := compiled.Invoke(context.Background(), "sess-1", State{Input: "hello"})
	    if err != nil {
	        log.Fatal(err)
	    }
	    fmt.Println(res.State.Output) // "Processed: hello"
	}

# Conditional Branching

A conditional edge asks a router for a label and maps it through a table:

	graph.AddConditionalEdge("review", func(ctx flowgraph.Context, s State) string {
	    if s.Approved {
	        return "approved"
	    }
	    return "rejected"
	}, map[string]string{
	    "approved": "publish",
	    "rejected": flowgraph.END,
	}).ExpectLabels("review", "approved", "rejected")

Labels declared with ExpectLabels are checked against the table by Compile,
so a missing route is a startup failure rather than a request failure.

# Interrupts

A node suspends the run by returning Suspend with a JSON-serializable
payload. The run stops, its state and the payload are checkpointed, and
Invoke returns a Result with Status StatusSuspended. Resume re-enters the
same node with the caller's decision:

	func approve(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	    decision, ok := ctx.ResumeValue()
	    if !ok {
	        return flowgraph.Suspend[State](map[string]string{"question": "proceed?"}), nil
	    }
	    if decision == "yes" {
	        return flowgraph.Update(State{Decision: "go"}), nil
	    }
	    return flowgraph.Update(State{Decision: "stop"}), nil
	}

Invoke on a session with a pending interrupt abandons it; see
WithAbandonHandler.

# Sessions and Concurrency

At most one run per session is in flight. Invoke and Resume take a
session.Locker lock (in-process by default) for the whole run. Checkpoint
stores additionally reject out-of-order writes with
checkpoint.ErrStepConflict.

# Error Handling

Compile reports every wiring defect in one *ConfigError. At run time:

  - CheckpointError: loading or saving a checkpoint failed; retryable
  - NodeError / PanicError: a node failed; passed to the NodeErrorHandler
    when one is set, returned otherwise
  - RouterError: a router returned an unmapped label
  - StepBudgetError: the run did not terminate within the step budget
  - CancellationError: ctx was done before the run committed
  - ErrInvalidResume: Resume on a session with no pending interrupt

Use IsRetryable to tell transient failures apart from the rest.

# Observability

Runs log through log/slog (WithLogger), record OpenTelemetry metrics
(WithMetrics) and emit spans (WithTracing). See the observability package.
*/
package flowgraph
