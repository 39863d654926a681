package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/registry"
)

// GraphName is the name reported on run spans.
const GraphName = "taskrouter"

// Deps are the collaborators and wiring of the router graph.
type Deps struct {
	Classifier Classifier
	Responder  Responder
	Planner    Planner
	Executor   Executor

	// Routes maps classifier labels to node IDs.
	// Default: qa_task -> qa_task, vehicle_task -> task_allocation.
	Routes map[string]string

	// NodeTimeout bounds the responder, planner and tools nodes. Zero disables it.
	NodeTimeout time.Duration
}

// DefaultRoutes returns the category to node table of the default policy.
func DefaultRoutes() map[string]string {
	return map[string]string{
		CategoryQA:      NodeQA,
		CategoryVehicle: NodeTaskAllocation,
	}
}

// NewGraph assembles the router graph.
//
//	arbitration --(label)--> qa_task (terminal)
//	                    \--> task_allocation -> human_approval --approved--> tools (terminal)
//	                                                        \--rejected|no_action--> END
func NewGraph(deps Deps) (*flowgraph.Graph[State], error) {
	var errs []error
	if deps.Classifier == nil {
		errs = append(errs, errors.New("classifier is required"))
	}
	if deps.Responder == nil {
		errs = append(errs, errors.New("responder is required"))
	}
	if deps.Planner == nil {
		errs = append(errs, errors.New("planner is required"))
	}
	if deps.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	routes := deps.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}

	n := &nodes{
		classifier: deps.Classifier,
		responder:  deps.Responder,
		planner:    deps.Planner,
		executor:   deps.Executor,
	}

	caps := registry.New[string, flowgraph.NodeFunc[State]]()
	caps.MustRegister(NodeArbitration, n.arbitrate)
	caps.MustRegister(NodeQA, flowgraph.WithTimeout(deps.NodeTimeout, n.answer))
	caps.MustRegister(NodeTaskAllocation, flowgraph.WithTimeout(deps.NodeTimeout, n.allocate))
	caps.MustRegister(NodeApproval, n.approve)
	caps.MustRegister(NodeTools, flowgraph.WithTimeout(deps.NodeTimeout, n.runTools))

	g := flowgraph.NewGraph(Merge)
	caps.Range(func(id string, fn flowgraph.NodeFunc[State]) bool {
		g.AddNode(id, fn)
		return true
	})

	return g.
		AddConditionalEdge(NodeArbitration, byDecision, routes).
		ExpectLabels(NodeArbitration, deps.Classifier.Labels()...).
		AddEdge(NodeTaskAllocation, NodeApproval).
		AddConditionalEdge(NodeApproval, byDecision, map[string]string{
			DecisionApproved: NodeTools,
			DecisionRejected: flowgraph.END,
			DecisionNoAction: flowgraph.END,
		}).
		ExpectLabels(NodeApproval, DecisionApproved, DecisionRejected, DecisionNoAction).
		AddTerminal(NodeQA, NodeTools).
		SetEntry(NodeArbitration), nil
}

// Compile builds and compiles the router graph with the router's abandon
// and node error policies. opts are applied after them and may override.
func Compile(deps Deps, opts ...flowgraph.Option) (*flowgraph.CompiledGraph[State], error) {
	g, err := NewGraph(deps)
	if err != nil {
		return nil, err
	}
	all := append([]flowgraph.Option{
		flowgraph.WithGraphName(GraphName),
		flowgraph.WithAbandonHandler(flowgraph.AbandonHandler[State](AbandonPendingCalls)),
		flowgraph.WithNodeErrorHandler(flowgraph.NodeErrorHandler[State](NodeFailureResponse)),
		flowgraph.WithRunStartHandler(flowgraph.RunStartHandler[State](BeginTurn)),
	}, opts...)
	return g.Compile(all...)
}

// byDecision routes on the routing decision.
func byDecision(_ flowgraph.Context, s State) string {
	return s.RoutingDecision
}

// AbandonPendingCalls keeps the suspended run's history and records every
// pending tool call as cancelled, so History only grows and no call is left
// without a result.
func AbandonPendingCalls(ctx flowgraph.Context, base, suspended State, intr flowgraph.Interrupt) State {
	out := base
	out.History = slices.Clone(suspended.History)
	for _, c := range suspended.PendingToolCalls() {
		out.History = append(out.History, ToolMessage(c.ID, abandonedToolResult))
	}
	ctx.Logger().Warn("approval abandoned",
		slog.String("interrupted_at", intr.CreatedAt.Format(time.RFC3339)),
		slog.Int("tool_calls", len(suspended.PendingToolCalls())))
	return out
}

// NodeFailureResponse turns a failed node into a terminal response so the
// session stays usable.
func NodeFailureResponse(ctx flowgraph.Context, s State, err error) State {
	ctx.Logger().Error("node failed, ending run", slog.String("error", err.Error()))
	s.Response = fmt.Sprintf("Error in %s: %v", ctx.NodeID(), err)
	s.RoutingDecision = ""
	return s
}
