package agent

import (
	"testing"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph_MissingDeps(t *testing.T) {
	_, err := NewGraph(Deps{})
	require.Error(t, err)
	for _, want := range []string{"classifier", "responder", "planner", "executor"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestCompile_Wiring(t *testing.T) {
	compiled, err := Compile(testDeps(&recordingExecutor{}))
	require.NoError(t, err)

	assert.Equal(t, GraphName, compiled.Name())
	assert.Equal(t, NodeArbitration, compiled.EntryPoint())
	assert.Equal(t, []string{NodeQA, NodeTaskAllocation}, compiled.Successors(NodeArbitration))
	assert.Equal(t, []string{NodeApproval}, compiled.Successors(NodeTaskAllocation))
	assert.Equal(t, []string{NodeTools, flowgraph.END}, compiled.Successors(NodeApproval))
	assert.Equal(t, []string{NodeQA, NodeTools}, compiled.Terminals())
}

func TestCompile_RoutesMustCoverLabels(t *testing.T) {
	deps := testDeps(&recordingExecutor{})
	deps.Routes = map[string]string{CategoryQA: NodeQA}

	_, err := Compile(deps)

	var cfgErr *flowgraph.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, flowgraph.ErrUnmappedLabel)
	assert.Contains(t, err.Error(), CategoryVehicle)
}

func TestCompile_CustomRoutes(t *testing.T) {
	deps := testDeps(&recordingExecutor{})
	deps.Classifier = NewKeywordClassifier(CategoryQA,
		Category{Name: CategoryVehicle, Triggers: []string{"start"}},
		Category{Name: "climate", Triggers: []string{"warm"}},
	)
	deps.Routes = map[string]string{
		CategoryQA:      NodeQA,
		CategoryVehicle: NodeTaskAllocation,
		"climate":       NodeTaskAllocation,
	}

	compiled, err := Compile(deps)
	require.NoError(t, err)
	assert.Equal(t, NodeTaskAllocation, compiled.Routes(NodeArbitration)["climate"])
}

func TestAbandonPendingCalls(t *testing.T) {
	suspended := pendingState()
	base := State{Response: "earlier"}

	got := AbandonPendingCalls(flowgraph.NewContext(t.Context()), base, suspended, flowgraph.Interrupt{NodeID: NodeApproval})

	assert.Equal(t, "earlier", got.Response)
	require.Len(t, got.History, 3)
	assert.Equal(t, suspended.History, got.History[:2])
	assert.Equal(t, ToolMessage("c1", abandonedToolResult), got.History[2])
	assert.Len(t, suspended.History, 2)
}

func TestNodeFailureResponse(t *testing.T) {
	ctx := flowgraph.NewContext(t.Context(), flowgraph.WithContextNodeID(NodeTaskAllocation))

	got := NodeFailureResponse(ctx, State{RoutingDecision: CategoryVehicle}, assert.AnError)

	assert.Equal(t, "Error in task_allocation: "+assert.AnError.Error(), got.Response)
	assert.Empty(t, got.RoutingDecision)
}
