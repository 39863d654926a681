package flowgraph

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/observability"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is safe for concurrent use. Runs for different sessions
// proceed independently; runs for the same session are serialized by the
// configured session.Locker.
//
// Use the introspection methods (NodeIDs, Successors, Routes, etc.) to
// examine the graph structure for debugging or visualization.
type CompiledGraph[S any] struct {
	name             string
	reducer          Reducer[S]
	nodes            map[string]NodeFunc[S]
	edges            map[string]string
	conditionalEdges map[string]*conditionalEdge[S]
	terminals        map[string]bool
	entryPoint       string
	predecessors     map[string][]string

	store       checkpoint.Store
	locker      session.Locker
	stepBudget  int
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	onAbandon   AbandonHandler[S]
	onNodeError NodeErrorHandler[S]
	onRunStart  RunStartHandler[S]
}

// Name returns the graph name reported on spans.
func (cg *CompiledGraph[S]) Name() string {
	return cg.name
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Sorted(maps.Keys(cg.nodes))
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns the node IDs (or END) that can follow the given node,
// including every target of its conditional edge.
// Returns nil for END, terminal nodes, or unknown nodes.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if to, ok := cg.edges[id]; ok {
		return []string{to}
	}
	edge, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	var out []string
	for _, label := range slices.Sorted(maps.Keys(edge.routes)) {
		if to := edge.routes[label]; !slices.Contains(out, to) {
			out = append(out, to)
		}
	}
	return out
}

// Predecessors returns the node IDs that can lead to the given node.
// Returns nil for nodes nothing leads to.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	return slices.Clone(cg.predecessors[id])
}

// Routes returns a copy of the label table of the node's conditional edge,
// or nil if it has none.
func (cg *CompiledGraph[S]) Routes(id string) map[string]string {
	edge, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	return maps.Clone(edge.routes)
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.conditionalEdges[id]
	return ok
}

// IsTerminal returns true if the run terminates after the node.
func (cg *CompiledGraph[S]) IsTerminal(id string) bool {
	return cg.terminals[id]
}

// Terminals returns the terminal node IDs, sorted.
func (cg *CompiledGraph[S]) Terminals() []string {
	return slices.Sorted(maps.Keys(cg.terminals))
}

// Checkpointer returns the checkpoint store runs persist to.
func (cg *CompiledGraph[S]) Checkpointer() checkpoint.Store {
	return cg.store
}

// getNode returns the node function for the given ID.
// Used internally by the executor.
func (cg *CompiledGraph[S]) getNode(id string) (NodeFunc[S], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}
