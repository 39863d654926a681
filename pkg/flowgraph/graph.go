package flowgraph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/registry"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdge, AddTerminal and SetEntry calls to define the workflow.
//
// Graph is NOT intended to be shared while building. Call Compile() to
// create an immutable CompiledGraph that can be used concurrently.
//
// Example:
//
//	graph := flowgraph.NewGraph(mergeState).
//	    AddNode("route", routeNode).
//	    AddNode("answer", answerNode).
//	    AddNode("act", actNode).
//	    AddConditionalEdge("route", byDecision, map[string]string{
//	        "qa":     "answer",
//	        "action": "act",
//	    }).
//	    ExpectLabels("route", "qa", "action").
//	    AddEdge("act", flowgraph.END).
//	    AddTerminal("answer").
//	    SetEntry("route")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu               sync.RWMutex
	reducer          Reducer[S]
	nodes            *registry.Registry[string, NodeFunc[S]]
	edges            map[string][]string
	conditionalEdges map[string]*conditionalEdge[S]
	expectedLabels   map[string][]string
	terminals        map[string]bool
	entryPoint       string
}

// conditionalEdge routes from a node through a label table.
type conditionalEdge[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// NewGraph creates a new graph builder for state type S.
// The reducer merges every node's partial update into the running state;
// it is also used to merge run input into the session's stored state.
//
// Panics if reducer is nil.
func NewGraph[S any](reducer Reducer[S]) *Graph[S] {
	if reducer == nil {
		panic("flowgraph: reducer cannot be nil")
	}
	return &Graph[S]{
		reducer:          reducer,
		nodes:            registry.New[string, NodeFunc[S]](),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]*conditionalEdge[S]),
		expectedLabels:   make(map[string][]string),
		terminals:        make(map[string]bool),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == END {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.nodes.Register(id, fn); err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
		}
		panic(fmt.Sprintf("flowgraph: %v", err))
	}
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge: after from executes, router
// returns a label and routes maps that label to the next node ID (or END).
// Returns the graph for method chaining.
//
// A router returning a label missing from routes fails the run. Declare the
// labels a router can produce with ExpectLabels to catch such gaps at
// Compile() time instead.
//
// Panics if router is nil or routes is empty.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], routes map[string]string) *Graph[S] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}
	if len(routes) == 0 {
		panic("flowgraph: conditional edge needs at least one route")
	}

	table := make(map[string]string, len(routes))
	for label, to := range routes {
		table[label] = to
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = &conditionalEdge[S]{router: router, routes: table}
	return g
}

// ExpectLabels declares the labels the router on from can return.
// Compile fails with ErrUnmappedLabel if any of them has no route.
// Returns the graph for method chaining.
func (g *Graph[S]) ExpectLabels(from string, labels ...string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expectedLabels[from] = append(g.expectedLabels[from], labels...)
	return g
}

// AddTerminal marks nodes after which the run terminates.
// Terminal nodes must not have outgoing edges.
// Returns the graph for method chaining.
func (g *Graph[S]) AddTerminal(ids ...string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		g.terminals[id] = true
	}
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
