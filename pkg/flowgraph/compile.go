package flowgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Every defect found is reported in a single *ConfigError; use errors.Is
// with the sentinel errors to inspect it.
//
// Validation checks:
//  1. Entry point must be set and reference an existing node
//  2. Edge and route sources and targets must reference existing nodes or END
//  3. Every label declared with ExpectLabels must have a route
//  4. Terminal nodes must exist and have no outgoing edges
//  5. Every other node must have exactly one way out: one static edge or
//     one conditional edge
//  6. Every node reachable from the entry must be able to reach END or a
//     terminal node
//
// Unreachable nodes (not reachable from entry) are logged as warnings
// but do not cause compilation to fail.
func (g *Graph[S]) Compile(opts ...Option) (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if !g.nodes.Has(g.entryPoint) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	errs = append(errs, g.validateEdges()...)
	errs = append(errs, g.validateLabels()...)
	errs = append(errs, g.validateExits()...)

	if g.entryPoint != "" && g.nodes.Has(g.entryPoint) {
		for _, id := range g.nodesWithoutPathToEnd() {
			errs = append(errs, fmt.Errorf("%w: from node '%s'", ErrNoPathToEnd, id))
		}
	}

	hs, optErrs := resolveHandlers[S](&cfg)
	errs = append(errs, optErrs...)

	if len(errs) > 0 {
		return nil, &ConfigError{Err: errors.Join(errs...)}
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	g.warnUnreachableNodes(cfg.logger)

	if cfg.store == nil {
		cfg.store = checkpoint.NewMemoryStore()
	}
	if cfg.locker == nil {
		cfg.locker = session.NewLocalLocker()
	}

	return g.buildCompiledGraph(cfg, hs), nil
}

// validateEdges checks that every edge and route endpoint exists.
func (g *Graph[S]) validateEdges() []error {
	var errs []error

	for _, from := range slices.Sorted(maps.Keys(g.edges)) {
		if !g.nodes.Has(from) {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to != END && !g.nodes.Has(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.conditionalEdges)) {
		if !g.nodes.Has(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		routes := g.conditionalEdges[from].routes
		for _, label := range slices.Sorted(maps.Keys(routes)) {
			to := routes[label]
			if to != END && !g.nodes.Has(to) {
				errs = append(errs, fmt.Errorf("%w: route '%s' from '%s' targets '%s'", ErrNodeNotFound, label, from, to))
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(g.terminals)) {
		if !g.nodes.Has(id) {
			errs = append(errs, fmt.Errorf("%w: terminal '%s' does not exist", ErrNodeNotFound, id))
		}
	}

	return errs
}

// validateLabels checks declared router labels against route tables.
func (g *Graph[S]) validateLabels() []error {
	var errs []error

	for _, from := range slices.Sorted(maps.Keys(g.expectedLabels)) {
		edge, ok := g.conditionalEdges[from]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: labels declared for '%s' which has no conditional edge", ErrUnmappedLabel, from))
			continue
		}
		for _, label := range g.expectedLabels[from] {
			if _, ok := edge.routes[label]; !ok {
				errs = append(errs, fmt.Errorf("%w: '%s' from '%s'", ErrUnmappedLabel, label, from))
			}
		}
	}

	return errs
}

// validateExits checks that every node has exactly one way forward.
func (g *Graph[S]) validateExits() []error {
	var errs []error

	for _, id := range g.nodes.Keys() {
		_, conditional := g.conditionalEdges[id]
		static := len(g.edges[id])

		if g.terminals[id] {
			if conditional || static > 0 {
				errs = append(errs, fmt.Errorf("%w: '%s'", ErrTerminalHasEdges, id))
			}
			continue
		}

		switch {
		case conditional && static > 0:
			errs = append(errs, fmt.Errorf("%w: '%s' has static and conditional edges", ErrAmbiguousEdge, id))
		case static > 1:
			errs = append(errs, fmt.Errorf("%w: '%s' has %d static edges", ErrAmbiguousEdge, id, static))
		case !conditional && static == 0:
			errs = append(errs, fmt.Errorf("%w: '%s'", ErrNoOutgoingEdge, id))
		}
	}

	return errs
}

// successorsOf returns every node ID (or END) that can follow id.
func (g *Graph[S]) successorsOf(id string) []string {
	targets := slices.Clone(g.edges[id])
	if edge, ok := g.conditionalEdges[id]; ok {
		for _, label := range slices.Sorted(maps.Keys(edge.routes)) {
			targets = append(targets, edge.routes[label])
		}
	}
	return targets
}

// nodesWithoutPathToEnd returns reachable nodes that cannot reach END or a
// terminal node, i.e. nodes stuck in a cycle with no exit.
func (g *Graph[S]) nodesWithoutPathToEnd() []string {
	// Find all nodes that can reach END using reverse propagation
	canReachEnd := map[string]bool{END: true}
	for id := range g.terminals {
		canReachEnd[id] = true
	}

	ids := g.nodes.Keys()
	changed := true
	for changed {
		changed = false
		for _, id := range ids {
			if canReachEnd[id] {
				continue
			}
			for _, to := range g.successorsOf(id) {
				if canReachEnd[to] {
					canReachEnd[id] = true
					changed = true
					break
				}
			}
		}
	}

	var stuck []string
	reachable := g.findReachableNodes()
	for _, id := range ids {
		if reachable[id] && !canReachEnd[id] {
			stuck = append(stuck, id)
		}
	}
	return stuck
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph[S]) warnUnreachableNodes(logger *slog.Logger) {
	reachable := g.findReachableNodes()

	for _, id := range g.nodes.Keys() {
		if !reachable[id] {
			logger.Warn("node is unreachable from entry", "node_id", id)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph[S]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	// BFS from entry
	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.successorsOf(current) {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

// handlers are the typed callbacks recovered from compile options.
type handlers[S any] struct {
	onAbandon   AbandonHandler[S]
	onNodeError NodeErrorHandler[S]
	onRunStart  RunStartHandler[S]
}

// resolveHandlers recovers the typed handlers stored on cfg.
func resolveHandlers[S any](cfg *compileConfig) (handlers[S], []error) {
	var (
		errs []error
		hs   handlers[S]
	)

	if cfg.onAbandon != nil {
		h, ok := cfg.onAbandon.(AbandonHandler[S])
		if !ok {
			errs = append(errs, fmt.Errorf("%w: abandon handler is %T", ErrInvalidOption, cfg.onAbandon))
		}
		hs.onAbandon = h
	}

	if cfg.onNodeError != nil {
		h, ok := cfg.onNodeError.(NodeErrorHandler[S])
		if !ok {
			errs = append(errs, fmt.Errorf("%w: node error handler is %T", ErrInvalidOption, cfg.onNodeError))
		}
		hs.onNodeError = h
	}

	if cfg.onRunStart != nil {
		h, ok := cfg.onRunStart.(RunStartHandler[S])
		if !ok {
			errs = append(errs, fmt.Errorf("%w: run start handler is %T", ErrInvalidOption, cfg.onRunStart))
		}
		hs.onRunStart = h
	}

	return hs, errs
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph(cfg compileConfig, hs handlers[S]) *CompiledGraph[S] {
	nodes := make(map[string]NodeFunc[S], g.nodes.Len())
	g.nodes.Range(func(id string, fn NodeFunc[S]) bool {
		nodes[id] = fn
		return true
	})

	edges := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = targets[0]
	}

	conditionalEdges := make(map[string]*conditionalEdge[S], len(g.conditionalEdges))
	for from, edge := range g.conditionalEdges {
		conditionalEdges[from] = &conditionalEdge[S]{
			router: edge.router,
			routes: maps.Clone(edge.routes),
		}
	}

	// Pre-compute predecessors
	predecessors := make(map[string][]string)
	for _, from := range g.nodes.Keys() {
		for _, to := range g.successorsOf(from) {
			if to != END && !slices.Contains(predecessors[to], from) {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	return &CompiledGraph[S]{
		name:             cfg.name,
		reducer:          g.reducer,
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		terminals:        maps.Clone(g.terminals),
		entryPoint:       g.entryPoint,
		predecessors:     predecessors,
		store:            cfg.store,
		locker:           cfg.locker,
		stepBudget:       cfg.stepBudget,
		logger:           cfg.logger,
		metrics:          cfg.metrics,
		spans:            cfg.spans,
		onAbandon:        hs.onAbandon,
		onNodeError:      hs.onNodeError,
		onRunStart:       hs.onRunStart,
	}
}
