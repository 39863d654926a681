package flowgraph

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
)

// testState is the state used across engine tests.
type testState struct {
	Query  string   `json:"query,omitempty"`
	Output string   `json:"output,omitempty"`
	Route  string   `json:"route,omitempty"`
	Trail  []string `json:"trail,omitempty"`
	Count  int      `json:"count,omitempty"`
}

// mergeTest replaces non-empty scalars, appends Trail and adds Count.
func mergeTest(base, partial testState) testState {
	out := base
	if partial.Query != "" {
		out.Query = partial.Query
	}
	if partial.Output != "" {
		out.Output = partial.Output
	}
	if partial.Route != "" {
		out.Route = partial.Route
	}
	out.Trail = append(slices.Clone(base.Trail), partial.Trail...)
	out.Count += partial.Count
	return out
}

// Helper node functions

// visit records its name in Trail and counts one execution.
func visit(name string) NodeFunc[testState] {
	return func(ctx Context, s testState) (Outcome[testState], error) {
		return Update(testState{Trail: []string{name}, Count: 1}), nil
	}
}

// respond sets Output and records its name.
func respond(name, output string) NodeFunc[testState] {
	return func(ctx Context, s testState) (Outcome[testState], error) {
		return Update(testState{Trail: []string{name}, Output: output}), nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc[testState] {
	return func(ctx Context, s testState) (Outcome[testState], error) {
		return Outcome[testState]{}, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc[testState] {
	return func(ctx Context, s testState) (Outcome[testState], error) {
		panic(value)
	}
}

// byRoute routes on the Route field.
func byRoute(ctx Context, s testState) string {
	return s.Route
}

type approvalPayload struct {
	Question string `json:"question"`
	Action   string `json:"action"`
}

// gate suspends until resumed, then routes to "act" on "yes" and "halt" otherwise.
func gate(entered *atomic.Int32) NodeFunc[testState] {
	return func(ctx Context, s testState) (Outcome[testState], error) {
		if entered != nil {
			entered.Add(1)
		}
		decision, ok := ctx.ResumeValue()
		if !ok {
			return Suspend[testState](approvalPayload{Question: "proceed?", Action: s.Query}), nil
		}
		if decision == "yes" {
			return Update(testState{Trail: []string{"gate"}, Route: "act"}), nil
		}
		return Update(testState{Trail: []string{"gate"}, Route: "halt", Output: "rejected"}), nil
	}
}

// approvalGraph is route -> gate -> (act | END).
func approvalGraph(actions *atomic.Int32) *Graph[testState] {
	act := func(ctx Context, s testState) (Outcome[testState], error) {
		actions.Add(1)
		return Update(testState{Trail: []string{"act"}, Output: "done: " + s.Query}), nil
	}
	return NewGraph(mergeTest).
		AddNode("start", visit("start")).
		AddNode("gate", gate(nil)).
		AddNode("act", act).
		AddEdge("start", "gate").
		AddConditionalEdge("gate", byRoute, map[string]string{
			"act":  "act",
			"halt": END,
		}).
		ExpectLabels("gate", "act", "halt").
		AddTerminal("act").
		SetEntry("start")
}

// failingStore fails every Save after the first allowed ones.
type failingStore struct {
	*checkpoint.MemoryStore
	allowed atomic.Int32
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if s.allowed.Add(-1) < 0 {
		return errDiskFull
	}
	return s.MemoryStore.Save(ctx, cp)
}
