package agent

import (
	"context"
	"sync"
)

// recordingExecutor records every call and returns "ran <name>".
type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *recordingExecutor) Execute(_ context.Context, name string, _ map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
	if e.err != nil {
		return "", e.err
	}
	return "ran " + name, nil
}

func (e *recordingExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func echoResponder() Responder {
	return ResponderFunc(func(_ context.Context, query string, _ []Message) (Reply, error) {
		return Reply{Text: "answer: " + query}, nil
	})
}

func startPlanner() Planner {
	return PlannerFunc(func(context.Context, string, []Message) (Proposal, error) {
		return Proposal{Calls: []ToolCall{{Name: "start_vehicle", Args: map[string]any{}}}}, nil
	})
}

func testDeps(exec Executor) Deps {
	return Deps{
		Classifier: DefaultClassifier(),
		Responder:  echoResponder(),
		Planner:    startPlanner(),
		Executor:   exec,
	}
}
