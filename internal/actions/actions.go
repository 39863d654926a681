// Package actions holds the side-effecting capabilities the router can
// propose, and a keyword planner that proposes them.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/registry"
)

// ErrUnknownAction is returned when executing an unregistered action.
var ErrUnknownAction = errors.New("unknown action")

// Func performs an action and returns its result text.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Action is a named capability.
type Action struct {
	Name        string
	Description string
	// Triggers are the phrases the keyword planner selects this action by.
	Triggers []string
	// Parameters is the JSON schema of the arguments offered to a model
	// planner. Nil means no arguments.
	Parameters map[string]any
	Run        Func
}

// Registry is the set of actions available to the tools node.
type Registry struct {
	actions *registry.Registry[string, Action]
	logger  *slog.Logger
}

// NewRegistry creates a registry with the given actions.
// Panics on duplicate or unnamed actions.
func NewRegistry(logger *slog.Logger, actions ...Action) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{actions: registry.New[string, Action](), logger: logger}
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			panic(fmt.Sprintf("actions: %v", err))
		}
	}
	return r
}

// Register adds an action.
func (r *Registry) Register(a Action) error {
	if a.Name == "" {
		return errors.New("action name cannot be empty")
	}
	if a.Run == nil {
		return fmt.Errorf("action %s has no function", a.Name)
	}
	if err := r.actions.Register(a.Name, a); err != nil {
		return fmt.Errorf("action %s: %w", a.Name, err)
	}
	return nil
}

// Execute runs the named action.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	a, ok := r.actions.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	r.logger.Info("executing action", slog.String("action", name))
	return a.Run(ctx, args)
}

// List returns the registered actions in name order.
func (r *Registry) List() []Action {
	out := make([]Action, 0, r.actions.Len())
	r.actions.Range(func(_ string, a Action) bool {
		out = append(out, a)
		return true
	})
	return out
}

// Names returns the registered action names in order.
func (r *Registry) Names() []string {
	return r.actions.Keys()
}
