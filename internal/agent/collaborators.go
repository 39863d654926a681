package agent

import "context"

// Reply is what a Responder produces for a question.
type Reply struct {
	Text string
	// Append is added to History. When empty the node appends an assistant
	// message carrying Text.
	Append []Message
}

// Responder answers general questions, typically with a language model.
type Responder interface {
	Respond(ctx context.Context, query string, history []Message) (Reply, error)
}

// Proposal is a planner's answer to a command.
type Proposal struct {
	// Content is the assistant text accompanying the calls, if any.
	Content string
	Calls   []ToolCall
}

// Planner turns a command into proposed tool calls. A proposal without
// calls means the command was not recognised.
type Planner interface {
	Plan(ctx context.Context, query string, history []Message) (Proposal, error)
}

// Executor runs a named action. Actions are not retried.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, query string, history []Message) (Reply, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, query string, history []Message) (Reply, error) {
	return f(ctx, query, history)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, query string, history []Message) (Proposal, error)

// Plan calls f.
func (f PlannerFunc) Plan(ctx context.Context, query string, history []Message) (Proposal, error) {
	return f(ctx, query, history)
}
