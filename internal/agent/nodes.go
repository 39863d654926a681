package agent

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
)

// Node IDs of the router graph.
const (
	NodeArbitration    = "arbitration"
	NodeQA             = "qa_task"
	NodeTaskAllocation = "task_allocation"
	NodeApproval       = "human_approval"
	NodeTools          = "tools"
)

// Routing decisions set by the approval node.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionNoAction = "no_action"
)

// Fixed texts.
const (
	ApprovalQuestion    = "Do you approve the following tool calls? Type 'yes' to approve."
	UnrecognizedCommand = "无法识别的实车指令。"
	abandonedToolResult = "cancelled: superseded by a new request"
	rejectedToolResult  = "cancelled: not approved"
)

// ApprovalRequest is the interrupt payload raised before actions run.
type ApprovalRequest struct {
	Question  string         `json:"question"`
	Function  string         `json:"function"`
	Args      map[string]any `json:"args,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls"`
}

// Approved reports whether a resume decision approves the pending calls:
// "yes" or "y", case-insensitive.
func Approved(decision any) bool {
	s, ok := decision.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true
	}
	return false
}

// nodes holds the collaborators the router graph's nodes call.
type nodes struct {
	classifier Classifier
	responder  Responder
	planner    Planner
	executor   Executor
}

// arbitrate is the router node: it only sets the routing decision.
func (n *nodes) arbitrate(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	label := n.classifier.Classify(s.Query, s.History)
	ctx.Logger().Info("arbitration decided", slog.String("category", label))
	return flowgraph.Update(State{RoutingDecision: label}), nil
}

// answer is the responder node. A failed model call becomes the response.
func (n *nodes) answer(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	reply, err := n.responder.Respond(ctx, s.Query, s.History)
	if err != nil {
		ctx.Logger().Error("responder failed", slog.String("error", err.Error()))
		return flowgraph.Update(State{Response: fmt.Sprintf("QA Agent Error: %v", err)}), nil
	}

	appended := reply.Append
	if len(appended) == 0 {
		appended = []Message{AssistantMessage(reply.Text)}
	}
	return flowgraph.Update(State{Response: reply.Text, History: appended}), nil
}

// allocate asks the planner for tool calls and records the proposal.
func (n *nodes) allocate(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	proposal, err := n.planner.Plan(ctx, s.Query, s.History)
	if err != nil {
		return flowgraph.Outcome[State]{}, fmt.Errorf("plan action: %w", err)
	}

	calls := make([]ToolCall, len(proposal.Calls))
	for i, c := range proposal.Calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		calls[i] = c
	}

	content := proposal.Content
	if len(calls) == 0 && content == "" {
		content = UnrecognizedCommand
	}
	ctx.Logger().Info("action proposed", slog.Int("tool_calls", len(calls)))

	return flowgraph.Update(State{
		Response: content,
		History:  []Message{AssistantMessage(content, calls...)},
	}), nil
}

// approve suspends for a human decision on the pending tool calls.
// When resumed it routes to the tools node or ends the run.
func (n *nodes) approve(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	calls := s.PendingToolCalls()
	if len(calls) == 0 {
		ctx.Logger().Error("no tool calls found in the last message")
		return flowgraph.Update(State{RoutingDecision: DecisionNoAction}), nil
	}

	decision, resumed := ctx.ResumeValue()
	if !resumed {
		return flowgraph.Suspend[State](ApprovalRequest{
			Question:  ApprovalQuestion,
			Function:  calls[0].Name,
			Args:      calls[0].Args,
			ToolCalls: calls,
		}), nil
	}

	if Approved(decision) {
		ctx.Logger().Info("tool calls approved", slog.Int("tool_calls", len(calls)))
		return flowgraph.Update(State{RoutingDecision: DecisionApproved}), nil
	}

	ctx.Logger().Info("tool calls rejected", slog.Any("decision", decision))
	names := make([]string, len(calls))
	results := make([]Message, len(calls))
	for i, c := range calls {
		names[i] = c.Name
		results[i] = ToolMessage(c.ID, rejectedToolResult)
	}
	return flowgraph.Update(State{
		RoutingDecision: DecisionRejected,
		Response:        fmt.Sprintf("Action %s was not approved.", strings.Join(names, ", ")),
		History:         results,
	}), nil
}

// runTools executes the approved tool calls in order.
func (n *nodes) runTools(ctx flowgraph.Context, s State) (flowgraph.Outcome[State], error) {
	calls := s.PendingToolCalls()
	results := make([]Message, 0, len(calls))
	texts := make([]string, 0, len(calls))

	for _, c := range calls {
		out, err := n.executor.Execute(ctx, c.Name, c.Args)
		if err != nil {
			ctx.Logger().Error("action failed",
				slog.String("action", c.Name),
				slog.String("error", err.Error()))
			out = fmt.Sprintf("%s failed: %v", c.Name, err)
		} else {
			ctx.Logger().Info("action executed", slog.String("action", c.Name))
		}
		results = append(results, ToolMessage(c.ID, out))
		texts = append(texts, out)
	}

	return flowgraph.Update(State{
		Response: strings.Join(texts, "\n"),
		History:  results,
	}), nil
}
