package agent

import "slices"

// Role identifies the author of a history entry.
type Role string

// History roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a proposed action invocation.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserMessage returns a user history entry.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant history entry.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage returns the result entry for a tool call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// State is the record threaded through the router graph for one session.
type State struct {
	// Query is the last user input.
	Query string `json:"query"`
	// Response is surfaced to the caller when the run terminates.
	Response string `json:"response"`
	// RoutingDecision is the label the next conditional edge reads.
	RoutingDecision string `json:"routing_decision"`
	// History is the append-only conversation memory.
	History []Message `json:"history"`
}

// LastMessage returns the most recent history entry.
func (s State) LastMessage() (Message, bool) {
	if len(s.History) == 0 {
		return Message{}, false
	}
	return s.History[len(s.History)-1], true
}

// PendingToolCalls returns the tool calls of the last assistant message.
func (s State) PendingToolCalls() []ToolCall {
	last, ok := s.LastMessage()
	if !ok || last.Role != RoleAssistant {
		return nil
	}
	return last.ToolCalls
}

// BeginTurn clears the fields that belong to a single run so a new query
// never reports the previous answer or follows the previous route.
// Query and History carry over.
func BeginTurn(base State) State {
	base.Response = ""
	base.RoutingDecision = ""
	return base
}

// Merge is the router graph's reducer. Non-empty scalar fields of partial
// replace those of base; History is concatenated. Use BeginTurn to clear
// per-run fields.
func Merge(base, partial State) State {
	out := base
	if partial.Query != "" {
		out.Query = partial.Query
	}
	if partial.Response != "" {
		out.Response = partial.Response
	}
	if partial.RoutingDecision != "" {
		out.RoutingDecision = partial.RoutingDecision
	}
	if len(partial.History) > 0 {
		out.History = append(slices.Clip(base.History), partial.History...)
	}
	return out
}
