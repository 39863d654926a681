package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/randalmurphal/taskrouter/internal/actions"
	"github.com/randalmurphal/taskrouter/internal/agent"
)

// Planner lets the chat model choose among registered actions.
type Planner struct {
	client *Client
	tools  []openai.ChatCompletionToolParam
}

// NewPlanner creates a Planner offering the given actions as tools.
func NewPlanner(c *Client, acts []actions.Action) *Planner {
	tools := make([]openai.ChatCompletionToolParam, 0, len(acts))
	for _, a := range acts {
		params := a.Parameters
		if params == nil {
			params = shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        a.Name,
				Description: openai.String(a.Description),
				Parameters:  params,
			},
		})
	}
	return &Planner{client: c, tools: tools}
}

// Plan implements agent.Planner.
func (p *Planner) Plan(ctx context.Context, query string, history []agent.Message) (agent.Proposal, error) {
	msg, err := p.client.complete(ctx, PlanPrompt, query, history, p.tools)
	if err != nil {
		return agent.Proposal{}, err
	}

	proposal := agent.Proposal{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return agent.Proposal{}, fmt.Errorf("decode arguments of %s: %w", tc.Function.Name, err)
			}
		}
		proposal.Calls = append(proposal.Calls, agent.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return proposal, nil
}
