package actions

import (
	"context"
	"strings"

	"github.com/randalmurphal/taskrouter/internal/agent"
)

// KeywordPlanner proposes the first action whose trigger appears in the
// query. Actions are tried in the order given.
type KeywordPlanner struct {
	actions []Action
}

// NewKeywordPlanner creates a planner over the ordered actions.
func NewKeywordPlanner(actions ...Action) *KeywordPlanner {
	return &KeywordPlanner{actions: actions}
}

// Plan implements agent.Planner. An unmatched query yields an empty proposal.
func (p *KeywordPlanner) Plan(_ context.Context, query string, _ []agent.Message) (agent.Proposal, error) {
	q := strings.ToLower(query)
	for _, a := range p.actions {
		for _, t := range a.Triggers {
			if t != "" && strings.Contains(q, strings.ToLower(t)) {
				return agent.Proposal{Calls: []agent.ToolCall{{Name: a.Name, Args: map[string]any{}}}}, nil
			}
		}
	}
	return agent.Proposal{}, nil
}
