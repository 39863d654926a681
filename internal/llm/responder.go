package llm

import (
	"context"

	"github.com/randalmurphal/taskrouter/internal/agent"
)

// Responder answers questions with the chat model.
type Responder struct {
	client *Client
	prompt string
}

// NewResponder creates a Responder using the default answer prompt.
func NewResponder(c *Client) *Responder {
	return &Responder{client: c, prompt: AnswerPrompt}
}

// Respond implements agent.Responder.
func (r *Responder) Respond(ctx context.Context, query string, history []agent.Message) (agent.Reply, error) {
	msg, err := r.client.complete(ctx, r.prompt, query, history, nil)
	if err != nil {
		return agent.Reply{}, err
	}
	return agent.Reply{Text: msg.Content}, nil
}

// StaticResponder always answers with the same text. It serves deployments
// with no model configured.
type StaticResponder string

// Respond implements agent.Responder.
func (s StaticResponder) Respond(context.Context, string, []agent.Message) (agent.Reply, error) {
	return agent.Reply{Text: string(s)}, nil
}
