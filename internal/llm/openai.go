// Package llm adapts an OpenAI-compatible chat completion API to the
// router's Responder and Planner.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/randalmurphal/taskrouter/internal/agent"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/retry"
)

// Prompts sent as the system message.
const (
	AnswerPrompt = "Please answer the question based on query and chat history of user"
	PlanPrompt   = "Please choose the best function to perform based on query of user"
)

// ErrNoChoices is returned when the model answers with no choices.
var ErrNoChoices = errors.New("model returned no choices")

// Config configures the chat completion client.
type Config struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// MaxAttempts bounds requests per completion, including the first.
	// Only rate limits, server errors and timeouts are retried.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Client sends chat completions for the router's nodes.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	policy      retry.Policy
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	policy     *retry.Policy
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithRetryPolicy replaces the backoff policy. MaxAttempts from Config
// still applies when set.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *clientOptions) { o.policy = &p }
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var reqOpts []openaiopt.RequestOption
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, openaiopt.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, openaiopt.WithHTTPClient(o.httpClient), openaiopt.WithMaxRetries(0))

	policy := retry.DefaultPolicy
	if o.policy != nil {
		policy = *o.policy
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	policy.Retryable = isTransient

	c := &Client{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		policy:      policy,
		logger:      o.logger,
	}
	c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("retrying chat completion",
			slog.String("model", c.model),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))
	}
	return c, nil
}

// isTransient maps API status codes onto retry categories.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retry.CategorizeStatus(apiErr.StatusCode) == retry.CategoryTransient
	}
	return retry.IsRetryable(err)
}

// complete sends one chat completion request and returns the first choice.
func (c *Client) complete(ctx context.Context, system, query string, history []agent.Message, tools []openai.ChatCompletionToolParam) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    buildMessages(system, query, history),
		Temperature: openai.Float(c.temperature),
		Tools:       tools,
	}

	res := retry.Do(ctx, c.policy, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, req)
	})
	if res.Err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("chat completion: %w", res.Err)
	}
	resp := res.Value
	c.logger.Debug("chat completion",
		slog.String("model", c.model),
		slog.Int("messages", len(req.Messages)),
		slog.Int("attempts", res.Attempts),
		slog.Int64("total_tokens", resp.Usage.TotalTokens),
		slog.Duration("elapsed", res.Duration))

	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, ErrNoChoices
	}
	return resp.Choices[0].Message, nil
}

// buildMessages lays out the system prompt, the chat history and the query.
// The query is not repeated when history already ends with it.
func buildMessages(system, query string, history []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	out = append(out, openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(system)},
		},
	})
	for _, m := range history {
		out = append(out, convertMessage(m))
	}
	if last := len(history) - 1; last < 0 || history[last].Role != agent.RoleUser || history[last].Content != query {
		out = append(out, convertMessage(agent.UserMessage(query)))
	}
	return out
}

func convertMessage(m agent.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case agent.RoleAssistant:
		msg := &openai.ChatCompletionAssistantMessageParam{ToolCalls: convertToolCalls(m.ToolCalls)}
		if m.Content != "" {
			msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: msg}
	case agent.RoleTool:
		return openai.ChatCompletionMessageParamUnion{
			OfTool: &openai.ChatCompletionToolMessageParam{
				Content:    openai.ChatCompletionToolMessageParamContentUnion{OfString: openai.String(m.Content)},
				ToolCallID: m.ToolCallID,
			},
		}
	default:
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
			},
		}
	}
}

func convertToolCalls(calls []agent.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var out []openai.ChatCompletionMessageToolCallParam
	for _, c := range calls {
		args, err := json.Marshal(c.Args)
		if err != nil || c.Args == nil {
			args = []byte("{}")
		}
		out = append(out, openai.ChatCompletionMessageToolCallParam{
			ID: c.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}
