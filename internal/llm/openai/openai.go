// Package openai implements the LLM provider interface on top of the
// official OpenAI Go SDK (Chat Completions API).
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jkaninda/duka/internal/llm"
	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 512
)

// Client implements llm.Provider using the OpenAI Chat Completions API.
type Client struct {
	model  string
	name   string
	sdk    oai.Client
	logger *slog.Logger
}

// Option configures the OpenAI client.
type Option func(*settings)

type settings struct {
	name string
	opts []option.RequestOption
}

// WithBaseURL overrides the API base URL (e.g. an OpenAI-compatible gateway).
func WithBaseURL(url string) Option {
	return func(s *settings) { s.opts = append(s.opts, option.WithBaseURL(url)) }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.opts = append(s.opts, option.WithHTTPClient(hc)) }
}

// WithName overrides the provider name.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// NewClient creates an OpenAI provider. SDK-level retries are disabled;
// wrap the client in llm.RetryProvider instead.
func NewClient(apiKey, model string, logger *slog.Logger, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	s := &settings{name: "openai"}
	for _, opt := range opts {
		opt(s)
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, s.opts...)

	return &Client{
		model:  model,
		name:   s.name,
		sdk:    oai.NewClient(reqOpts...),
		logger: logger,
	}
}

func (c *Client) Name() string { return c.name }

// SendMessage sends the conversation to the Chat Completions API.
func (c *Client) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	completion, err := c.sdk.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: empty choices")
	}

	choice := completion.Choices[0]
	resp := &llm.Response{
		Content:    choice.Message.Content,
		StopReason: llm.NormalizeStopReason(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}

	c.logger.DebugContext(ctx, "llm request completed",
		slog.String("provider", c.name),
		slog.String("model", c.model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.String("stop_reason", resp.StopReason),
	)
	return resp, nil
}

func (c *Client) buildParams(req *llm.Request) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: oai.Int(int64(maxTokens)),
		Temperature:         oai.Float(req.Temperature),
	}
	if req.JSON {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

var _ llm.Provider = (*Client)(nil)
