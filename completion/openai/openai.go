// Package openai provides a completion client for the OpenAI Chat Completions
// API. It adapts formatted agentloop events into the SDK's message format.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
)

// Options configure the OpenAI client. Request values override Model and
// MaxCompletionTokens.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Client implements core.CompletionClient.
type Client struct {
	client *openai.Client
	opts   Options
}

var _ core.CompletionClient = (*Client)(nil)

// NewClient creates a client using the official SDK. Without an explicit API
// key the SDK reads OPENAI_API_KEY.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Complete performs a non-streaming chat completion and returns the content of
// the first choice.
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Events),
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

func buildMessages(events []core.Event) []openai.ChatCompletionMessageParamUnion {
	formatted := completion.FormatEvents(events)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(formatted))
	for _, m := range formatted {
		switch m.Role {
		case completion.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}
