// Package anthropic provides a completion client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
)

// Options configures the Anthropic client (model id, temperature, default
// max tokens, API key). Request values override Model and MaxTokens.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Client implements core.CompletionClient on top of the official SDK.
type Client struct {
	client *anthropic.Client
	opts   Options
}

var _ core.CompletionClient = (*Client)(nil)

// NewClient creates a client using the official SDK. Without an explicit API
// key the SDK reads ANTHROPIC_API_KEY.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Complete sends the formatted events as a single Messages API call and
// returns the concatenated text blocks of the reply.
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    buildMessages(req.Events),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}

	return b.String(), nil
}

// buildMessages converts events into Anthropic messages. Consecutive events of
// the same role are merged so the conversation alternates as the API expects.
func buildMessages(events []core.Event) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		role     string
		blocks   []anthropic.ContentBlockParamUnion
	)

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == completion.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, m := range completion.FormatEvents(events) {
		if m.Content == "" {
			continue
		}
		if m.Role != role {
			flush()
			role = m.Role
		}
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	flush()

	return messages
}
