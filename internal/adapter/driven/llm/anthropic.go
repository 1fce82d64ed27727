package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Reviewer = (*AnthropicReviewer)(nil)

// AnthropicReviewer wraps the Anthropic Messages API.
type AnthropicReviewer struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicReviewer creates a client. An empty API key falls back to the
// SDK's environment lookup.
func NewAnthropicReviewer(cfg Config) *AnthropicReviewer {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicReviewer{api: &client, model: anthropic.Model(cfg.Model)}
}

// Complete sends one system/user exchange and returns the first text block.
func (r *AnthropicReviewer) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := r.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       r.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in API response")
}

// Model returns the configured model name.
func (r *AnthropicReviewer) Model() string { return string(r.model) }
