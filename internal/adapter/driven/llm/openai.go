package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Reviewer = (*OpenAIReviewer)(nil)

// OpenAIReviewer talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIReviewer struct {
	chat  *openai.ChatModel
	model string
}

// NewOpenAIReviewer creates the chat model client. No request is made until
// Complete is called.
func NewOpenAIReviewer(ctx context.Context, cfg Config) (*OpenAIReviewer, error) {
	temp := float32(temperature)
	tokens := maxTokens

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return &OpenAIReviewer{chat: chat, model: cfg.Model}, nil
}

// Complete sends one system/user exchange and returns the assistant text.
func (r *OpenAIReviewer) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := r.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("chat completion returned no content")
	}
	return msg.Content, nil
}

// Model returns the configured model name.
func (r *OpenAIReviewer) Model() string { return r.model }
