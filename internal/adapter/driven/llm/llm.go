// Package llm adapts hosted reasoning models to the driven.Reviewer port.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Providers accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	temperature = 0.3
	maxTokens   = 4000
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the Reviewer for cfg.Provider. The OpenAI-compatible adapter is
// the default and also serves DeepSeek-style endpoints.
func New(ctx context.Context, cfg Config) (driven.Reviewer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIReviewer(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropicReviewer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
