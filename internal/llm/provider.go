// Package llm sends prompts to a language model and returns its answer.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kartoza/home-energy-assistant/internal/config"
)

// Provider generates a completion for a single prompt
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Options are generation knobs shared by providers
type Options struct {
	Temperature float64
	MaxTokens   int
	HTTPTimeout time.Duration
}

// NewProvider builds the provider selected by cfg.Provider
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	opts := Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return NewOllama(cfg.OllamaHost, cfg.Model, opts), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider needs llm.openai_api_key or OPENAI_API_KEY")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, opts), nil
	case "placeholder":
		return NewPlaceholder(), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// Placeholder answers without a model. Useful for local development.
type Placeholder struct{}

var _ Provider = (*Placeholder)(nil)

// NewPlaceholder returns the canned provider
func NewPlaceholder() *Placeholder { return &Placeholder{} }

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := ""
	if i := strings.LastIndex(prompt, "User's Question: "); i >= 0 {
		question = prompt[i+len("User's Question: "):]
		if j := strings.Index(question, "\n"); j >= 0 {
			question = question[:j]
		}
	}
	return fmt.Sprintf("No language model is configured. You asked: %q", strings.TrimSpace(question)), nil
}
