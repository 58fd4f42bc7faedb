package provider

import (
	"context"
	"errors"

	"github.com/avrahamavi/docuquery/config"
	groq_provider "github.com/avrahamavi/docuquery/provider/groq"
)

// Client represents different LLM providers.
type Client string

const (
	Groq      Client = "groq"
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Provider is the interface the answer generator must satisfy.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewProvider creates a new LLM client based on the provided configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case Groq, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return groq_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	case OpenAI:
		return nil, errors.New("openai client not implemented yet")
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
