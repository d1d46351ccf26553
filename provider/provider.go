package provider

import (
	"context"
	"errors"

	"github.com/fedpulse/fedpulse/config"
	openai_provider "github.com/fedpulse/fedpulse/provider/openai"
)

// Provider is the interface all generative-text implementations must satisfy.
// CompleteJSON sends one instruction/input pair and returns the model's raw
// output, which callers validate against their stage schema.
type Provider interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// NewProvider creates an LLM client based on the provided configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(cfg), nil
	case "anthropic":
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Type)
	}
}
