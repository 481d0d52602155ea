package ai

import (
	"context"
	"fmt"

	"github.com/v0xg/deskagent/internal/config"
)

// Provider is a decision model. Submit sends one system/user prompt pair and
// returns the model's raw text reply.
type Provider interface {
	Submit(ctx context.Context, system, user string) (string, error)
}

// NewProvider builds the provider variant selected by cfg.Provider. An
// unknown selector is an error here, never later.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewClaudeProvider(cfg)
	case config.ProviderOpenAI, config.ProviderVLLM:
		return NewOpenAIProvider(cfg)
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %q (supported: openai, anthropic, gemini, vllm)", cfg.Provider)
	}
}

func requireKey(cfg config.LLMConfig, env string) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("llm.api_key or %s environment variable required for provider %s", env, cfg.Provider)
	}
	return nil
}
