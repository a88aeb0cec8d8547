package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/config"
)

// NewClient is a factory returning an LLMClient for the configured provider.
// It validates credentials eagerly: a missing API key fails here, before any
// network activity.
func NewClient(ctx context.Context, provider config.LLMProvider, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, err := cfg.ForProvider(provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(modelCfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, modelCfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q", provider)
	}
}
