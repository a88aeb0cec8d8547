package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/config"
)

// GeminiClient implements schemas.LLMClient on top of the google.golang.org/genai SDK.
type GeminiClient struct {
	client  *genai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.LLMModelConfig
}

// NewGeminiClient initializes the client. The key check happens before the
// SDK client is constructed so a misconfigured process fails at startup, not
// on the first request.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is not set, ensure AGENTGATE_GEMINI_API_KEY is configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &GeminiClient{
		client:  client,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// ModelID returns the model this handle is bound to.
func (c *GeminiClient) ModelID() string { return c.config.Model }

// Close releases SDK resources.
func (c *GeminiClient) Close() error { return nil }

// Generate sends the prompts to the Gemini API. Retries are delegated to the
// SDK's transport; this layer only enforces the request rate and timeout.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	temperature := req.Options.Temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if c.config.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}

	startTime := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini API returned no content")
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.Duration("duration", time.Since(startTime)),
		zap.String("model", c.config.Model),
	)
	return text, nil
}
