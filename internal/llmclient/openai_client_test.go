package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/config"
)

func testModelConfig(endpoint string) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:          config.ProviderOpenAI,
		Model:             "gpt-4.1",
		APIKey:            "test-key",
		Endpoint:          endpoint,
		APITimeout:        5 * time.Second,
		RequestsPerMinute: 6000,
	}
}

func openAIResponse(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("MissingKeyFailsFast", func(t *testing.T) {
		cfg := testModelConfig("")
		cfg.APIKey = ""
		_, err := NewOpenAIClient(cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AGENTGATE_OPENAI_API_KEY")
	})

	t.Run("DefaultEndpointApplied", func(t *testing.T) {
		client, err := NewOpenAIClient(testModelConfig(""), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, defaultOpenAIEndpoint, client.endpoint)
		assert.Equal(t, "gpt-4.1", client.ModelID())
	})
}

func TestOpenAIGenerate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotPayload openAIRequestPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(openAIResponse(`{"answer": 42}`)))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
		require.NoError(t, err)

		content, err := client.Generate(context.Background(), schemas.GenerationRequest{
			SystemPrompt: "you are a calculator",
			UserPrompt:   "what is 6*7",
			Options:      schemas.GenerationOptions{ForceJSONFormat: true},
		})
		require.NoError(t, err)
		assert.Equal(t, `{"answer": 42}`, content)

		require.Len(t, gotPayload.Messages, 2)
		assert.Equal(t, "system", gotPayload.Messages[0].Role)
		assert.Equal(t, "you are a calculator", gotPayload.Messages[0].Content)
		require.NotNil(t, gotPayload.ResponseFormat)
		assert.Equal(t, "json_object", gotPayload.ResponseFormat.Type)
	})

	t.Run("RetriesOn429", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(openAIResponse("recovered")))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
		require.NoError(t, err)

		content, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "recovered", content)
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	})

	t.Run("ClientErrorIsPermanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "bad request"}}`))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
	})

	t.Run("NoChoicesIsPermanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})
}

func TestFactory(t *testing.T) {
	logger := zap.NewNop()

	t.Run("UnknownProvider", func(t *testing.T) {
		_, err := NewClient(context.Background(), config.LLMProvider("anthropic"), config.LLMConfig{}, logger)
		assert.Error(t, err)
	})

	t.Run("OpenAIWithoutKey", func(t *testing.T) {
		cfg := config.LLMConfig{
			OpenAI: config.LLMModelConfig{Provider: config.ProviderOpenAI, Model: "gpt-4.1"},
		}
		_, err := NewClient(context.Background(), config.ProviderOpenAI, cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("GeminiWithoutKey", func(t *testing.T) {
		cfg := config.LLMConfig{
			Gemini: config.LLMModelConfig{Provider: config.ProviderGemini, Model: "gemini-2.5-flash"},
		}
		_, err := NewClient(context.Background(), config.ProviderGemini, cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})
}
