package schemas

import (
	"context"
	"encoding/json"
)

// Secret is a string that never leaks through logs or serialization. The
// underlying value is only reachable through Reveal.
type Secret string

const secretMask = "**********"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secretMask
}

// Reveal returns the wrapped value.
func (s Secret) Reveal() string { return string(s) }

// MarshalJSON masks the value. Secrets travel into the agent frameworks via
// Reveal at the call site, never through generic serialization.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + secretMask + `"`), nil
}

// UnmarshalJSON accepts the raw value so deps can be decoded from requests.
// Escapes must round-trip, credentials routinely carry quotes and backslashes.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Non-string input (numbers, booleans) is kept verbatim.
		*s = Secret(data)
		return nil
	}
	*s = Secret(raw)
	return nil
}

// LLMModel describes one registered hosted model.
type LLMModel struct {
	ModelName        string         `json:"model_name"`
	Provider         string         `json:"provider"`
	ModelID          string         `json:"model_id"`
	Capabilities     []string       `json:"capabilities,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// LLMModelsResponse is the body of GET /llm-models.
type LLMModelsResponse struct {
	Models []LLMModel `json:"models"`
}

// Tool describes one registered agent tool.
type Tool struct {
	ToolID          string      `json:"tool_id"`
	ToolDisplayName string      `json:"tool_display_name"`
	ToolDescription string      `json:"tool_description"`
	DefaultModel    string      `json:"default_model,omitempty"`
	AllowedModels   []string    `json:"allowed_models"`
	ToolSchema      []FieldSpec `json:"tool_schema,omitempty"`
}

// ToolsResponse is the body of GET /tools.
type ToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// Control is a single check inside a predefined framework.
type Control struct {
	ControlID   string `json:"control_id" yaml:"control_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Prompt      string `json:"prompt" yaml:"prompt"`
}

// Framework is a predefined set of controls loaded from the framework
// catalog directory.
type Framework struct {
	FrameworkID string    `json:"framework_id" yaml:"framework_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Controls    []Control `json:"controls" yaml:"controls"`
}

// FrameworksResponse is the body of GET /predefined-frameworks.
type FrameworksResponse struct {
	Frameworks []Framework `json:"frameworks"`
}

// AgentPrompt is the structured command the interpreter derives from a
// free-text user request. It is what POST /command_interpreter returns.
type AgentPrompt struct {
	UserPrompt        string `json:"user_prompt"`
	TargetInformation string `json:"target_information"`
	CheckInformation  string `json:"check_information"`
	Username          string `json:"username"`
	Password          Secret `json:"password"`
	LoginInstructions string `json:"login_instructions"`
	MFASecret         Secret `json:"mfa_secret,omitempty"`
}

// GenerationOptions tune a single LLM call.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}

// GenerationRequest is one prompt handed to an LLM client.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient is the handle returned by the llmclient factories. Ownership is
// the caller's; Close releases provider resources.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	ModelID() string
	Close() error
}
