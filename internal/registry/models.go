package registry

import (
	"fmt"
	"slices"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// ModelMeta describes one hosted model entry.
type ModelMeta struct {
	Provider         string
	ModelID          string
	Capabilities     []string
	AdditionalParams map[string]any
}

// ModelCriteria filters the model catalog. A model matches when its provider
// is in Providers (if set) and it has every capability in Capabilities.
type ModelCriteria struct {
	Providers    []string
	Capabilities []string
}

// models is the static hosted-model catalog. Display names are what the UI
// shows; ModelID is what the provider API expects.
var models = map[string]ModelMeta{
	"GPT-5.1 Thinking": {
		Provider:         "openai",
		ModelID:          "gpt-5.1",
		Capabilities:     []string{"reasoning"},
		AdditionalParams: map[string]any{"reasoning_effort": "high", "temperature": 0},
	},
	"GPT-5.1 Instant": {
		Provider:         "openai",
		ModelID:          "gpt-5.1",
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"GPT-4.1": {
		Provider:         "openai",
		ModelID:          "gpt-4.1",
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"GPT-4.1 Mini": {
		Provider:         "openai",
		ModelID:          "gpt-4.1-mini",
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"GPT-4o Mini": {
		Provider:         "openai",
		ModelID:          "gpt-4o-mini",
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"Gemini 2.5 Pro": {
		Provider:         "gemini",
		ModelID:          "gemini-2.5-pro",
		Capabilities:     []string{"reasoning"},
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"Gemini 2.5 Flash": {
		Provider:         "gemini",
		ModelID:          "gemini-2.5-flash",
		Capabilities:     []string{"reasoning"},
		AdditionalParams: map[string]any{"temperature": 0},
	},
	"Gemini 2.5 Flash-Lite": {
		Provider:         "gemini",
		ModelID:          "gemini-2.5-flash-lite",
		Capabilities:     []string{"reasoning"},
		AdditionalParams: map[string]any{"temperature": 0},
	},
}

// AllModels returns the catalog as serializable records, sorted by name.
func AllModels() []schemas.LLMModel {
	out := make([]schemas.LLMModel, 0, len(models))
	for name, meta := range models {
		out = append(out, schemas.LLMModel{
			ModelName:        name,
			Provider:         meta.Provider,
			ModelID:          meta.ModelID,
			Capabilities:     meta.Capabilities,
			AdditionalParams: meta.AdditionalParams,
		})
	}
	slices.SortFunc(out, func(a, b schemas.LLMModel) int {
		switch {
		case a.ModelName < b.ModelName:
			return -1
		case a.ModelName > b.ModelName:
			return 1
		default:
			return 0
		}
	})
	return out
}

// FilterModels returns the display names of models matching the criteria.
func FilterModels(criteria ModelCriteria) []string {
	var result []string
	for name, meta := range models {
		if len(criteria.Providers) > 0 && !slices.Contains(criteria.Providers, meta.Provider) {
			continue
		}
		matched := true
		for _, cap := range criteria.Capabilities {
			if !slices.Contains(meta.Capabilities, cap) {
				matched = false
				break
			}
		}
		if matched {
			result = append(result, name)
		}
	}
	slices.Sort(result)
	return result
}

// AllowedModels returns every model name allowed by the criteria; a nil
// criteria allows the whole catalog.
func AllowedModels(criteria *ModelCriteria) []string {
	if criteria == nil {
		names := make([]string, 0, len(models))
		for name := range models {
			names = append(names, name)
		}
		slices.Sort(names)
		return names
	}
	return FilterModels(*criteria)
}

// ValidateModel checks a proposed model name against the allowed criteria,
// falling back to the default when no proposal was made. There is no
// silent fallback for a disallowed proposal: that is a caller error.
func ValidateModel(proposed, defaultModel string, criteria *ModelCriteria) (string, error) {
	if proposed == "" {
		proposed = defaultModel
	}
	if criteria == nil {
		return proposed, nil
	}
	if !slices.Contains(AllowedModels(criteria), proposed) {
		return "", fmt.Errorf("model %q is not allowed by the configured criteria", proposed)
	}
	return proposed, nil
}
