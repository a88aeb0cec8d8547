package registry

import (
	"context"
	"fmt"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// Default builds the registry with every prebuilt prototype and tool
// registered. It is the Go equivalent of the old import-side-effect loader:
// one explicit call at startup instead of scattered init magic.
func Default() *Registry {
	r := New()
	for _, register := range []func(*Registry) error{
		registerSample,
		registerCounter,
		registerGeneralBrowser,
		registerLogin,
		registerTools,
	} {
		if err := register(r); err != nil {
			// Duplicate registration of a built-in is a build defect.
			panic(fmt.Sprintf("registry bootstrap failed: %v", err))
		}
	}
	return r
}

func registerSample(r *Registry) error {
	return r.RegisterPrototype(PrototypeBundle{
		Name: "sample",
		Prototype: schemas.ActionPrototype{
			Name:         "sample",
			Type:         schemas.ActionTypeGeneral,
			Description:  "plus 1 to the input",
			Category:     schemas.CategoryPrebuilt,
			DepsSchema:   schemas.SampleDepsFields(),
			OutputSchema: schemas.SampleOutputFields(),
		},
		NewDeps:   func() schemas.Deps { return &schemas.SampleDeps{} },
		NewOutput: func() schemas.Output { return &schemas.SampleOutput{} },
		Execute: func(ctx context.Context, deps schemas.Deps) (schemas.Output, error) {
			d, ok := deps.(*schemas.SampleDeps)
			if !ok {
				return nil, fmt.Errorf("sample: unexpected deps type %T", deps)
			}
			if err := d.Validate(); err != nil {
				return nil, err
			}
			return &schemas.SampleOutput{Output: *d.Input + 1}, nil
		},
	})
}

func registerCounter(r *Registry) error {
	return r.RegisterPrototype(PrototypeBundle{
		Name: "counter",
		Prototype: schemas.ActionPrototype{
			Name:         "counter",
			Type:         schemas.ActionTypeGeneral,
			Description:  "counts down to zero, pausing after every step",
			Category:     schemas.CategoryPrebuilt,
			DepsSchema:   schemas.CounterDepsFields(),
			OutputSchema: schemas.PausableActionOutputFields(),
		},
		NewDeps:   func() schemas.Deps { return &schemas.CounterDeps{} },
		NewOutput: func() schemas.Output { return &schemas.CounterOutput{} },
		Execute: func(ctx context.Context, deps schemas.Deps) (schemas.Output, error) {
			d, ok := deps.(*schemas.CounterDeps)
			if !ok {
				return nil, fmt.Errorf("counter: unexpected deps type %T", deps)
			}
			if err := d.Validate(); err != nil {
				return nil, err
			}
			remaining := *d.Start - 1
			if remaining < 0 {
				remaining = 0
			}
			out := &schemas.CounterOutput{Remaining: remaining}
			out.Successful = schemas.FlagYes
			out.Feedback = fmt.Sprintf("counter decremented to %d", remaining)
			if remaining > 0 {
				out.Pause = schemas.FlagYes
				out.PauseReason = fmt.Sprintf("%d steps remaining before the counter reaches zero", remaining)
			} else {
				out.Pause = schemas.FlagNo
			}
			return out, nil
		},
	})
}

// registerGeneralBrowser declares the browser prototype's contract. The
// execution itself is delegated to the external browser-agent framework, so
// no Execute is attached here.
func registerGeneralBrowser(r *Registry) error {
	return r.RegisterPrototype(PrototypeBundle{
		Name: "general_browser",
		Prototype: schemas.ActionPrototype{
			Name:         "general_browser",
			Type:         schemas.ActionTypeBrowser,
			Description:  "drives a browser through free-form instructions towards a goal",
			Category:     schemas.CategoryPrebuilt,
			DepsSchema:   schemas.GeneralBrowserDepsFields(),
			OutputSchema: schemas.GeneralBrowserOutputFields(),
		},
		NewDeps:   func() schemas.Deps { return &schemas.GeneralBrowserDeps{} },
		NewOutput: func() schemas.Output { return &schemas.GeneralBrowserOutput{} },
	})
}

func registerLogin(r *Registry) error {
	return r.RegisterPrototype(PrototypeBundle{
		Name: "login",
		Prototype: schemas.ActionPrototype{
			Name:         "login",
			Type:         schemas.ActionTypeBrowser,
			Description:  "logs into a website with credentials and optional MFA",
			Category:     schemas.CategoryPrebuilt,
			DepsSchema:   schemas.LoginDepsFields(),
			OutputSchema: schemas.PausableActionOutputFields(),
		},
		NewDeps:   func() schemas.Deps { return &schemas.LoginDeps{} },
		NewOutput: func() schemas.Output { return &schemas.LoginOutput{} },
	})
}

func registerTools(r *Registry) error {
	tools := []ToolBundle{
		{
			ToolID:          "file_processing",
			ToolDisplayName: "File Processing",
			ToolDescription: "Inspects downloaded files and extracts or compares their contents",
			DefaultModel:    "GPT-4.1",
			AllowedCriteria: &ModelCriteria{Providers: []string{"openai"}},
			ToolSchema: []schemas.FieldSpec{
				{Name: "file_name", Type: "string", Description: "Name of a previously downloaded file", Required: true},
				{Name: "instruction", Type: "string", Description: "What to extract or verify in the file", Required: true},
			},
		},
		{
			ToolID:          "screenshot",
			ToolDisplayName: "Take Screenshot",
			ToolDescription: "Captures the current page as evidence",
			DefaultModel:    "Gemini 2.5 Flash",
			AllowedCriteria: &ModelCriteria{Providers: []string{"gemini"}},
			ToolSchema: []schemas.FieldSpec{
				{Name: "target_information", Type: "string", Description: "What the screenshot should capture", Required: true},
			},
		},
		{
			ToolID:          "condition_resolver",
			ToolDisplayName: "Condition Resolver",
			ToolDescription: "Evaluates a natural-language condition against recorded action state",
			DefaultModel:    "GPT-5.1 Thinking",
			AllowedCriteria: &ModelCriteria{Capabilities: []string{"reasoning"}},
			ToolSchema: []schemas.FieldSpec{
				{Name: "instruction", Type: "string", Description: "The condition to evaluate", Required: true},
			},
		},
	}
	for _, t := range tools {
		if err := r.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}
