package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/registry"
	"github.com/kestrelsec/agentgate/internal/store"
)

var (
	// ErrUnknownModule marks a module name missing from the catalog.
	ErrUnknownModule = errors.New("unknown module")
	// ErrInvalidDeps marks a deps payload that fails decoding or validation.
	ErrInvalidDeps = errors.New("invalid action deps")
	// ErrNotExecutable marks a module that cannot run as a single action,
	// multi-action chains and prototypes without an execution path.
	ErrNotExecutable = errors.New("module is not directly executable")
)

// BrowserRunner is the navigation surface browser-typed prototypes run
// through.
type BrowserRunner interface {
	Visit(ctx context.Context, initialURL string, maxSteps int) (string, error)
}

// ExecutionRecorder persists finished action runs.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, rec store.ExecutionRecord) error
}

// ExecutionResult is the API-facing view of one recorded run.
type ExecutionResult struct {
	ID         string          `json:"id"`
	Module     string          `json:"module"`
	Prototype  string          `json:"prototype"`
	Successful schemas.Flag    `json:"successful"`
	Feedback   string          `json:"feedback"`
	Paused     schemas.Flag    `json:"paused"`
	PauseInfo  string          `json:"pause_info,omitempty"`
	Output     json.RawMessage `json:"output"`
}

// Executor resolves a module against the prototype registry, runs the bound
// action and records the outcome. recorder may be nil when the server runs
// without a database; successful runs are then simply not persisted.
type Executor struct {
	registry *registry.Registry
	browser  BrowserRunner
	resolver *ConditionResolver
	recorder ExecutionRecorder
	log      *zap.Logger
}

// NewExecutor wires the execution path.
func NewExecutor(reg *registry.Registry, browser BrowserRunner, resolver *ConditionResolver, recorder ExecutionRecorder, logger *zap.Logger) *Executor {
	return &Executor{
		registry: reg,
		browser:  browser,
		resolver: resolver,
		recorder: recorder,
		log:      logger.Named("executor"),
	}
}

// ExecuteAction runs the module's prototype against the given deps payload
// and records the result. The persisted deps go through the schema types, so
// secrets are masked before they reach the database.
func (e *Executor) ExecuteAction(ctx context.Context, moduleName string, depsJSON []byte) (*ExecutionResult, error) {
	mod, ok := registry.ModuleByName(moduleName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, moduleName)
	}
	bundle, err := mod.Resolve(e.registry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotExecutable, err)
	}

	deps := bundle.NewDeps()
	if len(depsJSON) == 0 {
		depsJSON = []byte("{}")
	}
	if err := json.Unmarshal(depsJSON, deps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeps, err)
	}
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeps, err)
	}

	out, execErr := e.run(ctx, bundle, deps)
	if execErr != nil {
		rec := e.newRecord(mod, bundle, deps)
		rec.Successful = schemas.FlagNo
		rec.Paused = schemas.FlagNo
		rec.Feedback = execErr.Error()
		if e.recorder != nil {
			if recErr := e.recorder.RecordExecution(ctx, rec); recErr != nil {
				e.log.Error("Failed to record failed execution",
					zap.String("module", mod.Name), zap.Error(recErr))
			}
		}
		return nil, execErr
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("action %q produced an invalid output: %w", bundle.Name, err)
	}
	outJSON, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize action output: %w", err)
	}

	rec := e.newRecord(mod, bundle, deps)
	rec.Output = outJSON
	rec.Successful = schemas.FlagYes
	if rep, ok := out.(interface{ Outcome() (schemas.Flag, string) }); ok {
		rec.Successful, rec.Feedback = rep.Outcome()
	}
	rec.Paused = schemas.FlagNo
	if rep, ok := out.(interface{ PauseState() (schemas.Flag, string) }); ok {
		rec.Paused, rec.PauseInfo = rep.PauseState()
	}

	if e.recorder != nil {
		if err := e.recorder.RecordExecution(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to record execution: %w", err)
		}
	}

	e.log.Info("Action executed",
		zap.String("module", mod.Name),
		zap.String("prototype", bundle.Name),
		zap.String("successful", string(rec.Successful)),
		zap.String("paused", string(rec.Paused)))

	return &ExecutionResult{
		ID:         rec.ID,
		Module:     rec.Module,
		Prototype:  rec.Prototype,
		Successful: rec.Successful,
		Feedback:   rec.Feedback,
		Paused:     rec.Paused,
		PauseInfo:  rec.PauseInfo,
		Output:     outJSON,
	}, nil
}

// ResolveCondition evaluates a natural-language condition against recorded
// action state and returns the full verdict, reason included.
func (e *Executor) ResolveCondition(ctx context.Context, state []map[string]any, instruction string) (ComparisonResponse, error) {
	compareData, parsed, err := e.resolver.ParseInstruction(ctx, state, instruction)
	if err != nil {
		return ComparisonResponse{}, err
	}
	return e.resolver.Compare(ctx, compareData, parsed)
}

func (e *Executor) run(ctx context.Context, bundle registry.PrototypeBundle, deps schemas.Deps) (schemas.Output, error) {
	if bundle.Execute != nil {
		return bundle.Execute(ctx, deps)
	}
	if bundle.Prototype.Type == schemas.ActionTypeBrowser {
		return e.runBrowserAction(ctx, bundle.Name, deps)
	}
	return nil, fmt.Errorf("%w: prototype %q has no execution path", ErrNotExecutable, bundle.Name)
}

// runBrowserAction covers the native part of a browser run: open the session,
// land on the page, report where it ended up. The agent loop on top is owned
// by the external browser agent framework.
func (e *Executor) runBrowserAction(ctx context.Context, name string, deps schemas.Deps) (schemas.Output, error) {
	if e.browser == nil {
		return nil, fmt.Errorf("%w: no browser configured for prototype %q", ErrNotExecutable, name)
	}

	switch d := deps.(type) {
	case *schemas.GeneralBrowserDeps:
		url, err := e.browser.Visit(ctx, d.InitialURL, maxStepsOrDefault(d.MaxSteps))
		if err != nil {
			return nil, err
		}
		out := &schemas.GeneralBrowserOutput{CurrentURL: url}
		out.Successful = schemas.FlagYes
		out.Feedback = fmt.Sprintf("browser run finished at %s", url)
		return out, nil
	case *schemas.LoginDeps:
		url, err := e.browser.Visit(ctx, d.InitialURL, maxStepsOrDefault(d.MaxSteps))
		if err != nil {
			return nil, err
		}
		out := &schemas.LoginOutput{CurrentURL: url}
		out.Successful = schemas.FlagYes
		out.Feedback = fmt.Sprintf("login page reached with %d credential(s)", len(d.Credentials))
		out.Pause = schemas.FlagNo
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected browser deps type %T", ErrNotExecutable, deps)
	}
}

func maxStepsOrDefault(maxSteps int) int {
	if maxSteps == 0 {
		return schemas.DefaultMaxSteps
	}
	return maxSteps
}

func (e *Executor) newRecord(mod registry.ModuleConfig, bundle registry.PrototypeBundle, deps schemas.Deps) store.ExecutionRecord {
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		depsJSON = json.RawMessage("{}")
	}
	return store.ExecutionRecord{
		ID:        uuid.NewString(),
		Module:    mod.Name,
		Prototype: bundle.Name,
		Deps:      depsJSON,
		CreatedAt: time.Now().UTC(),
	}
}
