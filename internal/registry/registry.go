// Package registry holds the static catalogs the gateway serves: action
// prototypes, agent tools, hosted models, and the test-module configuration
// records. Registration happens once at startup; everything is read-only
// afterwards, so lookups need no locking.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// ExecuteFunc runs one action invocation. Most prototypes delegate to an
// external agent framework; the prebuilt sample prototypes run in-process so
// the test harness can exercise contract validation end to end.
type ExecuteFunc func(ctx context.Context, deps schemas.Deps) (schemas.Output, error)

// PrototypeBundle ties an ActionPrototype descriptor to the typed contract
// constructors the executor needs.
type PrototypeBundle struct {
	Name      string
	Prototype schemas.ActionPrototype
	// NewDeps returns a zero value of the input contract, used as the
	// decode target for incoming invocation payloads.
	NewDeps func() schemas.Deps
	// NewOutput returns a zero value of the output contract.
	NewOutput func() schemas.Output
	Execute   ExecuteFunc
}

// ToolBundle describes one registered agent tool.
type ToolBundle struct {
	ToolID          string
	ToolDisplayName string
	ToolDescription string
	ToolSchema      []schemas.FieldSpec
	DefaultModel    string
	AllowedCriteria *ModelCriteria
}

// Registry is the in-process catalog of prototypes and tools.
type Registry struct {
	prototypes map[string]PrototypeBundle
	tools      map[string]ToolBundle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		prototypes: make(map[string]PrototypeBundle),
		tools:      make(map[string]ToolBundle),
	}
}

// RegisterPrototype adds a prototype bundle. Registering the same name twice
// is a programming error and fails loudly.
func (r *Registry) RegisterPrototype(b PrototypeBundle) error {
	if b.Name == "" {
		return fmt.Errorf("prototype name must not be empty")
	}
	if _, exists := r.prototypes[b.Name]; exists {
		return fmt.Errorf("prototype %q already registered", b.Name)
	}
	r.prototypes[b.Name] = b
	return nil
}

// RegisterTool adds a tool bundle, rejecting duplicate IDs.
func (r *Registry) RegisterTool(b ToolBundle) error {
	if b.ToolID == "" {
		return fmt.Errorf("tool id must not be empty")
	}
	if _, exists := r.tools[b.ToolID]; exists {
		return fmt.Errorf("tool %q already registered", b.ToolID)
	}
	r.tools[b.ToolID] = b
	return nil
}

// Prototype looks up a bundle by name.
func (r *Registry) Prototype(name string) (PrototypeBundle, bool) {
	b, ok := r.prototypes[name]
	return b, ok
}

// Prototypes returns all registered prototype descriptors, sorted by name.
func (r *Registry) Prototypes() []schemas.ActionPrototype {
	out := make([]schemas.ActionPrototype, 0, len(r.prototypes))
	for _, b := range r.prototypes {
		out = append(out, b.Prototype)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tool looks up a tool bundle by ID.
func (r *Registry) Tool(id string) (ToolBundle, bool) {
	b, ok := r.tools[id]
	return b, ok
}

// Tools returns all registered tool bundles, sorted by ID.
func (r *Registry) Tools() []ToolBundle {
	out := make([]ToolBundle, 0, len(r.tools))
	for _, b := range r.tools {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}
