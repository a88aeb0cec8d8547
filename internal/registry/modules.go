package registry

import "fmt"

// ControlTypeMultipleActions marks modules that compose several existing
// prototypes into a chain instead of binding a single contract.
const ControlTypeMultipleActions = "Multiple Actions"

// ModuleConfig is one test-module catalog entry. Entries are declarative:
// the schema key is not resolved at definition time, consumers resolve it
// against the prototype registry when they actually need the contract.
type ModuleConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// ActionPrototype names the prototype under test, empty for
	// multi-action modules.
	ActionPrototype string `json:"action_prototype,omitempty"`
	// SchemaKey is the registry key of the deps contract backing
	// ActionPrototype. It replaces the dotted module/class paths the
	// registry used to carry.
	SchemaKey string `json:"schema_key,omitempty"`
	// ControlType is set for modules that chain multiple actions.
	ControlType string `json:"control_type,omitempty"`
	// SettingsRef names the fixture set the test harness replays.
	SettingsRef string `json:"settings_ref"`
}

// Validate enforces the catalog invariant: a module naming an action
// prototype must also name the schema that backs it.
func (m ModuleConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("module name must not be empty")
	}
	if m.ActionPrototype != "" && m.SchemaKey == "" {
		return fmt.Errorf("module %q declares action_prototype %q but no schema_key", m.Name, m.ActionPrototype)
	}
	if m.ActionPrototype == "" && m.ControlType != ControlTypeMultipleActions {
		return fmt.Errorf("module %q has neither an action_prototype nor control_type %q", m.Name, ControlTypeMultipleActions)
	}
	return nil
}

// Resolve looks the module's schema key up in the registry. Unresolvable
// keys are a consumer-time error, never a definition-time one.
func (m ModuleConfig) Resolve(r *Registry) (PrototypeBundle, error) {
	if m.SchemaKey == "" {
		return PrototypeBundle{}, fmt.Errorf("module %q has no schema to resolve", m.Name)
	}
	b, ok := r.Prototype(m.SchemaKey)
	if !ok {
		return PrototypeBundle{}, fmt.Errorf("module %q references unknown schema key %q", m.Name, m.SchemaKey)
	}
	return b, nil
}

// ModuleByName looks a module up in the catalog.
func ModuleByName(name string) (ModuleConfig, bool) {
	for _, m := range Modules() {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleConfig{}, false
}

// Modules is the static test-module catalog consumed by the test harness.
func Modules() []ModuleConfig {
	return []ModuleConfig{
		{
			Name:            "sample",
			Description:     "Sample action that increments its input",
			ActionPrototype: "sample",
			SchemaKey:       "sample",
			SettingsRef:     "sample",
		},
		{
			Name:        "sample_control",
			Description: "Sample control with sequential action execution",
			ControlType: ControlTypeMultipleActions,
			SettingsRef: "sample_multi_actions",
		},
		{
			Name:            "pause_counter",
			Description:     "Counter with pause enabled until it reaches zero",
			ActionPrototype: "counter",
			SchemaKey:       "counter",
			SettingsRef:     "pause_counter",
		},
		{
			Name:            "general_browser",
			Description:     "General browser agent following free-form instructions",
			ActionPrototype: "general_browser",
			SchemaKey:       "general_browser",
			SettingsRef:     "general_browser",
		},
		{
			Name:            "login",
			Description:     "Browser login with optional MFA",
			ActionPrototype: "login",
			SchemaKey:       "login",
			SettingsRef:     "login",
		},
		{
			Name:        "browser_audit_chain",
			Description: "Login followed by a browser audit and evidence collection",
			ControlType: ControlTypeMultipleActions,
			SettingsRef: "browser_audit_chain",
		},
	}
}
