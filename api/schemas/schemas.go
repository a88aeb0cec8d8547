package schemas

import "fmt"

// Flag is a closed two-valued indicator used by action outputs. The agent
// frameworks we drive emit it as literal text, so it is a string rather
// than a bool on the wire.
type Flag string

const (
	FlagYes Flag = "yes"
	FlagNo  Flag = "no"
)

func (f Flag) String() string { return string(f) }

// Validate rejects any value outside the declared set.
func (f Flag) Validate() error {
	switch f {
	case FlagYes, FlagNo:
		return nil
	default:
		return fmt.Errorf("flag must be %q or %q, got %q", FlagYes, FlagNo, f)
	}
}

// Bool reports whether the flag is set to "yes".
func (f Flag) Bool() bool { return f == FlagYes }

// ActionType classifies an action prototype.
type ActionType string

const (
	ActionTypeGeneral ActionType = "GENERAL"
	ActionTypeBrowser ActionType = "BROWSER"
	ActionTypeControl ActionType = "CONTROL"
)

func (t ActionType) String() string { return string(t) }

// ActionCategory marks where a prototype came from.
type ActionCategory string

const (
	CategoryPrebuilt ActionCategory = "PREBUILT"
	CategoryCustom   ActionCategory = "CUSTOM"
)

func (c ActionCategory) String() string { return string(c) }

// FieldSpec describes one field of an action contract. The specs are declared
// statically next to each Deps/Output type and exposed through the prototype
// registry so the UI can render forms and documentation without reflection.
type FieldSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
	Required    bool   `json:"required"`
}

// ActionPrototype is the introspectable descriptor of one pluggable action:
// its identity plus the declared shape of its inputs and outputs.
type ActionPrototype struct {
	Name         string         `json:"name"`
	Type         ActionType     `json:"type"`
	Description  string         `json:"description"`
	Category     ActionCategory `json:"category"`
	DepsSchema   []FieldSpec    `json:"deps_schema"`
	OutputSchema []FieldSpec    `json:"output_schema"`
}

// ActionPrototypesResponse is the body of GET /action-prototypes.
type ActionPrototypesResponse struct {
	Actions []ActionPrototype `json:"actions"`
}
