package schemas

import "fmt"

// Deps is implemented by every action input contract. Validate is called by
// the executor before an invocation is handed to the agent framework; it must
// name the offending field in its error.
type Deps interface {
	Validate() error
}

// Output is implemented by every action result contract. Outputs are
// validated when decoded from the agent framework's response and discarded
// once serialized back to the caller.
type Output interface {
	Validate() error
}

// ActionOutput is the minimal result every action produces.
type ActionOutput struct {
	Successful Flag   `json:"successful"`
	Feedback   string `json:"feedback"`
}

func (o ActionOutput) Validate() error {
	if err := o.Successful.Validate(); err != nil {
		return fmt.Errorf("successful: %w", err)
	}
	return nil
}

// Outcome reports the success flag and feedback, promoted into every
// embedding output so executions can be recorded uniformly.
func (o ActionOutput) Outcome() (Flag, string) { return o.Successful, o.Feedback }

// ActionOutputFields describes ActionOutput for prototype introspection.
func ActionOutputFields() []FieldSpec {
	return []FieldSpec{
		{Name: "successful", Type: "string", Description: "Whether the action was successful", Example: "yes", Required: true},
		{Name: "feedback", Type: "string", Description: "Feedback about the action process", Required: true},
	}
}

// PausableActionOutput extends ActionOutput for actions that may request
// human intervention mid-execution. The pause flag is validated
// independently of the success flag.
type PausableActionOutput struct {
	ActionOutput
	Pause       Flag   `json:"pause"`
	PauseReason string `json:"pause_reason"`
}

func (o PausableActionOutput) Validate() error {
	if err := o.ActionOutput.Validate(); err != nil {
		return err
	}
	if err := o.Pause.Validate(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	return nil
}

// PauseState reports whether the action requested a pause and why.
func (o PausableActionOutput) PauseState() (Flag, string) { return o.Pause, o.PauseReason }

// PausableActionOutputFields describes PausableActionOutput for introspection.
func PausableActionOutputFields() []FieldSpec {
	return append(ActionOutputFields(),
		FieldSpec{Name: "pause", Type: "string", Description: "Whether the agent is requesting a pause", Example: "no", Required: true},
		FieldSpec{Name: "pause_reason", Type: "string", Description: "The reason for requesting a pause, empty if none is requested"},
	)
}

// BrowserDeps carries the fields shared by every browser-driven action.
type BrowserDeps struct {
	// InitialURL may be empty, in which case the page from the previous
	// action is reused.
	InitialURL string `json:"initial_url,omitempty"`
	MaxSteps   int    `json:"max_steps,omitempty"`
}

func (d BrowserDeps) Validate() error {
	if d.MaxSteps < 0 {
		return fmt.Errorf("max_steps: must not be negative, got %d", d.MaxSteps)
	}
	return nil
}

// DefaultMaxSteps is applied when a browser action omits max_steps.
const DefaultMaxSteps = 6

// BrowserDepsFields describes BrowserDeps for prototype introspection.
func BrowserDepsFields() []FieldSpec {
	return []FieldSpec{
		{Name: "initial_url", Type: "string", Description: "The starting URL, if not provided the page from the previous action is used", Example: "https://example.com"},
		{Name: "max_steps", Type: "int", Description: "The maximum number of steps to take", Example: "6"},
	}
}

// CredentialDeps is shared by actions that authenticate somewhere.
type CredentialDeps struct {
	Credentials map[string]Secret `json:"credentials"`
}

func (d CredentialDeps) Validate() error {
	if len(d.Credentials) == 0 {
		return fmt.Errorf("credentials: at least one credential is required")
	}
	return nil
}

// -- Sample action: the smallest possible contract, used by the test modules. --

// SampleDeps is the input of the "sample" prototype.
type SampleDeps struct {
	Input *int `json:"input"`
}

func (d SampleDeps) Validate() error {
	if d.Input == nil {
		return fmt.Errorf("input: field is required")
	}
	return nil
}

// SampleDepsFields describes SampleDeps for prototype introspection.
func SampleDepsFields() []FieldSpec {
	return []FieldSpec{
		{Name: "input", Type: "int", Description: "Input number to increment", Example: "1", Required: true},
	}
}

// SampleOutput is the result of the "sample" prototype.
type SampleOutput struct {
	Output int `json:"output"`
}

func (o SampleOutput) Validate() error { return nil }

// SampleOutputFields describes SampleOutput for prototype introspection.
func SampleOutputFields() []FieldSpec {
	return []FieldSpec{
		{Name: "output", Type: "int", Description: "Input number plus 1", Example: "2", Required: true},
	}
}

// -- Counter action: decrements towards zero, pausing on every step. --

// CounterDeps is the input of the "counter" prototype.
type CounterDeps struct {
	Start *int `json:"start"`
}

func (d CounterDeps) Validate() error {
	if d.Start == nil {
		return fmt.Errorf("start: field is required")
	}
	if *d.Start < 0 {
		return fmt.Errorf("start: must not be negative, got %d", *d.Start)
	}
	return nil
}

// CounterDepsFields describes CounterDeps for prototype introspection.
func CounterDepsFields() []FieldSpec {
	return []FieldSpec{
		{Name: "start", Type: "int", Description: "Value the counter starts from", Example: "3", Required: true},
	}
}

// CounterOutput is the result of the "counter" prototype. It pauses until the
// counter reaches zero.
type CounterOutput struct {
	PausableActionOutput
	Remaining int `json:"remaining"`
}

// -- General browser action. --

// GeneralBrowserDeps is the input of the "general_browser" prototype.
type GeneralBrowserDeps struct {
	BrowserDeps
	Instructions      string `json:"instructions"`
	Goal              string `json:"goal"`
	TargetInformation string `json:"target_information"`
}

func (d GeneralBrowserDeps) Validate() error {
	if err := d.BrowserDeps.Validate(); err != nil {
		return err
	}
	if d.Instructions == "" {
		return fmt.Errorf("instructions: field is required")
	}
	if d.Goal == "" {
		return fmt.Errorf("goal: field is required")
	}
	if d.TargetInformation == "" {
		return fmt.Errorf("target_information: field is required")
	}
	return nil
}

// GeneralBrowserDepsFields describes GeneralBrowserDeps for introspection.
func GeneralBrowserDepsFields() []FieldSpec {
	return append(BrowserDepsFields(),
		FieldSpec{Name: "instructions", Type: "string", Description: "General browser instructions", Required: true},
		FieldSpec{Name: "goal", Type: "string", Description: "The goal of the browser run", Required: true},
		FieldSpec{Name: "target_information", Type: "string", Description: "The information to search for on the pages visited", Required: true},
	)
}

// GeneralBrowserOutput is the result of the "general_browser" prototype.
type GeneralBrowserOutput struct {
	ActionOutput
	CurrentURL      string   `json:"current_url"`
	DownloadedFiles []string `json:"downloaded_files"`
}

func (o GeneralBrowserOutput) Validate() error {
	if err := o.ActionOutput.Validate(); err != nil {
		return err
	}
	if o.CurrentURL == "" {
		return fmt.Errorf("current_url: field is required")
	}
	return nil
}

// GeneralBrowserOutputFields describes GeneralBrowserOutput for introspection.
func GeneralBrowserOutputFields() []FieldSpec {
	return append(ActionOutputFields(),
		FieldSpec{Name: "current_url", Type: "string", Description: "Current URL after the browser run", Example: "https://example.com", Required: true},
		FieldSpec{Name: "downloaded_files", Type: "[]string", Description: "Names of files downloaded during the browser run"},
	)
}

// -- Login action. --

// LoginDeps is the input of the "login" prototype.
type LoginDeps struct {
	BrowserDeps
	CredentialDeps
	LoginInstructions string `json:"login_instructions"`
	MFASecret         Secret `json:"mfa_secret,omitempty"`
}

func (d LoginDeps) Validate() error {
	if err := d.BrowserDeps.Validate(); err != nil {
		return err
	}
	if err := d.CredentialDeps.Validate(); err != nil {
		return err
	}
	return nil
}

// LoginDepsFields describes LoginDeps for prototype introspection.
func LoginDepsFields() []FieldSpec {
	return append(BrowserDepsFields(),
		FieldSpec{Name: "credentials", Type: "map[string]string", Description: "The credentials to use for the login", Required: true},
		FieldSpec{Name: "login_instructions", Type: "string", Description: "Site specific login instructions"},
		FieldSpec{Name: "mfa_secret", Type: "string", Description: "MFA secret used to derive one-time codes"},
	)
}

// LoginOutput is the result of the "login" prototype. Login can hand control
// back to a human when it hits a challenge it cannot answer.
type LoginOutput struct {
	PausableActionOutput
	CurrentURL string `json:"current_url"`
}
