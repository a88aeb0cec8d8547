package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestSampleDeps(t *testing.T) {
	t.Run("InputRequired", func(t *testing.T) {
		err := SampleDeps{}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input")
	})

	t.Run("ZeroIsValid", func(t *testing.T) {
		assert.NoError(t, SampleDeps{Input: intPtr(0)}.Validate())
	})

	t.Run("MissingFieldFailsAfterDecode", func(t *testing.T) {
		// Decoding an empty object must leave Input nil, so validation
		// still catches the omission.
		var deps SampleDeps
		require.NoError(t, json.Unmarshal([]byte(`{}`), &deps))
		assert.Error(t, deps.Validate())

		require.NoError(t, json.Unmarshal([]byte(`{"input": 1}`), &deps))
		assert.NoError(t, deps.Validate())
		assert.Equal(t, 1, *deps.Input)
	})
}

func TestCounterDeps(t *testing.T) {
	assert.Error(t, CounterDeps{}.Validate())
	assert.Error(t, CounterDeps{Start: intPtr(-1)}.Validate())
	assert.NoError(t, CounterDeps{Start: intPtr(0)}.Validate())
	assert.NoError(t, CounterDeps{Start: intPtr(3)}.Validate())
}

func TestBrowserDeps(t *testing.T) {
	t.Run("EmptyIsValid", func(t *testing.T) {
		// No initial URL means the previous action's page is reused.
		assert.NoError(t, BrowserDeps{}.Validate())
	})

	t.Run("NegativeMaxSteps", func(t *testing.T) {
		err := BrowserDeps{MaxSteps: -1}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_steps")
	})
}

func TestGeneralBrowserDeps(t *testing.T) {
	valid := GeneralBrowserDeps{
		BrowserDeps:       BrowserDeps{InitialURL: "https://example.com"},
		Instructions:      "open the report page",
		Goal:              "verify the latest report exists",
		TargetInformation: "report table",
	}
	assert.NoError(t, valid.Validate())

	t.Run("EachRequiredFieldEnforced", func(t *testing.T) {
		missingInstructions := valid
		missingInstructions.Instructions = ""
		assert.ErrorContains(t, missingInstructions.Validate(), "instructions")

		missingGoal := valid
		missingGoal.Goal = ""
		assert.ErrorContains(t, missingGoal.Validate(), "goal")

		missingTarget := valid
		missingTarget.TargetInformation = ""
		assert.ErrorContains(t, missingTarget.Validate(), "target_information")
	})
}

func TestGeneralBrowserOutput(t *testing.T) {
	out := GeneralBrowserOutput{
		ActionOutput: ActionOutput{Successful: FlagYes, Feedback: "ok"},
		CurrentURL:   "https://example.com/done",
	}
	assert.NoError(t, out.Validate())

	out.CurrentURL = ""
	assert.ErrorContains(t, out.Validate(), "current_url")
}

func TestLoginDeps(t *testing.T) {
	t.Run("CredentialsRequired", func(t *testing.T) {
		deps := LoginDeps{}
		assert.ErrorContains(t, deps.Validate(), "credentials")
	})

	t.Run("Valid", func(t *testing.T) {
		deps := LoginDeps{
			CredentialDeps: CredentialDeps{
				Credentials: map[string]Secret{"username": "admin", "password": "hunter2"},
			},
			LoginInstructions: "use the SSO button",
		}
		assert.NoError(t, deps.Validate())
	})
}

func TestFieldSpecIntrospection(t *testing.T) {
	// Composed deps inherit the embedded struct's fields ahead of their own.
	fields := GeneralBrowserDepsFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"initial_url", "max_steps", "instructions", "goal", "target_information"}, names)

	pausable := PausableActionOutputFields()
	assert.Len(t, pausable, len(ActionOutputFields())+2)
}
