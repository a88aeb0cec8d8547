package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/registry"
	"github.com/kestrelsec/agentgate/internal/store"
)

type stubRecorder struct {
	records []store.ExecutionRecord
	err     error
}

func (r *stubRecorder) RecordExecution(_ context.Context, rec store.ExecutionRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type stubVisit struct {
	initialURL string
	maxSteps   int
}

type stubBrowser struct {
	url    string
	err    error
	visits []stubVisit
}

func (b *stubBrowser) Visit(_ context.Context, initialURL string, maxSteps int) (string, error) {
	b.visits = append(b.visits, stubVisit{initialURL: initialURL, maxSteps: maxSteps})
	if b.err != nil {
		return "", b.err
	}
	return b.url, nil
}

func newTestExecutor(t *testing.T, browser BrowserRunner, recorder ExecutionRecorder) *Executor {
	t.Helper()
	resolver := NewConditionResolver(&stubLLM{}, zap.NewNop())
	return NewExecutor(registry.Default(), browser, resolver, recorder, zap.NewNop())
}

func TestExecuteAction(t *testing.T) {
	t.Run("SampleIncrementsAndRecords", func(t *testing.T) {
		rec := &stubRecorder{}
		e := newTestExecutor(t, nil, rec)

		result, err := e.ExecuteAction(context.Background(), "sample", []byte(`{"input": 41}`))
		require.NoError(t, err)
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, "sample", result.Module)
		assert.Equal(t, "sample", result.Prototype)
		assert.Equal(t, schemas.FlagYes, result.Successful)
		assert.JSONEq(t, `{"output": 42}`, string(result.Output))

		require.Len(t, rec.records, 1)
		persisted := rec.records[0]
		assert.Equal(t, result.ID, persisted.ID)
		assert.Equal(t, schemas.FlagYes, persisted.Successful)
		assert.Equal(t, schemas.FlagNo, persisted.Paused)
		assert.JSONEq(t, `{"input": 41}`, string(persisted.Deps))
		assert.JSONEq(t, `{"output": 42}`, string(persisted.Output))
		assert.False(t, persisted.CreatedAt.IsZero())
	})

	t.Run("UnknownModule", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)
		_, err := e.ExecuteAction(context.Background(), "no_such_module", []byte(`{}`))
		require.ErrorIs(t, err, ErrUnknownModule)
	})

	t.Run("ChainModuleNotDirectlyExecutable", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)
		_, err := e.ExecuteAction(context.Background(), "sample_control", []byte(`{}`))
		require.ErrorIs(t, err, ErrNotExecutable)
	})

	t.Run("InvalidDeps", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)

		_, err := e.ExecuteAction(context.Background(), "sample", []byte(`{"input": "forty-one"}`))
		require.ErrorIs(t, err, ErrInvalidDeps)

		_, err = e.ExecuteAction(context.Background(), "sample", []byte(`{}`))
		require.ErrorIs(t, err, ErrInvalidDeps)
		assert.Contains(t, err.Error(), "input: field is required")
	})

	t.Run("CounterPauseRecorded", func(t *testing.T) {
		rec := &stubRecorder{}
		e := newTestExecutor(t, nil, rec)

		result, err := e.ExecuteAction(context.Background(), "pause_counter", []byte(`{"start": 3}`))
		require.NoError(t, err)
		assert.Equal(t, schemas.FlagYes, result.Successful)
		assert.Equal(t, schemas.FlagYes, result.Paused)
		assert.Contains(t, result.PauseInfo, "2 steps remaining")

		require.Len(t, rec.records, 1)
		assert.Equal(t, schemas.FlagYes, rec.records[0].Paused)
		assert.Contains(t, rec.records[0].PauseInfo, "2 steps remaining")
	})

	t.Run("BrowserActionVisitsInitialURL", func(t *testing.T) {
		b := &stubBrowser{url: "https://example.com/dashboard"}
		rec := &stubRecorder{}
		e := newTestExecutor(t, b, rec)

		deps := `{
			"initial_url": "https://example.com",
			"instructions": "open the dashboard",
			"goal": "reach the dashboard",
			"target_information": "the dashboard header"
		}`
		result, err := e.ExecuteAction(context.Background(), "general_browser", []byte(deps))
		require.NoError(t, err)
		assert.Equal(t, schemas.FlagYes, result.Successful)
		assert.Contains(t, string(result.Output), "https://example.com/dashboard")

		require.Len(t, b.visits, 1)
		assert.Equal(t, "https://example.com", b.visits[0].initialURL)
		assert.Equal(t, schemas.DefaultMaxSteps, b.visits[0].maxSteps)
	})

	t.Run("LoginSecretsMaskedInRecord", func(t *testing.T) {
		b := &stubBrowser{url: "https://example.com/login"}
		rec := &stubRecorder{}
		e := newTestExecutor(t, b, rec)

		deps := `{
			"initial_url": "https://example.com/login",
			"credentials": {"password": "hunter2"},
			"mfa_secret": "JBSWY3DP"
		}`
		_, err := e.ExecuteAction(context.Background(), "login", []byte(deps))
		require.NoError(t, err)

		require.Len(t, rec.records, 1)
		persisted := string(rec.records[0].Deps)
		assert.NotContains(t, persisted, "hunter2")
		assert.NotContains(t, persisted, "JBSWY3DP")
		assert.Contains(t, persisted, "**********")
	})

	t.Run("BrowserFailureRecorded", func(t *testing.T) {
		b := &stubBrowser{err: errors.New("browser crashed")}
		rec := &stubRecorder{}
		e := newTestExecutor(t, b, rec)

		deps := `{
			"instructions": "open the dashboard",
			"goal": "reach the dashboard",
			"target_information": "the dashboard header"
		}`
		_, err := e.ExecuteAction(context.Background(), "general_browser", []byte(deps))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser crashed")

		require.Len(t, rec.records, 1)
		assert.Equal(t, schemas.FlagNo, rec.records[0].Successful)
		assert.Contains(t, rec.records[0].Feedback, "browser crashed")
	})

	t.Run("BrowserUnavailable", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)
		deps := `{
			"instructions": "open the dashboard",
			"goal": "reach the dashboard",
			"target_information": "the dashboard header"
		}`
		_, err := e.ExecuteAction(context.Background(), "general_browser", []byte(deps))
		require.ErrorIs(t, err, ErrNotExecutable)
	})

	t.Run("RecorderFailureSurfaces", func(t *testing.T) {
		rec := &stubRecorder{err: errors.New("insert refused")}
		e := newTestExecutor(t, nil, rec)

		_, err := e.ExecuteAction(context.Background(), "sample", []byte(`{"input": 1}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record execution")
	})

	t.Run("NilRecorderSkipsPersistence", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)
		result, err := e.ExecuteAction(context.Background(), "sample", []byte(`{"input": 1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"output": 2}`, string(result.Output))
	})
}

func TestExecutorResolveCondition(t *testing.T) {
	stub := &stubLLM{responses: []string{
		`{"conditions": [{"left": {"type": "node", "value": "node.0.output"}, "op": "==", "right": {"type": "primitive", "value": "42"}}], "logic": "and"}`,
		`{"result": "true", "reason": "42 equals 42"}`,
	}}
	resolver := NewConditionResolver(stub, zap.NewNop())
	e := NewExecutor(registry.Default(), nil, resolver, nil, zap.NewNop())

	state := []map[string]any{{"output": 42}}
	verdict, err := e.ResolveCondition(context.Background(), state, "check the output is 42")
	require.NoError(t, err)
	assert.Equal(t, "true", verdict.Result)
	assert.Contains(t, verdict.Reason, "42 equals 42")
}
