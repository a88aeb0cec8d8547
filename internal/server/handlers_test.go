package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/config"
	"github.com/kestrelsec/agentgate/internal/registry"
	"github.com/kestrelsec/agentgate/internal/service"
	"github.com/kestrelsec/agentgate/internal/store"
	"github.com/kestrelsec/agentgate/internal/worker"
)

type stubInterpreter struct {
	prompt schemas.AgentPrompt
	err    error
}

func (s *stubInterpreter) Interpret(_ context.Context, _ string) (schemas.AgentPrompt, error) {
	return s.prompt, s.err
}

type stubExecStore struct {
	records []store.ExecutionRecord
	err     error
}

func (s *stubExecStore) ListExecutions(_ context.Context, _ string, _ int) ([]store.ExecutionRecord, error) {
	return s.records, s.err
}

type stubExecutor struct {
	result  *service.ExecutionResult
	execErr error
	verdict service.ComparisonResponse
	resErr  error

	lastModule      string
	lastDeps        []byte
	lastInstruction string
}

func (s *stubExecutor) ExecuteAction(_ context.Context, module string, depsJSON []byte) (*service.ExecutionResult, error) {
	s.lastModule = module
	s.lastDeps = depsJSON
	if s.execErr != nil {
		return nil, s.execErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &service.ExecutionResult{
		ID:         "exec-1",
		Module:     module,
		Prototype:  module,
		Successful: schemas.FlagYes,
		Paused:     schemas.FlagNo,
		Output:     []byte(`{}`),
	}, nil
}

func (s *stubExecutor) ResolveCondition(_ context.Context, _ []map[string]any, instruction string) (service.ComparisonResponse, error) {
	s.lastInstruction = instruction
	return s.verdict, s.resErr
}

func newTestRouter(t *testing.T, interp CommandInterpreter, execStore ExecutionStore) chi.Router {
	return newTestRouterExec(t, interp, &stubExecutor{}, execStore)
}

func newTestRouterExec(t *testing.T, interp CommandInterpreter, exec ActionExecutor, execStore ExecutionStore) chi.Router {
	t.Helper()

	frameworksDir := t.TempDir()
	fwDir := filepath.Join(frameworksDir, "wstg")
	require.NoError(t, os.MkdirAll(fwDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(fwDir, "framework.yaml"),
		[]byte("framework_id: wstg\nname: Web Security Testing Guide\n"),
		0o644,
	))

	dispatcher := worker.NewDispatcher(config.QueueConfig{Enabled: false}, zap.NewNop())
	t.Cleanup(dispatcher.Stop)

	h := NewHandlers(zap.NewNop(), registry.Default(), interp, exec, dispatcher, execStore, frameworksDir)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r chi.Router, method, target string) (*http.Response, string) {
	t.Helper()
	return doRequestBody(t, r, method, target, "")
}

func doRequestBody(t *testing.T, r chi.Router, method, target, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	resp := rec.Result()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(respBody)
}

func TestHandleHealth(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)
	resp, body := doRequest(t, r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "I am healthy", body)
}

func TestHandleLLMModels(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)
	resp, body := doRequest(t, r, http.MethodGet, "/llm-models")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var parsed schemas.LLMModelsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.NotEmpty(t, parsed.Models)
}

func TestHandleTools(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)
	resp, body := doRequest(t, r, http.MethodGet, "/tools")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed schemas.ToolsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	require.NotEmpty(t, parsed.Tools)
	for _, tool := range parsed.Tools {
		assert.NotEmpty(t, tool.AllowedModels, "tool %s", tool.ToolID)
	}
}

func TestHandleFrameworks(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)
	resp, body := doRequest(t, r, http.MethodGet, "/predefined-frameworks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed schemas.FrameworksResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	require.Len(t, parsed.Frameworks, 1)
	assert.Equal(t, "wstg", parsed.Frameworks[0].FrameworkID)
}

func TestHandleActionPrototypes(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)
	resp, body := doRequest(t, r, http.MethodGet, "/action-prototypes")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed schemas.ActionPrototypesResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Len(t, parsed.Actions, 4)
}

func TestHandleCommandInterpreter(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		interp := &stubInterpreter{prompt: schemas.AgentPrompt{
			UserPrompt: "login and verify the report",
			Username:   "admin",
			Password:   schemas.Secret("hunter2"),
		}}
		r := newTestRouter(t, interp, nil)

		resp, body := doRequest(t, r, http.MethodPost, "/command_interpreter?user_prompt=check+the+report")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var parsed schemas.AgentPrompt
		require.NoError(t, json.Unmarshal([]byte(body), &parsed))
		assert.Equal(t, "login and verify the report", parsed.UserPrompt)
		// The password must be masked in transit.
		assert.NotContains(t, body, "hunter2")
	})

	t.Run("MissingPrompt", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, nil)
		resp, body := doRequest(t, r, http.MethodPost, "/command_interpreter")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "user_prompt")
	})

	t.Run("ServiceErrorSurfacesAs500", func(t *testing.T) {
		interp := &stubInterpreter{err: errors.New("model quota exceeded")}
		r := newTestRouter(t, interp, nil)

		resp, body := doRequest(t, r, http.MethodPost, "/command_interpreter?user_prompt=anything")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, body, "model quota exceeded")
	})
}

func TestHandleActionExecution(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		exec := &stubExecutor{result: &service.ExecutionResult{
			ID:         "exec-42",
			Module:     "sample",
			Prototype:  "sample",
			Successful: schemas.FlagYes,
			Paused:     schemas.FlagNo,
			Output:     []byte(`{"output": 42}`),
		}}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/action-executions",
			`{"module": "sample", "deps": {"input": 41}}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var parsed service.ExecutionResult
		require.NoError(t, json.Unmarshal([]byte(body), &parsed))
		assert.Equal(t, "exec-42", parsed.ID)
		assert.Equal(t, schemas.FlagYes, parsed.Successful)
		assert.JSONEq(t, `{"output": 42}`, string(parsed.Output))

		assert.Equal(t, "sample", exec.lastModule)
		assert.JSONEq(t, `{"input": 41}`, string(exec.lastDeps))
	})

	t.Run("BadBody", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, nil)
		resp, _ := doRequestBody(t, r, http.MethodPost, "/action-executions", "not json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingModule", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, nil)
		resp, body := doRequestBody(t, r, http.MethodPost, "/action-executions", `{"deps": {}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "module field is required")
	})

	t.Run("UnknownModuleIs404", func(t *testing.T) {
		exec := &stubExecutor{execErr: fmt.Errorf("%w: %q", service.ErrUnknownModule, "ghost")}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/action-executions", `{"module": "ghost"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body, "ghost")
	})

	t.Run("InvalidDepsIs400", func(t *testing.T) {
		exec := &stubExecutor{execErr: fmt.Errorf("%w: input: field is required", service.ErrInvalidDeps)}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/action-executions", `{"module": "sample"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "input: field is required")
	})

	t.Run("ChainModuleIs400", func(t *testing.T) {
		exec := &stubExecutor{execErr: fmt.Errorf("%w: chain", service.ErrNotExecutable)}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, _ := doRequestBody(t, r, http.MethodPost, "/action-executions", `{"module": "sample_control"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ExecutionErrorSurfacesAs500", func(t *testing.T) {
		exec := &stubExecutor{execErr: errors.New("browser crashed")}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/action-executions", `{"module": "general_browser"}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, body, "browser crashed")
	})
}

func TestHandleResolveCondition(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		exec := &stubExecutor{verdict: service.ComparisonResponse{Result: "true", Reason: "42 equals 42"}}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/resolve-condition",
			`{"instruction": "check the output is 42", "state": [{"output": 42}]}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"result":"true"`)
		assert.Equal(t, "check the output is 42", exec.lastInstruction)
	})

	t.Run("MissingInstruction", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, nil)
		resp, body := doRequestBody(t, r, http.MethodPost, "/resolve-condition", `{"state": []}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "instruction")
	})

	t.Run("ResolverErrorSurfacesAs500", func(t *testing.T) {
		exec := &stubExecutor{resErr: errors.New("model quota exceeded")}
		r := newTestRouterExec(t, &stubInterpreter{}, exec, nil)

		resp, body := doRequestBody(t, r, http.MethodPost, "/resolve-condition",
			`{"instruction": "anything"}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, body, "model quota exceeded")
	})
}

func TestHandleJobQueueTest(t *testing.T) {
	r := newTestRouter(t, &stubInterpreter{}, nil)

	resp, body := doRequest(t, r, http.MethodGet, "/job-queue-test")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var job worker.Job
	require.NoError(t, json.Unmarshal([]byte(body), &job))
	assert.NotEmpty(t, job.ID)
	// Inline mode finishes the task before responding.
	assert.Equal(t, worker.StatusCompleted, job.Status)

	t.Run("JobLookup", func(t *testing.T) {
		resp, lookupBody := doRequest(t, r, http.MethodGet, "/jobs/"+job.ID)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got worker.Job
		require.NoError(t, json.Unmarshal([]byte(lookupBody), &got))
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		resp, _ := doRequest(t, r, http.MethodGet, "/jobs/unknown-id")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandleExecutions(t *testing.T) {
	t.Run("NoStoreConfigured", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, nil)
		resp, body := doRequest(t, r, http.MethodGet, "/executions")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, body, "database not configured")
	})

	t.Run("ListsRecords", func(t *testing.T) {
		st := &stubExecStore{records: []store.ExecutionRecord{
			{ID: "id-1", Module: "sample", Successful: schemas.FlagYes},
		}}
		r := newTestRouter(t, &stubInterpreter{}, st)

		resp, body := doRequest(t, r, http.MethodGet, "/executions?module=sample&limit=5")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"count":1`)
		assert.Contains(t, body, "id-1")
	})

	t.Run("BadLimit", func(t *testing.T) {
		r := newTestRouter(t, &stubInterpreter{}, &stubExecStore{})
		resp, _ := doRequest(t, r, http.MethodGet, "/executions?limit=abc")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("StoreErrorSurfacesAs500", func(t *testing.T) {
		st := &stubExecStore{err: errors.New("connection refused")}
		r := newTestRouter(t, &stubInterpreter{}, st)

		resp, body := doRequest(t, r, http.MethodGet, "/executions")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, body, "connection refused")
	})
}
