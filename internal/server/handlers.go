package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/registry"
	"github.com/kestrelsec/agentgate/internal/service"
	"github.com/kestrelsec/agentgate/internal/store"
	"github.com/kestrelsec/agentgate/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommandInterpreter turns a raw user command into a structured agent prompt.
type CommandInterpreter interface {
	Interpret(ctx context.Context, userInput string) (schemas.AgentPrompt, error)
}

// ExecutionStore is the subset of the store the handlers read from.
type ExecutionStore interface {
	ListExecutions(ctx context.Context, module string, limit int) ([]store.ExecutionRecord, error)
}

// ActionExecutor runs catalog modules and evaluates conditions against
// recorded action state.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, module string, depsJSON []byte) (*service.ExecutionResult, error)
	ResolveCondition(ctx context.Context, state []map[string]any, instruction string) (service.ComparisonResponse, error)
}

// Handlers serves the HTTP API. All endpoints are pass-through reads over
// the registries and services; failures log and surface as 500 with the
// error text.
type Handlers struct {
	log           *zap.Logger
	registry      *registry.Registry
	interpreter   CommandInterpreter
	executor      ActionExecutor
	dispatcher    *worker.Dispatcher
	execStore     ExecutionStore
	frameworksDir string
}

// NewHandlers creates the handler set. execStore may be nil when the server
// runs without a database.
func NewHandlers(logger *zap.Logger, reg *registry.Registry, interp CommandInterpreter, executor ActionExecutor, dispatcher *worker.Dispatcher, execStore ExecutionStore, frameworksDir string) *Handlers {
	return &Handlers{
		log:           logger.Named("handlers"),
		registry:      reg,
		interpreter:   interp,
		executor:      executor,
		dispatcher:    dispatcher,
		execStore:     execStore,
		frameworksDir: frameworksDir,
	}
}

// RegisterRoutes sets up the routing table.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/llm-models", h.HandleLLMModels)
	r.Get("/tools", h.HandleTools)
	r.Get("/predefined-frameworks", h.HandleFrameworks)
	r.Get("/action-prototypes", h.HandleActionPrototypes)
	r.Post("/command_interpreter", h.HandleCommandInterpreter)
	r.Post("/action-executions", h.HandleActionExecution)
	r.Post("/resolve-condition", h.HandleResolveCondition)
	r.Get("/job-queue-test", h.HandleJobQueueTest)
	r.Get("/jobs/{jobID}", h.HandleJobStatus)
	r.Get("/executions", h.HandleExecutions)
}

// HandleHealth confirms the server is responsive.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("I am healthy"))
}

// HandleLLMModels lists every registered hosted model.
func (h *Handlers) HandleLLMModels(w http.ResponseWriter, r *http.Request) {
	models := service.AllModels()
	h.respondJSON(w, http.StatusOK, schemas.LLMModelsResponse{Models: models})
}

// HandleTools lists the registered agent tools.
func (h *Handlers) HandleTools(w http.ResponseWriter, r *http.Request) {
	tools := service.AllTools(h.registry)
	h.respondJSON(w, http.StatusOK, schemas.ToolsResponse{Tools: tools})
}

// HandleFrameworks loads and returns the predefined framework catalog.
func (h *Handlers) HandleFrameworks(w http.ResponseWriter, r *http.Request) {
	frameworks, err := service.LoadFrameworks(h.frameworksDir, h.log)
	if err != nil {
		h.respondError(w, r, "Failed to load predefined frameworks", err)
		return
	}
	h.respondJSON(w, http.StatusOK, schemas.FrameworksResponse{Frameworks: frameworks})
}

// HandleActionPrototypes lists every registered action prototype with its
// dependency and output field metadata.
func (h *Handlers) HandleActionPrototypes(w http.ResponseWriter, r *http.Request) {
	actions := service.AllPrototypes(h.registry)
	h.respondJSON(w, http.StatusOK, schemas.ActionPrototypesResponse{Actions: actions})
}

// HandleCommandInterpreter translates a natural-language user prompt into a
// structured agent prompt record.
func (h *Handlers) HandleCommandInterpreter(w http.ResponseWriter, r *http.Request) {
	userPrompt := r.URL.Query().Get("user_prompt")
	if userPrompt == "" {
		http.Error(w, "user_prompt query parameter is required", http.StatusBadRequest)
		return
	}

	prompt, err := h.interpreter.Interpret(r.Context(), userPrompt)
	if err != nil {
		h.respondError(w, r, "Command interpretation failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, prompt)
}

type actionExecutionRequest struct {
	Module string              `json:"module"`
	Deps   jsoniter.RawMessage `json:"deps"`
}

// HandleActionExecution resolves a catalog module, runs its prototype with
// the submitted deps and returns the recorded outcome.
func (h *Handlers) HandleActionExecution(w http.ResponseWriter, r *http.Request) {
	var req actionExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "request body must be a JSON object", http.StatusBadRequest)
		return
	}
	if req.Module == "" {
		http.Error(w, "module field is required", http.StatusBadRequest)
		return
	}

	result, err := h.executor.ExecuteAction(r.Context(), req.Module, req.Deps)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUnknownModule):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, service.ErrInvalidDeps), errors.Is(err, service.ErrNotExecutable):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		h.respondError(w, r, "Action execution failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

type resolveConditionRequest struct {
	Instruction string           `json:"instruction"`
	State       []map[string]any `json:"state"`
}

// HandleResolveCondition evaluates a natural-language condition against
// recorded action state.
func (h *Handlers) HandleResolveCondition(w http.ResponseWriter, r *http.Request) {
	var req resolveConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "request body must be a JSON object", http.StatusBadRequest)
		return
	}
	if req.Instruction == "" {
		http.Error(w, "instruction field is required", http.StatusBadRequest)
		return
	}

	verdict, err := h.executor.ResolveCondition(r.Context(), req.State, req.Instruction)
	if err != nil {
		h.respondError(w, r, "Condition resolution failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, verdict)
}

// HandleJobQueueTest submits a no-op background task, exercising whichever
// dispatch mode the queue configuration selected.
func (h *Handlers) HandleJobQueueTest(w http.ResponseWriter, r *http.Request) {
	job, err := h.dispatcher.Submit(r.Context(), "queue_test", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil
		}
	})
	if err != nil {
		h.respondError(w, r, "Failed to submit test task", err)
		return
	}
	h.log.Info("Test task submitted",
		zap.String("job_id", job.ID),
		zap.Bool("queued", h.dispatcher.Queued()))
	h.respondJSON(w, http.StatusOK, job)
}

// HandleJobStatus returns the record of a previously submitted job.
func (h *Handlers) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := h.dispatcher.Lookup(jobID)
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// HandleExecutions lists recent persisted action executions.
func (h *Handlers) HandleExecutions(w http.ResponseWriter, r *http.Request) {
	if h.execStore == nil {
		http.Error(w, "execution store is unavailable (database not configured)", http.StatusServiceUnavailable)
		return
	}

	module := r.URL.Query().Get("module")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.execStore.ListExecutions(r.Context(), module, limit)
	if err != nil {
		h.respondError(w, r, "Failed to list executions", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(records),
		"executions": records,
	})
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
