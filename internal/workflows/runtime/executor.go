package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"maverick/internal/checkpoint"
	"maverick/internal/config"
	"maverick/internal/eventbus"
	"maverick/internal/logging"
	"maverick/internal/workflows"
	"maverick/internal/workflows/expr"
	"maverick/internal/workflows/prereq"
	"maverick/internal/workflows/registry"
)

// Options configures an Executor's collaborators. Comps is required;
// a nil PrereqReg skips the preflight phase, and everything else has a
// usable zero value (no checkpoint store, no validation runner, default
// config, default logger, semantic validation on).
type Options struct {
	Comps     *registry.Registry
	PrereqReg *prereq.Registry
	Store     checkpoint.Store
	Validator ValidationRunner
	Config    *config.Config
	Logger    *slog.Logger

	SkipSemanticValidation bool
	EventBufferSize        int
}

// Executor drives one or more workflow runs against a frozen
// ComponentRegistry, per spec.md §4.7.
type Executor struct {
	comps     *registry.Registry
	prereqReg *prereq.Registry
	resolver  *expr.Resolver
	store     checkpoint.Store
	validator ValidationRunner
	cfg       *config.Config
	log       *slog.Logger

	skipSemanticValidation bool
	eventBufferSize        int
}

func NewExecutor(opts Options) *Executor {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		comps:                  opts.Comps,
		prereqReg:              opts.PrereqReg,
		resolver:               expr.NewResolver(cfg.StarlarkMaxExecutionSteps),
		store:                  opts.Store,
		validator:              opts.Validator,
		cfg:                    cfg,
		log:                    logger,
		skipSemanticValidation: opts.SkipSemanticValidation,
		eventBufferSize:        opts.EventBufferSize,
	}
}

// ExecuteOptions parameterizes one run of Execute.
type ExecuteOptions struct {
	ResumeFromCheckpoint bool
	CheckpointID         string
}

// Outcome is delivered on Execute's result channel once the run's
// terminal event has been emitted.
type Outcome struct {
	Result *WorkflowResult
	Err    error
}

// Execute runs wf against inputs, returning the live event Bus and a
// channel that receives exactly one Outcome when the run concludes.
// This is the Go rendering of spec.md §4.7's
// `execute(...) -> AsyncIterator[Event]` plus `get_result()`: the
// Bus's channel is the iterator, and the Outcome channel is get_result
// made safe to await without racing the event stream.
func (e *Executor) Execute(ctx context.Context, wf *workflows.Workflow, inputs map[string]any, opts ExecuteOptions) (*eventbus.Bus, <-chan Outcome) {
	bus := eventbus.New(e.eventBufferSize)
	done := make(chan Outcome, 1)

	go func() {
		result, err := e.run(ctx, wf, inputs, opts, bus)
		done <- Outcome{Result: result, Err: err}
		bus.Close()
	}()

	return bus, done
}

func (e *Executor) run(ctx context.Context, wf *workflows.Workflow, inputs map[string]any, opts ExecuteOptions, bus *eventbus.Bus) (*WorkflowResult, error) {
	runID := uuid.NewString()
	log := logging.ForRun(e.log, wf.Name, runID)

	bus.Emit(EventWorkflowStarted, "", map[string]any{"workflow_name": wf.Name, "run_id": runID})

	if err := wf.ValidateShape(); err != nil {
		bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
		return nil, err
	}

	if !e.skipSemanticValidation {
		if err := e.validateSemantics(wf); err != nil {
			bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
			return nil, err
		}
	}

	boundInputs, err := workflows.BindInputs(wf.Inputs, inputs)
	if err != nil {
		bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("bind inputs: %w", err)
	}
	inputs = boundInputs

	wfctx := NewWorkflowContext(wf.Name, inputs, e.cfg, envMap())
	wfctx.RunID = runID

	if e.prereqReg != nil {
		bus.Emit(EventPreflightStarted, "", nil)
		plan, err := prereq.NewCollector(e.prereqReg, e.comps, log).Collect(wf)
		if err != nil {
			bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
			return nil, err
		}
		runner := prereq.NewRunner()
		if e.cfg.PrerequisiteTimeout > 0 {
			runner.Timeout = e.cfg.PrerequisiteTimeout
		}
		events := make(chan prereq.PreflightCheckResult)
		resultCh := make(chan prereq.PreflightResult, 1)
		go func() { resultCh <- runner.RunWithEvents(ctx, plan, events) }()
		for cr := range events {
			if cr.Result.Success {
				bus.Emit(EventPreflightCheckPassed, "", map[string]any{"prerequisite": cr.Prerequisite.Name, "message": cr.Result.Message})
			} else {
				bus.Emit(EventPreflightCheckFailed, "", map[string]any{"prerequisite": cr.Prerequisite.Name, "message": cr.Result.Message})
			}
		}
		preflight := <-resultCh
		bus.Emit(EventPreflightCompleted, "", map[string]any{"success": preflight.Success})
		if !preflight.Success {
			err := fmt.Errorf("preflight failed: %s", preflight.FormatError())
			bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
			return nil, err
		}
	}

	if opts.ResumeFromCheckpoint {
		if err := e.resume(ctx, wf, inputs, opts.CheckpointID, wfctx, bus); err != nil {
			bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error()})
			return nil, err
		}
	}

	var finalOutput any
	for i := range wf.Steps {
		step := &wf.Steps[i]
		result, err := e.executeStep(ctx, step, "", wfctx, bus)
		if err != nil {
			bus.Emit(EventWorkflowFailed, "", map[string]any{"error": err.Error(), "step": result.StepPath})
			return e.buildResult(wf, inputs, wfctx, false, finalOutput), err
		}
		finalOutput = result.Output
	}

	bus.Emit(EventWorkflowCompleted, "", map[string]any{"output": finalOutput})
	return e.buildResult(wf, inputs, wfctx, true, finalOutput), nil
}

func (e *Executor) buildResult(wf *workflows.Workflow, inputs map[string]any, wfctx *WorkflowContext, success bool, finalOutput any) *WorkflowResult {
	return &WorkflowResult{
		Success:      success,
		WorkflowName: wf.Name,
		Inputs:       inputs,
		StepResults:  wfctx.AllResults(),
		FinalOutput:  finalOutput,
	}
}

func (e *Executor) resume(ctx context.Context, wf *workflows.Workflow, inputs map[string]any, checkpointID string, wfctx *WorkflowContext, bus *eventbus.Bus) error {
	if e.store == nil {
		return fmt.Errorf("resume requested but no checkpoint store is configured")
	}
	snap, err := e.store.Load(ctx, wf.Name, checkpointID)
	if err != nil {
		return fmt.Errorf("resume: load checkpoint: %w", err)
	}

	actualHash, err := checkpoint.HashInputs(inputs)
	if err != nil {
		return fmt.Errorf("resume: hash inputs: %w", err)
	}
	if actualHash != snap.InputsHash {
		return &InputHashMismatch{Expected: snap.InputsHash, Actual: actualHash}
	}

	for _, rec := range snap.StepResults {
		wfctx.RecordResult(rec.Name, StepResult{
			Name:       rec.Name,
			StepPath:   rec.Name,
			StepType:   workflows.StepType(rec.StepType),
			Success:    rec.Success,
			Output:     rec.Output,
			DurationMS: rec.DurationMS,
			Error:      rec.Error,
		})
	}
	bus.Emit(EventCheckpointRestored, "", map[string]any{"checkpoint_id": checkpointID})
	return nil
}

// executeStep resolves the `when` guard, skips already-resumed steps,
// and dispatches to the handler for step.Type, wrapping the outcome
// uniformly with StepStarted/StepCompleted/StepFailed events and
// duration measurement.
func (e *Executor) executeStep(ctx context.Context, step *workflows.StepRecord, parentPath string, wfctx *WorkflowContext, bus *eventbus.Bus) (StepResult, error) {
	path := workflows.StepPath(parentPath, step.Name)

	if existing, ok := wfctx.GetResult(path); ok {
		return existing, nil
	}

	scope := e.baseScope(wfctx)

	if step.When != "" {
		truthy, err := e.evalTruthy(step.When, scope)
		if err != nil {
			result := StepResult{Name: step.Name, StepPath: path, StepType: step.Type, Success: false, Error: err.Error()}
			wfctx.RecordResult(path, result)
			bus.Emit(EventStepFailed, path, map[string]any{"error": err.Error()})
			return result, &StepExecutionError{StepPath: path, Cause: err}
		}
		if !truthy {
			result := StepResult{Name: step.Name, StepPath: path, StepType: step.Type, Success: true, Output: nil}
			wfctx.RecordResult(path, result)
			bus.Emit(EventStepSkipped, path, map[string]any{"reason": "when_false"})
			return result, nil
		}
	}

	bus.Emit(EventStepStarted, path, map[string]any{"step_type": string(step.Type)})
	started := time.Now()

	output, details, err := e.dispatch(ctx, step, path, wfctx, bus, scope)
	if err != nil {
		result := StepResult{
			Name:       step.Name,
			StepPath:   path,
			StepType:   step.Type,
			Success:    false,
			DurationMS: time.Since(started).Milliseconds(),
			Error:      err.Error(),
			Details:    details,
		}
		wfctx.RecordResult(path, result)
		bus.Emit(EventStepFailed, path, map[string]any{"error": err.Error()})
		return result, &StepExecutionError{StepPath: path, Cause: err}
	}

	result := StepResult{
		Name:       step.Name,
		StepPath:   path,
		StepType:   step.Type,
		Success:    true,
		Output:     output,
		DurationMS: time.Since(started).Milliseconds(),
		Details:    details,
	}
	wfctx.RecordResult(path, result)
	bus.Emit(EventStepCompleted, path, map[string]any{"output": output})
	return result, nil
}

func (e *Executor) baseScope(wfctx *WorkflowContext) expr.Scope {
	scope := expr.Scope{Inputs: wfctx.Inputs, Steps: wfctx.StepsScope(), Env: wfctx.Env}
	if item, index, ok := wfctx.CurrentIteration(); ok {
		scope.Item = item
		scope.HasItem = true
		scope.Index = index
		scope.HasIndex = true
	}
	return scope
}

// evalExpr evaluates an expression-valued step field (when, over, until,
// branch predicates). A value written with `${{ ... }}` delimiters goes
// through ResolveString, so a single whole fragment keeps its native
// type; a value without delimiters is evaluated as a bare expression.
func (e *Executor) evalExpr(exprStr string, scope expr.Scope) (any, error) {
	if strings.Contains(exprStr, "${{") {
		return e.resolver.ResolveString(exprStr, scope)
	}
	return e.resolver.Evaluate(exprStr, scope)
}

func (e *Executor) evalTruthy(exprStr string, scope expr.Scope) (bool, error) {
	v, err := e.evalExpr(exprStr, scope)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// envMap exposes the process environment under the `env` expression
// root (spec.md §4.1), read once per run rather than live, so an
// expression's result stays stable for the duration of execution.
func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
