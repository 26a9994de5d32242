package runtime

import (
	"context"
	"fmt"
	"time"

	"maverick/internal/checkpoint"
	"maverick/internal/eventbus"
	"maverick/internal/workflows"
	"maverick/internal/workflows/expr"
)

// dispatch routes a step to its kind-specific handler. A non-nil error
// return always means the step failed; the caller (executeStep) turns
// that into a StepFailed event and a StepResult with Success=false.
func (e *Executor) dispatch(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, scope expr.Scope) (any, map[string]any, error) {
	switch step.Type {
	case workflows.StepPython:
		return e.execPython(ctx, step, scope)
	case workflows.StepAgent:
		return e.execAgent(ctx, step, wfctx, scope)
	case workflows.StepGenerate:
		return e.execGenerate(ctx, step, wfctx, scope)
	case workflows.StepValidate:
		return e.execValidate(ctx, step, path, wfctx, bus)
	case workflows.StepSubworkflow:
		return e.execSubworkflow(ctx, step, path, wfctx, bus, scope)
	case workflows.StepBranch:
		return e.execBranch(ctx, step, path, wfctx, bus, scope)
	case workflows.StepLoop:
		return e.execLoop(ctx, step, path, wfctx, bus)
	case workflows.StepCheckpoint:
		return e.execCheckpoint(ctx, step, wfctx, bus)
	case workflows.StepSchedule:
		return e.execSchedule(step, scope)
	default:
		return nil, nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

// execPython implements spec.md §4.6's python action handler: resolve
// kwargs, look up the action, call it. There is no retry; an
// unhandled error becomes the step's failure.
func (e *Executor) execPython(ctx context.Context, step *workflows.StepRecord, scope expr.Scope) (any, map[string]any, error) {
	action, err := e.comps.Actions.Get(step.Action)
	if err != nil {
		return nil, nil, err
	}
	kwargs, err := e.resolver.ResolveMap(step.Kwargs, scope)
	if err != nil {
		return nil, nil, err
	}
	output, err := action(ctx, kwargs)
	if err != nil {
		return nil, nil, err
	}
	return output, nil, nil
}

// buildComponentInput is the agent/generate handlers' escape hatch,
// ported as the explicit `context_builder` step field (spec.md §9's
// "Reserved key" design note) rather than a magic map key.
func (e *Executor) buildComponentInput(step *workflows.StepRecord, wfctx *WorkflowContext, scope expr.Scope) (any, error) {
	resolvedInputs, err := e.resolver.ResolveMap(step.Inputs, scope)
	if err != nil {
		return nil, err
	}
	if step.ContextBuilder == "" {
		return resolvedInputs, nil
	}
	builder, err := e.comps.ContextBuilders.Get(step.ContextBuilder)
	if err != nil {
		return nil, err
	}
	return builder(wfctx.Inputs, wfctx.StepOutputs())
}

func (e *Executor) execAgent(ctx context.Context, step *workflows.StepRecord, wfctx *WorkflowContext, scope expr.Scope) (any, map[string]any, error) {
	agent, err := e.comps.Agents.Get(step.Agent)
	if err != nil {
		return nil, nil, err
	}
	input, err := e.buildComponentInput(step, wfctx, scope)
	if err != nil {
		return nil, nil, err
	}
	output, err := agent.Execute(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return output, nil, nil
}

func (e *Executor) execGenerate(ctx context.Context, step *workflows.StepRecord, wfctx *WorkflowContext, scope expr.Scope) (any, map[string]any, error) {
	generator, err := e.comps.Generators.Get(step.Generator)
	if err != nil {
		return nil, nil, err
	}
	input, err := e.buildComponentInput(step, wfctx, scope)
	if err != nil {
		return nil, nil, err
	}
	text, err := generator.Generate(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return text, nil, nil
}

// execValidate implements validate.py's execute() retry loop: resolve
// stages, run them, and on failure run on_failure then retry, up to
// step.Retry additional attempts.
func (e *Executor) execValidate(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus) (any, map[string]any, error) {
	stages, err := resolveStages(stepStages{step}, e.cfg)
	if err != nil {
		return nil, nil, err
	}

	if e.validator == nil {
		result := ValidationResult{Success: true, Stages: stages, StageResults: map[string]StageResult{}}
		return result, nil, nil
	}

	attempts := step.Retry + 1
	var last ValidationResult
	for attempt := 0; attempt < attempts; attempt++ {
		for _, stage := range stages {
			bus.Emit(EventValidateStageStarted, path, map[string]any{"stage": stage, "attempt": attempt})
		}
		res, err := e.validator.RunStages(ctx, stages)
		if err != nil {
			return nil, nil, err
		}
		res.FixAttempts = attempt
		last = res
		for stage, sr := range res.StageResults {
			bus.Emit(EventValidateStageFinished, path, map[string]any{"stage": stage, "success": sr.Success, "attempt": attempt})
		}
		if res.Success {
			return res, nil, nil
		}
		if step.OnFailure != nil && attempt < attempts-1 {
			if _, err := e.executeStep(ctx, step.OnFailure, path, wfctx, bus); err != nil {
				return nil, nil, err
			}
		}
	}
	return last, nil, fmt.Errorf("validation failed after %d retries", step.Retry)
}

type stepStages struct{ step *workflows.StepRecord }

func (s stepStages) stages() any { return s.step.Stages }

// execBranch implements spec.md §4.6's branch handler: first truthy
// predicate wins; no match is success with a null output, per the
// spec's explicit open-question resolution (§9), not an error.
func (e *Executor) execBranch(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, scope expr.Scope) (any, map[string]any, error) {
	for i, opt := range step.Options {
		truthy, err := e.evalTruthy(opt.When, scope)
		if err != nil {
			return nil, nil, err
		}
		if !truthy {
			continue
		}
		bus.Emit(EventBranchSelected, path, map[string]any{"index": i, "step_name": opt.Step.Name})
		result, err := e.executeStep(ctx, &opt.Step, path, wfctx, bus)
		if err != nil {
			return nil, nil, err
		}
		branchResult := BranchResult{SelectedIndex: i, SelectedStepName: opt.Step.Name, InnerOutput: result.Output}
		return branchResult, nil, nil
	}
	bus.Emit(EventBranchSelected, path, map[string]any{"index": -1})
	return nil, nil, nil
}

// execSubworkflow invokes a nested Executor run, forwarding its events
// under the caller step's path prefix (spec.md §4.6).
func (e *Executor) execSubworkflow(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, scope expr.Scope) (any, map[string]any, error) {
	sub, err := e.comps.Workflows.Get(step.Workflow)
	if err != nil {
		return nil, nil, err
	}
	resolvedInputs, err := e.resolver.ResolveMap(step.Inputs, scope)
	if err != nil {
		return nil, nil, err
	}

	nestedBus, done := e.Execute(ctx, sub, resolvedInputs, ExecuteOptions{})
	for ev := range nestedBus.Events() {
		childPath := ev.StepPath
		if childPath == "" {
			childPath = path
		} else {
			childPath = path + "/" + childPath
		}
		bus.Emit(ev.Type, childPath, ev.Payload)
	}
	outcome := <-done
	if outcome.Err != nil {
		return nil, nil, outcome.Err
	}
	return outcome.Result.FinalOutput, nil, nil
}

// execCheckpoint writes a durable snapshot via the configured Store,
// per spec.md §4.6/§4.8. A nil Store is a configuration error, not a
// silent no-op, since a checkpoint step that never saves would defeat
// the caller's resume expectations.
func (e *Executor) execCheckpoint(ctx context.Context, step *workflows.StepRecord, wfctx *WorkflowContext, bus *eventbus.Bus) (any, map[string]any, error) {
	if e.store == nil {
		return nil, nil, &CheckpointWriteError{CheckpointID: step.CheckpointID, Cause: fmt.Errorf("no checkpoint store configured")}
	}

	hash, err := checkpoint.HashInputs(wfctx.Inputs)
	if err != nil {
		return nil, nil, &CheckpointWriteError{CheckpointID: step.CheckpointID, Cause: err}
	}

	results := wfctx.AllResults()
	records := make([]checkpoint.StepResultRecord, 0, len(results))
	for _, r := range results {
		records = append(records, checkpoint.StepResultRecord{
			Name:       r.Name,
			StepType:   string(r.StepType),
			Success:    r.Success,
			Output:     r.Output,
			DurationMS: r.DurationMS,
			Error:      r.Error,
		})
	}

	snapshot := checkpoint.Snapshot{
		WorkflowName: wfctx.WorkflowName,
		CheckpointID: step.CheckpointID,
		InputsHash:   hash,
		StepResults:  records,
		SavedAt:      time.Now(),
	}
	if err := e.store.Save(ctx, snapshot); err != nil {
		return nil, nil, &CheckpointWriteError{CheckpointID: step.CheckpointID, Cause: err}
	}

	bus.Emit(EventCheckpointSaved, "", map[string]any{"checkpoint_id": step.CheckpointID})
	return map[string]any{"checkpoint_id": step.CheckpointID}, nil, nil
}

// execSchedule is the supplemental ninth step kind (SPEC_FULL.md §12):
// it does not run the cron expression itself, it only validates the
// cron spec and returns scheduling metadata as the step's output. The
// engine has no daemon mode; firing a run on the recorded schedule is
// the job of whatever external process invokes `maverick run` (a
// system cron entry, a Kubernetes CronJob, CI), reading this step's
// output to decide when that should happen.
func (e *Executor) execSchedule(step *workflows.StepRecord, scope expr.Scope) (any, map[string]any, error) {
	spec, err := parseCronSpec(step.Cron, step.Timezone)
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{
		"cron":     step.Cron,
		"timezone": step.Timezone,
		"next_run": spec,
	}, nil, nil
}
