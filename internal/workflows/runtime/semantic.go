package runtime

import "maverick/internal/workflows"

// validateSemantics implements spec.md §4.7 phase 1: every referenced
// action/agent/generator/context-builder/sub-workflow name must exist
// in the registry before any step runs. Shape-level invariants (unique
// names, loop over/until exclusivity, non-empty branch options) are
// already enforced by Workflow.ValidateShape, called just before this.
func (e *Executor) validateSemantics(wf *workflows.Workflow) error {
	return e.validateStepSemantics(wf.Steps, "")
}

// ValidateSemantics exposes validateSemantics to callers outside the
// package (the `validate` CLI subcommand) that want a semantic check
// without a full Execute run.
func (e *Executor) ValidateSemantics(wf *workflows.Workflow) error {
	return e.validateSemantics(wf)
}

func (e *Executor) validateStepSemantics(steps []workflows.StepRecord, parentPath string) error {
	for i := range steps {
		step := &steps[i]
		path := workflows.StepPath(parentPath, step.Name)

		switch step.Type {
		case workflows.StepPython:
			if !e.comps.Actions.Has(step.Action) {
				return &SemanticValidationError{StepPath: path, Message: "unknown action " + quote(step.Action)}
			}
		case workflows.StepAgent:
			if !e.comps.Agents.Has(step.Agent) {
				return &SemanticValidationError{StepPath: path, Message: "unknown agent " + quote(step.Agent)}
			}
			if step.ContextBuilder != "" && !e.comps.ContextBuilders.Has(step.ContextBuilder) {
				return &SemanticValidationError{StepPath: path, Message: "unknown context_builder " + quote(step.ContextBuilder)}
			}
		case workflows.StepGenerate:
			if !e.comps.Generators.Has(step.Generator) {
				return &SemanticValidationError{StepPath: path, Message: "unknown generator " + quote(step.Generator)}
			}
			if step.ContextBuilder != "" && !e.comps.ContextBuilders.Has(step.ContextBuilder) {
				return &SemanticValidationError{StepPath: path, Message: "unknown context_builder " + quote(step.ContextBuilder)}
			}
		case workflows.StepSubworkflow:
			if !e.comps.Workflows.Has(step.Workflow) {
				return &SemanticValidationError{StepPath: path, Message: "unknown workflow " + quote(step.Workflow)}
			}
		case workflows.StepLoop:
			if err := e.validateStepSemantics(step.Steps, workflows.LoopIterationPath(path, 0)); err != nil {
				return err
			}
		case workflows.StepBranch:
			for _, opt := range step.Options {
				if err := e.validateStepSemantics([]workflows.StepRecord{opt.Step}, path); err != nil {
					return err
				}
			}
		case workflows.StepValidate:
			if step.OnFailure != nil {
				if err := e.validateStepSemantics([]workflows.StepRecord{*step.OnFailure}, path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func quote(s string) string { return "\"" + s + "\"" }
