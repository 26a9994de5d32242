// Package runtime implements the Workflow Executor and its per-kind
// step handlers (spec.md §4.6-§4.7): the component that drives a
// parsed Workflow against a live ComponentRegistry, resolving
// expressions, dispatching by step kind, and emitting a totally
// ordered event stream.
package runtime

import (
	"maverick/internal/workflows"
)

// StepResult is the immutable outcome of one step's dynamic execution.
type StepResult struct {
	Name       string              `json:"name"`
	StepPath   string              `json:"step_path"`
	StepType   workflows.StepType  `json:"step_type"`
	Success    bool                `json:"success"`
	Output     any                 `json:"output,omitempty"`
	DurationMS int64               `json:"duration_ms"`
	Error      string              `json:"error,omitempty"`
	Details    map[string]any      `json:"details,omitempty"`
}

// ToMap renders the subset of fields the Expression Resolver's
// `steps.<name>.output`-style access needs. An output that has its own
// ToMap (ValidationResult, BranchResult) is rendered through it.
func (r StepResult) ToMap() map[string]any {
	output := r.Output
	if m, ok := output.(interface{ ToMap() map[string]any }); ok {
		output = m.ToMap()
	}
	return map[string]any{
		"name":        r.Name,
		"step_type":   string(r.StepType),
		"success":     r.Success,
		"output":      output,
		"duration_ms": r.DurationMS,
		"error":       r.Error,
	}
}

// WorkflowResult is the terminal, queryable summary of a completed run.
type WorkflowResult struct {
	Success      bool
	WorkflowName string
	Inputs       map[string]any
	StepResults  map[string]StepResult
	FinalOutput  any
}

// BranchResult is the output of a branch step: which option (if any)
// matched and the inner step's own output.
type BranchResult struct {
	SelectedIndex    int    `json:"selected_index"`
	SelectedStepName string `json:"selected_step_name,omitempty"`
	InnerOutput      any    `json:"inner_output"`
}

func (b BranchResult) ToMap() map[string]any {
	return map[string]any{
		"selected_index":     b.SelectedIndex,
		"selected_step_name": b.SelectedStepName,
		"inner_output":       b.InnerOutput,
	}
}
