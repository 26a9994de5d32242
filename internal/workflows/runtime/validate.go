package runtime

import (
	"context"
	"fmt"
)

// StageResult is one named validation stage's outcome, grounded on
// original_source/src/maverick/dsl/steps/validate.py's per-stage
// reporting.
type StageResult struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ValidationResult is the output of a validate step, grounded on
// validate.py's ValidationResult dataclass.
type ValidationResult struct {
	Success      bool                   `json:"success"`
	Stages       []string               `json:"stages"`
	StageResults map[string]StageResult `json:"stage_results"`
	FixAttempts  int                    `json:"fix_attempts"`
}

func (v ValidationResult) Passed() bool { return v.Success }

func (v ValidationResult) ToMap() map[string]any {
	stageResults := make(map[string]any, len(v.StageResults))
	for k, sr := range v.StageResults {
		stageResults[k] = map[string]any{
			"success":     sr.Success,
			"output":      sr.Output,
			"duration_ms": sr.DurationMS,
			"error":       sr.Error,
		}
	}
	stages := make([]any, len(v.Stages))
	for i, s := range v.Stages {
		stages[i] = s
	}
	return map[string]any{
		"success":       v.Success,
		"passed":        v.Passed(),
		"stages":        stages,
		"stage_results": stageResults,
		"fix_attempts":  v.FixAttempts,
	}
}

// ValidationRunner is the external collaborator spec.md §4.6 names:
// something that executes each named stage (a lint command, a test
// suite) and streams its outcome. It is explicitly out of scope for
// this engine's own implementation (spec.md §1's "concrete ... version-
// control shells" exclusion extends to arbitrary subprocess runners);
// the Executor only ever calls through this interface.
type ValidationRunner interface {
	RunStages(ctx context.Context, stages []string) (ValidationResult, error)
}

// resolveStages implements validate.py's _resolve_stages: an explicit
// list wins; a string names a key in the run config's named stage
// sets; nil falls back to the config's own default list.
func resolveStages(step stageSource, cfg stageConfig) ([]string, error) {
	switch v := step.stages().(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, nil
	case string:
		stages, ok := cfg.ResolveValidationStages(v)
		if !ok {
			return nil, &StagesNotFoundError{Key: v}
		}
		return stages, nil
	case nil:
		stages, _ := cfg.ResolveValidationStages("")
		return stages, nil
	default:
		return nil, fmt.Errorf("validate: unsupported stages value of type %T", v)
	}
}

// stageSource/stageConfig are the minimal seams resolveStages needs,
// kept as interfaces so it can be unit tested without constructing a
// full StepRecord/Config pair.
type stageSource interface{ stages() any }
type stageConfig interface {
	ResolveValidationStages(key string) ([]string, bool)
}
