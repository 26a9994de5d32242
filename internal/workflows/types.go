// Package workflows defines the data model for Maverick workflow
// definitions: the declarative YAML-sourced record of inputs and
// steps that the runtime executor walks.
package workflows

import (
	"errors"
	"fmt"
)

// StepType discriminates the union of step kinds a workflow can declare.
type StepType string

const (
	StepPython      StepType = "python"
	StepAgent       StepType = "agent"
	StepGenerate    StepType = "generate"
	StepValidate    StepType = "validate"
	StepSubworkflow StepType = "subworkflow"
	StepBranch      StepType = "branch"
	StepLoop        StepType = "loop"
	StepCheckpoint  StepType = "checkpoint"
	StepSchedule    StepType = "schedule"
)

var knownStepTypes = map[StepType]bool{
	StepPython: true, StepAgent: true, StepGenerate: true, StepValidate: true,
	StepSubworkflow: true, StepBranch: true, StepLoop: true, StepCheckpoint: true,
	StepSchedule: true,
}

// InputType enumerates the allowed InputDef.Type values.
type InputType string

const (
	InputString  InputType = "string"
	InputInteger InputType = "integer"
	InputBoolean InputType = "boolean"
	InputNumber  InputType = "number"
	InputArray   InputType = "array"
	InputObject  InputType = "object"
	InputEnum    InputType = "enum"
)

// InputDef describes one declared workflow input.
type InputDef struct {
	Type        InputType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Default     any       `yaml:"default,omitempty" json:"default,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Choices     []any     `yaml:"choices,omitempty" json:"choices,omitempty"`
}

// Validate checks InputDef's own invariant: required implies no default.
func (d InputDef) Validate(name string) error {
	if d.Required && d.Default != nil {
		return fmt.Errorf("input %q: required inputs must not declare a default", name)
	}
	return nil
}

// BranchOption pairs a predicate expression with the step it guards.
type BranchOption struct {
	When string     `yaml:"when" json:"when"`
	Step StepRecord `yaml:"step" json:"step"`
}

// StepRecord is the tagged union over every step kind a workflow may
// declare. Only the fields relevant to Type are populated; handlers
// read only their own kind's fields (enforced by convention, not the
// type system — Go has no closed sum types, so Type is the dispatch key
// and the remaining fields are the payload for whichever kind it names).
type StepRecord struct {
	Name     string   `yaml:"name" json:"name"`
	Type     StepType `yaml:"type" json:"type"`
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	When     string   `yaml:"when,omitempty" json:"when,omitempty"`

	// python
	Action string         `yaml:"action,omitempty" json:"action,omitempty"`
	Kwargs map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`

	// agent / generate / subworkflow
	Agent          string         `yaml:"agent,omitempty" json:"agent,omitempty"`
	Generator      string         `yaml:"generator,omitempty" json:"generator,omitempty"`
	Workflow       string         `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Inputs         map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	ContextBuilder string         `yaml:"context_builder,omitempty" json:"context_builder,omitempty"`

	// validate
	Stages    any         `yaml:"stages,omitempty" json:"stages,omitempty"` // []string | string | nil
	Retry     int         `yaml:"retry,omitempty" json:"retry,omitempty"`
	OnFailure *StepRecord `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`

	// branch
	Options []BranchOption `yaml:"options,omitempty" json:"options,omitempty"`

	// loop
	Over             string       `yaml:"over,omitempty" json:"over,omitempty"`
	Until            string       `yaml:"until,omitempty" json:"until,omitempty"`
	MaxIterations    int          `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Parallel         bool         `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	MaxConcurrent    int          `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
	ContinueOnError  bool         `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
	Steps            []StepRecord `yaml:"steps,omitempty" json:"steps,omitempty"`

	// checkpoint
	CheckpointID string `yaml:"checkpoint_id,omitempty" json:"checkpoint_id,omitempty"`

	// schedule (supplemental ninth kind, see SPEC_FULL.md §12)
	Cron     string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

const DefaultMaxIterations = 30

// Workflow is the immutable, parsed record of one workflow file.
type Workflow struct {
	Version     string              `yaml:"version" json:"version"`
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      map[string]InputDef `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps       []StepRecord        `yaml:"steps" json:"steps"`
}

var (
	ErrDuplicateStepName  = errors.New("duplicate step name")
	ErrUnknownStepType    = errors.New("unknown step type")
	ErrConflictingLoop    = errors.New("loop declares both over and until")
	ErrEmptyBranchOptions = errors.New("branch step has no options")
)

// ValidateShape checks the structural invariants spec.md assigns to the
// data model itself: unique step names per parent, known step kinds,
// loop's over/until mutual exclusion, non-empty branch options. It does
// not resolve component references — that is semantic validation,
// performed by the Executor against a live ComponentRegistry.
func (w *Workflow) ValidateShape() error {
	for name, def := range w.Inputs {
		if err := def.Validate(name); err != nil {
			return err
		}
	}
	return validateStepShapes(w.Steps)
}

func validateStepShapes(steps []StepRecord) error {
	seen := make(map[string]bool, len(steps))
	for i := range steps {
		s := &steps[i]
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStepName, s.Name)
		}
		seen[s.Name] = true

		if !knownStepTypes[s.Type] {
			return fmt.Errorf("%w: %q (step %q)", ErrUnknownStepType, s.Type, s.Name)
		}

		switch s.Type {
		case StepLoop:
			if s.Over != "" && s.Until != "" {
				return fmt.Errorf("%w: step %q", ErrConflictingLoop, s.Name)
			}
			if err := validateStepShapes(s.Steps); err != nil {
				return err
			}
		case StepBranch:
			if len(s.Options) == 0 {
				return fmt.Errorf("%w: step %q", ErrEmptyBranchOptions, s.Name)
			}
			for _, opt := range s.Options {
				if err := validateStepShapes([]StepRecord{opt.Step}); err != nil {
					return err
				}
			}
		case StepValidate:
			if s.OnFailure != nil {
				if err := validateStepShapes([]StepRecord{*s.OnFailure}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StepPath builds the hierarchical identifier described in spec.md §3
// ("loop/[0]/validate") and the GLOSSARY. Composite steps prefix their
// nested children's paths with their own name and, for loop iterations,
// the iteration index in brackets.
func StepPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// LoopIterationPath namespaces a loop iteration's nested step paths,
// e.g. StepPath(LoopIterationPath("loop_step", 0), "validate_phase").
func LoopIterationPath(loopName string, index int) string {
	return fmt.Sprintf("%s/[%d]", loopName, index)
}
