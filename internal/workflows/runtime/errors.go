package runtime

import (
	"fmt"

	"maverick/internal/checkpoint"
)

// StepExecutionError wraps an unhandled failure from a step's
// underlying component, carrying the step path for user-visible
// reporting per spec.md §7.
type StepExecutionError struct {
	StepPath string
	Cause    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepPath, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }

// LoopStepExecutionError wraps a body-step failure that aborted a loop
// (continue_on_error not set), naming the loop and iteration.
type LoopStepExecutionError struct {
	LoopPath string
	Index    int
	Cause    error
}

func (e *LoopStepExecutionError) Error() string {
	return fmt.Sprintf("loop %q iteration %d failed: %v", e.LoopPath, e.Index, e.Cause)
}

func (e *LoopStepExecutionError) Unwrap() error { return e.Cause }

// CheckpointWriteError reports a failed checkpoint save; spec.md §4.7
// requires this to fail the step like any other, never swallowed.
type CheckpointWriteError struct {
	CheckpointID string
	Cause        error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint %q write failed: %v", e.CheckpointID, e.Cause)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Cause }

// InputHashMismatch is returned by Resume when a checkpoint's
// inputs_hash disagrees with the resuming caller's inputs.
type InputHashMismatch struct {
	Expected string
	Actual   string
}

func (e *InputHashMismatch) Error() string {
	return fmt.Sprintf("checkpoint inputs_hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *InputHashMismatch) Unwrap() error { return checkpoint.ErrInputHashMismatch }

// StagesNotFoundError mirrors original_source's validate.py: a named
// stage key was given but no matching entry exists in the run config.
type StagesNotFoundError struct {
	Key string
}

func (e *StagesNotFoundError) Error() string {
	return fmt.Sprintf("validation stage set %q not found in config", e.Key)
}

// SemanticValidationError reports a dangling component reference or
// other structural inconsistency discovered before any step runs.
type SemanticValidationError struct {
	StepPath string
	Message  string
}

func (e *SemanticValidationError) Error() string {
	return fmt.Sprintf("semantic validation failed at %q: %s", e.StepPath, e.Message)
}
