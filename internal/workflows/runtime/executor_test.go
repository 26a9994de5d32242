package runtime

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maverick/internal/checkpoint"
	"maverick/internal/workflows"
	"maverick/internal/workflows/prereq"
	"maverick/internal/workflows/registry"
)

type capturedEvent struct {
	seq     int
	typ     string
	path    string
	payload map[string]any
}

func newTestExecutor(t *testing.T, comps *registry.Registry) *Executor {
	t.Helper()
	if comps == nil {
		comps = registry.New()
	}
	return NewExecutor(Options{Comps: comps, SkipSemanticValidation: true})
}

func runAndCollect(t *testing.T, e *Executor, wf *workflows.Workflow, inputs map[string]any, opts ExecuteOptions) ([]capturedEvent, *Outcome) {
	t.Helper()
	bus, done := e.Execute(context.Background(), wf, inputs, opts)
	var events []capturedEvent
	for ev := range bus.Events() {
		events = append(events, capturedEvent{seq: int(ev.Seq), typ: ev.Type, path: ev.StepPath, payload: ev.Payload})
	}
	outcome := <-done
	return events, &outcome
}

// Invariant (spec.md §8): WorkflowStarted exactly once, events with
// monotonically increasing seq, exactly one terminal event.
func TestExecutor_Run_EventOrderingInvariant(t *testing.T) {
	comps := registry.New()
	require.NoError(t, comps.Actions.Register("noop", func(ctx context.Context, kwargs map[string]any) (any, error) {
		return "ok", nil
	}))

	wf := &workflows.Workflow{
		Name:  "demo",
		Steps: []workflows.StepRecord{{Name: "s1", Type: workflows.StepPython, Action: "noop"}},
	}

	e := newTestExecutor(t, comps)
	events, outcome := runAndCollect(t, e, wf, nil, ExecuteOptions{})

	require.NoError(t, outcome.Err)
	require.NotEmpty(t, events)
	assert.Equal(t, EventWorkflowStarted, events[0].typ)

	started := 0
	terminal := 0
	terminalTypes := map[string]bool{EventWorkflowCompleted: true, EventWorkflowFailed: true, EventWorkflowCancelled: true}
	last := 0
	for _, ev := range events {
		if ev.typ == EventWorkflowStarted {
			started++
		}
		if terminalTypes[ev.typ] {
			terminal++
		}
		assert.Greater(t, ev.seq, last)
		last = ev.seq
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, terminal)
	assert.Equal(t, EventWorkflowCompleted, events[len(events)-1].typ)
}

// Scenario 2 (spec.md §8): branch with no matching predicate is
// success with a null output, not an error.
func TestExecutor_Run_BranchNoMatch(t *testing.T) {
	comps := registry.New()
	wf := &workflows.Workflow{
		Name:   "demo",
		Inputs: map[string]workflows.InputDef{"kind": {Type: workflows.InputString}},
		Steps: []workflows.StepRecord{
			{
				Name: "branch1",
				Type: workflows.StepBranch,
				Options: []workflows.BranchOption{
					{When: "${{ inputs.kind == 'a' }}", Step: workflows.StepRecord{Name: "step1", Type: workflows.StepPython, Action: "noop"}},
					{When: "${{ inputs.kind == 'b' }}", Step: workflows.StepRecord{Name: "step2", Type: workflows.StepPython, Action: "noop"}},
				},
			},
		},
	}
	require.NoError(t, comps.Actions.Register("noop", func(ctx context.Context, kwargs map[string]any) (any, error) { return "x", nil }))

	e := newTestExecutor(t, comps)
	events, outcome := runAndCollect(t, e, wf, map[string]any{"kind": "c"}, ExecuteOptions{})
	require.NoError(t, outcome.Err)

	var sawBranchSelected, sawStepCompleted bool
	for _, ev := range events {
		if ev.typ == EventBranchSelected {
			sawBranchSelected = true
		}
		if ev.typ == EventStepCompleted && ev.path == "branch1" {
			sawStepCompleted = true
		}
	}
	assert.True(t, sawBranchSelected)
	assert.True(t, sawStepCompleted)
	assert.True(t, outcome.Result.Success)
	assert.Nil(t, outcome.Result.StepResults["branch1"].Output)
}

// Scenario 3 (spec.md §8): a sequential loop over [1,2,3] emits
// LoopIterationCompleted in index order 0,1,2.
func TestExecutor_Run_LoopOverOrdering(t *testing.T) {
	comps := registry.New()
	require.NoError(t, comps.Actions.Register("emit", func(ctx context.Context, kwargs map[string]any) (any, error) {
		return kwargs["item"], nil
	}))

	wf := &workflows.Workflow{
		Name:   "demo",
		Inputs: map[string]workflows.InputDef{"items": {Type: workflows.InputArray}},
		Steps: []workflows.StepRecord{
			{
				Name: "loop1",
				Type: workflows.StepLoop,
				Over: "${{ inputs.items }}",
				Steps: []workflows.StepRecord{
					{Name: "emit_step", Type: workflows.StepPython, Action: "emit", Kwargs: map[string]any{"item": "${{ item }}"}},
				},
			},
		},
	}

	e := newTestExecutor(t, comps)
	events, outcome := runAndCollect(t, e, wf, map[string]any{"items": []any{int64(1), int64(2), int64(3)}}, ExecuteOptions{})
	require.NoError(t, outcome.Err)

	var indices []int
	for _, ev := range events {
		if ev.typ == EventLoopIterationCompleted {
			indices = append(indices, ev.payload["index"].(int))
		}
	}
	assert.Equal(t, []int{0, 1, 2}, indices)

	output, ok := outcome.Result.StepResults["loop1"].Output.([]any)
	require.True(t, ok)
	assert.Len(t, output, 3)
}

// Boundary behavior (spec.md §8): an empty `over` collection emits zero
// LoopIterationStarted and an empty output list.
func TestExecutor_Run_LoopOverEmptyCollection(t *testing.T) {
	comps := registry.New()
	wf := &workflows.Workflow{
		Name:   "demo",
		Inputs: map[string]workflows.InputDef{"items": {Type: workflows.InputArray}},
		Steps: []workflows.StepRecord{
			{Name: "loop1", Type: workflows.StepLoop, Over: "${{ inputs.items }}"},
		},
	}

	e := newTestExecutor(t, comps)
	events, outcome := runAndCollect(t, e, wf, map[string]any{"items": []any{}}, ExecuteOptions{})
	require.NoError(t, outcome.Err)

	for _, ev := range events {
		assert.NotEqual(t, EventLoopIterationStarted, ev.typ)
	}
	output, ok := outcome.Result.StepResults["loop1"].Output.([]any)
	require.True(t, ok)
	assert.Empty(t, output)
}

// Scenario 6 (spec.md §8): referencing a missing step's output fails
// the step with a ReferenceResolutionError naming the missing path.
func TestExecutor_Run_ExpressionReferenceError(t *testing.T) {
	comps := registry.New()
	require.NoError(t, comps.Actions.Register("noop", func(ctx context.Context, kwargs map[string]any) (any, error) { return kwargs["x"], nil }))

	wf := &workflows.Workflow{
		Name: "demo",
		Steps: []workflows.StepRecord{
			{Name: "s1", Type: workflows.StepPython, Action: "noop", Kwargs: map[string]any{"x": "${{ steps.missing.output }}"}},
		},
	}

	e := newTestExecutor(t, comps)
	events, outcome := runAndCollect(t, e, wf, nil, ExecuteOptions{})
	require.Error(t, outcome.Err)

	var sawFailed bool
	for _, ev := range events {
		if ev.typ == EventStepFailed {
			sawFailed = true
			assert.Contains(t, ev.payload["error"], "missing")
		}
	}
	assert.True(t, sawFailed)
}

// Scenario 4 (spec.md §8): a step requiring a prerequisite whose
// dependency failed never runs; the workflow fails during preflight.
func TestExecutor_Run_PrerequisiteSkipOnDepFail(t *testing.T) {
	comps := registry.New()
	stepRan := false
	require.NoError(t, comps.Actions.Register("noop", func(ctx context.Context, kwargs map[string]any) (any, error) {
		stepRan = true
		return nil, nil
	}))

	prereqs := prereq.NewRegistry()
	prereqs.Register(prereq.Prerequisite{Name: "A", Check: func(ctx context.Context) prereq.PrerequisiteResult {
		return prereq.PrerequisiteResult{Success: false, Message: "A is down"}
	}})
	prereqs.Register(prereq.Prerequisite{Name: "B", Dependencies: []string{"A"}, Check: func(ctx context.Context) prereq.PrerequisiteResult {
		return prereq.PrerequisiteResult{Success: true}
	}})

	wf := &workflows.Workflow{
		Name: "demo",
		Steps: []workflows.StepRecord{
			{Name: "s1", Type: workflows.StepPython, Action: "noop", Requires: []string{"B"}},
		},
	}

	e := NewExecutor(Options{Comps: comps, PrereqReg: prereqs, SkipSemanticValidation: true})
	events, outcome := runAndCollect(t, e, wf, nil, ExecuteOptions{})
	require.Error(t, outcome.Err)
	assert.False(t, stepRan)

	var failedPrereqs []string
	for _, ev := range events {
		if ev.typ == EventPreflightCheckFailed {
			failedPrereqs = append(failedPrereqs, ev.payload["prerequisite"].(string))
			if ev.payload["prerequisite"] == "B" {
				assert.Contains(t, ev.payload["message"], "A")
			}
		}
	}
	assert.ElementsMatch(t, []string{"A", "B"}, failedPrereqs)
}

// Scenario 5 / boundary (spec.md §8): resuming with the original inputs
// skips already-checkpointed steps; a mismatched inputs hash fails
// immediately without touching the checkpoint.
func TestExecutor_Resume_SkipsCheckpointedSteps(t *testing.T) {
	comps := registry.New()
	calls := map[string]int{}
	register := func(name string, out any) {
		require.NoError(t, comps.Actions.Register(name, func(ctx context.Context, kwargs map[string]any) (any, error) {
			calls[name]++
			return out, nil
		}))
	}
	register("p1", "v1")
	register("p2", "v2")
	register("p3", "v3")

	wf := &workflows.Workflow{
		Name:   "demo",
		Inputs: map[string]workflows.InputDef{"path": {Type: workflows.InputString}},
		Steps: []workflows.StepRecord{
			{Name: "p1", Type: workflows.StepPython, Action: "p1"},
			{Name: "c1", Type: workflows.StepCheckpoint, CheckpointID: "c1"},
			{Name: "p2", Type: workflows.StepPython, Action: "p2"},
			{Name: "p3", Type: workflows.StepPython, Action: "p3"},
		},
	}

	fs := afero.NewMemMapFs()
	store := checkpoint.NewFileStore(fs, "/checkpoints")

	inputs := map[string]any{"path": "/tmp/x"}

	e := NewExecutor(Options{Comps: comps, Store: store, SkipSemanticValidation: true})
	_, outcome := runAndCollect(t, e, wf, inputs, ExecuteOptions{})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 1, calls["p1"])

	resumeExecutor := NewExecutor(Options{Comps: comps, Store: store, SkipSemanticValidation: true})
	_, resumeOutcome := runAndCollect(t, resumeExecutor, wf, inputs, ExecuteOptions{ResumeFromCheckpoint: true, CheckpointID: "c1"})
	require.NoError(t, resumeOutcome.Err)
	assert.Equal(t, 1, calls["p1"], "p1 must not re-execute after resume")
	// The first run went past the checkpoint, so p2 and p3 ran once there
	// and once more after resume.
	assert.Equal(t, 2, calls["p2"])
	assert.Equal(t, 2, calls["p3"])
}

func TestExecutor_Resume_MismatchedInputsHashFailsImmediately(t *testing.T) {
	comps := registry.New()
	require.NoError(t, comps.Actions.Register("p1", func(ctx context.Context, kwargs map[string]any) (any, error) { return "v1", nil }))

	wf := &workflows.Workflow{
		Name:   "demo",
		Inputs: map[string]workflows.InputDef{"path": {Type: workflows.InputString}},
		Steps:  []workflows.StepRecord{{Name: "p1", Type: workflows.StepPython, Action: "p1"}, {Name: "c1", Type: workflows.StepCheckpoint, CheckpointID: "c1"}},
	}

	fs := afero.NewMemMapFs()
	store := checkpoint.NewFileStore(fs, "/checkpoints")

	e := NewExecutor(Options{Comps: comps, Store: store, SkipSemanticValidation: true})
	_, outcome := runAndCollect(t, e, wf, map[string]any{"path": "/tmp/x"}, ExecuteOptions{})
	require.NoError(t, outcome.Err)

	resumeExecutor := NewExecutor(Options{Comps: comps, Store: store, SkipSemanticValidation: true})
	_, resumeOutcome := runAndCollect(t, resumeExecutor, wf, map[string]any{"path": "/tmp/different"}, ExecuteOptions{ResumeFromCheckpoint: true, CheckpointID: "c1"})
	require.Error(t, resumeOutcome.Err)

	var mismatch *InputHashMismatch
	assert.ErrorAs(t, resumeOutcome.Err, &mismatch)
}
