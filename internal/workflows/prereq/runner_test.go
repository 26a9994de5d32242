package prereq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingCheck(msg string) CheckFunc {
	return func(ctx context.Context) PrerequisiteResult {
		return PrerequisiteResult{Success: false, Message: msg}
	}
}

func passingCheck() CheckFunc {
	return func(ctx context.Context) PrerequisiteResult {
		return PrerequisiteResult{Success: true}
	}
}

// Scenario 4 of spec.md §8: a prerequisite whose dependency already
// failed is skipped, not attempted, with a message naming the failed
// dependency.
func TestRunner_Run_SkipsOnDependencyFailure(t *testing.T) {
	a := Prerequisite{Name: "A", Check: failingCheck("A is down")}
	b := Prerequisite{Name: "B", Dependencies: []string{"A"}, Check: passingCheck()}

	plan := &PreflightPlan{
		Prerequisites:  []Prerequisite{a, b},
		ExecutionOrder: []string{"A", "B"},
	}

	runner := NewRunner()
	result := runner.Run(context.Background(), plan)

	require.False(t, result.Success)
	require.Len(t, result.CheckResults, 2)

	assert.Equal(t, "A", result.CheckResults[0].Prerequisite.Name)
	assert.False(t, result.CheckResults[0].Result.Success)

	assert.Equal(t, "B", result.CheckResults[1].Prerequisite.Name)
	assert.False(t, result.CheckResults[1].Result.Success)
	assert.Contains(t, result.CheckResults[1].Result.Message, "A")
}

func TestRunner_Run_AllPassingSucceeds(t *testing.T) {
	plan := &PreflightPlan{
		Prerequisites:  []Prerequisite{{Name: "A", Check: passingCheck()}},
		ExecutionOrder: []string{"A"},
	}

	result := NewRunner().Run(context.Background(), plan)

	require.True(t, result.Success)
	assert.Len(t, result.GetFailedChecks(), 0)
	assert.Len(t, result.GetPassedChecks(), 1)
}

func TestRunner_RunWithEvents_StreamsEveryResult(t *testing.T) {
	plan := &PreflightPlan{
		Prerequisites:  []Prerequisite{{Name: "A", Check: passingCheck()}, {Name: "B", Check: failingCheck("nope")}},
		ExecutionOrder: []string{"A", "B"},
	}

	events := make(chan PreflightCheckResult)
	resultCh := make(chan PreflightResult, 1)
	runner := NewRunner()
	go func() { resultCh <- runner.RunWithEvents(context.Background(), plan, events) }()

	var seen []string
	for cr := range events {
		seen = append(seen, cr.Prerequisite.Name)
	}
	result := <-resultCh

	assert.Equal(t, []string{"A", "B"}, seen)
	assert.False(t, result.Success)
}
