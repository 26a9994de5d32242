// Package prereq implements the preflight prerequisite subsystem
// described in spec.md §4.4 and supplemented (SPEC_FULL.md §12) with
// the full model/registry/collector/runner shape of
// original_source/src/maverick/dsl/prerequisites/{models,registry,collector,runner}.py,
// which the distilled spec.md compresses into a single paragraph.
package prereq

import (
	"context"
	"time"
)

// CheckFunc performs one prerequisite's check. It returns a result
// describing success/failure rather than using an error return, since
// a failed check is an expected, reportable outcome rather than a
// fault — mirroring the source's CheckFn returning PrerequisiteResult
// rather than raising.
type CheckFunc func(ctx context.Context) PrerequisiteResult

// Prerequisite is a named, potentially dependent system check.
// Dependencies is the declared set of other prerequisite names that
// must pass before this one is attempted.
type Prerequisite struct {
	Name        string
	DisplayName string
	Check       CheckFunc
	Dependencies []string
	Cost        int
	Remediation string
}

func (p Prerequisite) displayName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// PrerequisiteResult is the outcome of running a single check.
type PrerequisiteResult struct {
	Success    bool
	Message    string
	DurationMS int64
	Details    map[string]any
}

// PreflightCheckResult pairs a Prerequisite with the PrerequisiteResult
// it produced, plus the step paths that depend on it (for reporting
// which steps are jeopardized by a failure).
type PreflightCheckResult struct {
	Prerequisite  Prerequisite
	Result        PrerequisiteResult
	AffectedSteps []string
}

// PreflightPlan is the collector's output: the full set of
// prerequisites a workflow (transitively) requires, which steps
// directly named each one, and the dependency-respecting order to run
// them in.
type PreflightPlan struct {
	Prerequisites   []Prerequisite
	StepRequirements map[string][]string // prerequisite name -> step paths
	ExecutionOrder  []string            // prerequisite names, dependency-first
}

// PreflightResult is the runner's output.
type PreflightResult struct {
	Success         bool
	CheckResults    []PreflightCheckResult
	TotalDurationMS int64
	Timestamp       time.Time
}

// FormatError renders a human-readable summary of every failed check,
// including its remediation hint when one is set.
func (r PreflightResult) FormatError() string {
	failed := r.GetFailedChecks()
	if len(failed) == 0 {
		return ""
	}
	out := "preflight checks failed:\n"
	for _, c := range failed {
		out += "  - " + c.Prerequisite.displayName() + ": " + c.Result.Message
		if c.Prerequisite.Remediation != "" {
			out += " (" + c.Prerequisite.Remediation + ")"
		}
		out += "\n"
	}
	return out
}

func (r PreflightResult) GetFailedChecks() []PreflightCheckResult {
	var out []PreflightCheckResult
	for _, c := range r.CheckResults {
		if !c.Result.Success {
			out = append(out, c)
		}
	}
	return out
}

func (r PreflightResult) GetPassedChecks() []PreflightCheckResult {
	var out []PreflightCheckResult
	for _, c := range r.CheckResults {
		if c.Result.Success {
			out = append(out, c)
		}
	}
	return out
}
