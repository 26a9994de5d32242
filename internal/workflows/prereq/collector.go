package prereq

import (
	"log/slog"
	"sort"

	"maverick/internal/workflows"
	"maverick/internal/workflows/registry"
)

// Collector walks a workflow's step tree and assembles the set of
// prerequisites it (transitively) requires, grounded on
// PrerequisiteCollector.collect/_scan_steps in
// original_source/.../prerequisites/collector.py. Unknown requirement
// names are dropped with a warning rather than failing the scan —
// the source treats an unregistered prerequisite name as a workflow
// authoring mistake to flag, not a collection-time fatal error.
type Collector struct {
	prereqs *Registry
	comps   *registry.Registry
	log     *slog.Logger
}

func NewCollector(prereqs *Registry, comps *registry.Registry, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{prereqs: prereqs, comps: comps, log: log}
}

// Collect scans every step in wf (recursively through loop bodies,
// branch options, and validate on_failure handlers) and returns the
// PreflightPlan describing which prerequisites are needed, which step
// paths named them, and the order to run them in.
func (c *Collector) Collect(wf *workflows.Workflow) (*PreflightPlan, error) {
	stepReqs := make(map[string][]string)

	c.scanSteps(wf.Steps, "", stepReqs)

	needed := make(map[string]bool, len(stepReqs))
	for name := range stepReqs {
		needed[name] = true
	}

	// Pull in transitive dependencies, marking them as needed with no
	// directly-requesting step (they are needed only because something
	// else depends on them).
	for name := range stepReqs {
		deps, err := c.prereqs.GetAllDependencies(name)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !needed[d] {
				needed[d] = true
				if _, ok := stepReqs[d]; !ok {
					stepReqs[d] = nil
				}
			}
		}
	}

	order, err := c.executionOrder(needed)
	if err != nil {
		return nil, err
	}

	prereqs := make([]Prerequisite, 0, len(order))
	for _, name := range order {
		if p, ok := c.prereqs.Get(name); ok {
			prereqs = append(prereqs, p)
		}
	}

	return &PreflightPlan{
		Prerequisites:    prereqs,
		StepRequirements: stepReqs,
		ExecutionOrder:   order,
	}, nil
}

func (c *Collector) scanSteps(steps []workflows.StepRecord, parentPath string, stepReqs map[string][]string) {
	for _, step := range steps {
		path := workflows.StepPath(parentPath, step.Name)
		c.addRequires(path, step.Requires, stepReqs)

		if compReqs, err := c.comps.RequiresFor(&step); err == nil {
			c.addRequires(path, compReqs, stepReqs)
		}

		switch step.Type {
		case workflows.StepLoop:
			c.scanSteps(step.Steps, workflows.LoopIterationPath(path, 0), stepReqs)
		case workflows.StepBranch:
			for _, opt := range step.Options {
				c.scanSteps([]workflows.StepRecord{opt.Step}, path, stepReqs)
			}
		case workflows.StepValidate:
			if step.OnFailure != nil {
				c.scanSteps([]workflows.StepRecord{*step.OnFailure}, path, stepReqs)
			}
		}
	}
}

func (c *Collector) addRequires(path string, names []string, stepReqs map[string][]string) {
	for _, name := range names {
		if !c.prereqs.Has(name) {
			c.log.Warn("unknown prerequisite referenced by step", "step", path, "prerequisite", name)
			continue
		}
		stepReqs[name] = append(stepReqs[name], path)
	}
}

// executionOrder returns a single dependency-respecting order covering
// every name in needed, built by running GetAllDependencies per root
// name and merging while preserving first-seen order (stable and
// deterministic given the registry's sorted internals).
func (c *Collector) executionOrder(needed map[string]bool) ([]string, error) {
	roots := make([]string, 0, len(needed))
	for n := range needed {
		roots = append(roots, n)
	}
	sort.Strings(roots)

	seen := make(map[string]bool, len(needed))
	var order []string
	for _, root := range roots {
		deps, err := c.prereqs.GetAllDependencies(root)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				order = append(order, d)
			}
		}
		if !seen[root] {
			seen[root] = true
			order = append(order, root)
		}
	}
	return order, nil
}
