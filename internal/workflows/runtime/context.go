package runtime

import (
	"sync"

	"github.com/google/uuid"

	"maverick/internal/config"
)

// IterationFrame is one entry of a loop's iteration_context stack,
// carrying the `item`/`index` pair visible to the expression scope
// inside that loop body (spec.md §3).
type IterationFrame struct {
	Item  any
	Index int
}

// WorkflowContext is the mutable state of a single run: the immutable
// inputs, the append-only path-keyed results map, the nested iteration
// stack, and a read-only config handle. Per spec.md §5, the Executor's
// control task is the only writer; it appends to results only at
// StepCompleted boundaries, so WorkflowContext itself does not need
// its own locking beyond what guards concurrent loop iterations
// merging back into the parent.
type WorkflowContext struct {
	WorkflowName string
	RunID        string
	Inputs       map[string]any
	Config       *config.Config
	Env          map[string]string

	mu             sync.Mutex
	results        map[string]StepResult // keyed by full step path
	order          []string
	byName         map[string]StepResult // keyed by bare step name, latest write wins
	iterationStack []IterationFrame
}

// NewWorkflowContext starts a fresh run, minting a RunID (spec.md §3's
// run-scoped correlation identifier) via google/uuid.
func NewWorkflowContext(workflowName string, inputs map[string]any, cfg *config.Config, env map[string]string) *WorkflowContext {
	return &WorkflowContext{
		WorkflowName: workflowName,
		RunID:        uuid.NewString(),
		Inputs:       inputs,
		Config:       cfg,
		Env:          env,
		results:      make(map[string]StepResult),
		byName:       make(map[string]StepResult),
	}
}

// StepOutputs projects recorded results into the shape the agent/
// generate handlers' context builder expects: step name -> {output}.
func (c *WorkflowContext) StepOutputs() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.byName))
	for name, r := range c.byName {
		out[name] = map[string]any{"output": r.Output}
	}
	return out
}

// RecordResult appends result under path, keeping the results map
// append-only except for the byName projection, which the expression
// scope reads by bare name.
func (c *WorkflowContext) RecordResult(path string, result StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.results[path]; !exists {
		c.order = append(c.order, path)
	}
	c.results[path] = result
	c.byName[result.Name] = result
}

func (c *WorkflowContext) GetResult(path string) (StepResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[path]
	return r, ok
}

// HasResult reports whether path already has a recorded result, used
// by the Executor to skip steps already satisfied by a resumed
// checkpoint.
func (c *WorkflowContext) HasResult(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.results[path]
	return ok
}

// AllResults returns a snapshot copy of every recorded result, keyed
// by path, for building a WorkflowResult or a checkpoint snapshot.
func (c *WorkflowContext) AllResults() map[string]StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]StepResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// StepsScope builds the `steps` root the Expression Resolver sees:
// a map from bare step name to {name, step_type, success, output,
// duration_ms, error}.
func (c *WorkflowContext) StepsScope() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.byName))
	for name, r := range c.byName {
		out[name] = r.ToMap()
	}
	return out
}

// PushIteration enters a loop body iteration, making item/index visible
// to the expression scope until PopIteration is called.
func (c *WorkflowContext) PushIteration(item any, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iterationStack = append(c.iterationStack, IterationFrame{Item: item, Index: index})
}

func (c *WorkflowContext) PopIteration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.iterationStack) > 0 {
		c.iterationStack = c.iterationStack[:len(c.iterationStack)-1]
	}
}

// CurrentIteration returns the innermost loop's item/index, if any.
func (c *WorkflowContext) CurrentIteration() (item any, index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.iterationStack) == 0 {
		return nil, 0, false
	}
	top := c.iterationStack[len(c.iterationStack)-1]
	return top.Item, top.Index, true
}

// Fork produces a per-iteration child context for a parallel loop
// iteration: a shallow copy sharing Inputs/Config/Env but with its own
// results map, so concurrent iterations never write to the same
// mutation point. The caller merges the fork's AllResults back into
// the parent on the control task after the iteration completes,
// per spec.md §5.
func (c *WorkflowContext) Fork() *WorkflowContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	child := NewWorkflowContext(c.WorkflowName, c.Inputs, c.Config, c.Env)
	child.RunID = c.RunID
	for k, v := range c.byName {
		child.byName[k] = v
	}
	for k, v := range c.results {
		child.results[k] = v
	}
	child.order = append(child.order, c.order...)
	child.iterationStack = append(child.iterationStack, c.iterationStack...)
	return child
}

// Merge folds a forked child context's newly recorded results into c,
// in path order, preserving append-only semantics. Must only be called
// from the control task.
func (c *WorkflowContext) Merge(child *WorkflowContext) {
	child.mu.Lock()
	newOrder := append([]string(nil), child.order...)
	newResults := make(map[string]StepResult, len(child.results))
	for k, v := range child.results {
		newResults[k] = v
	}
	child.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, path := range newOrder {
		if _, exists := c.results[path]; exists {
			continue
		}
		r := newResults[path]
		c.results[path] = r
		c.byName[r.Name] = r
		c.order = append(c.order, path)
	}
}
