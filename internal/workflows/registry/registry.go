// Package registry implements the Component Registry of spec.md §4.2:
// a multi-kind, name-addressed catalog partitioned into five
// sub-registries (actions, agents, generators, context builders,
// workflows), each write-once per run. Grounded on the teacher's
// ExecutorRegistry (internal/workflows/runtime/executor.go) for the
// register/lookup shape, generalized with Go generics so the five
// kinds share one implementation instead of five hand-duplicated maps.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"maverick/internal/workflows"
)

var ErrDuplicateComponent = errors.New("component already registered")

// ReferenceResolutionError is raised by Get when name is not registered
// for that kind; it carries the sorted, possibly truncated list of
// known names per spec.md §4.2.
type ReferenceResolutionError struct {
	Kind      string
	Name      string
	Available []string
}

func (e *ReferenceResolutionError) Error() string {
	avail := e.Available
	truncated := false
	const maxListed = 20
	if len(avail) > maxListed {
		avail = avail[:maxListed]
		truncated = true
	}
	if truncated {
		return fmt.Sprintf("unknown %s %q (known: %v, ... %d more)", e.Kind, e.Name, avail, len(e.Available)-maxListed)
	}
	return fmt.Sprintf("unknown %s %q (known: %v)", e.Kind, e.Name, avail)
}

// Action is the free-signature callable a "python" step invokes.
// kwargs carries the resolved step inputs.
type Action func(ctx context.Context, kwargs map[string]any) (any, error)

// Agent is a stateful component satisfying an "execute(context) →
// output" contract, with a declared tool-capability list.
type Agent interface {
	Execute(ctx context.Context, input any) (any, error)
	Tools() []string
}

// Generator is a stateful component satisfying a "generate(context) →
// text" contract.
type Generator interface {
	Generate(ctx context.Context, input any) (string, error)
}

// ContextBuilder is a pure binary function: (inputs, step results) →
// context value, used by the agent/generate handlers' `context_builder`
// indirection (spec.md §9, replacing the source's `_context_builder`
// reserved key with an explicit step field).
type ContextBuilder func(inputs map[string]any, stepResults map[string]any) (any, error)

type entry[T any] struct {
	value    T
	requires []string
}

type subRegistry[T any] struct {
	kind    string
	entries map[string]entry[T]
}

func newSubRegistry[T any](kind string) *subRegistry[T] {
	return &subRegistry[T]{kind: kind, entries: make(map[string]entry[T])}
}

// Register adds a component under name, failing if the name is already
// taken within this kind (spec.md §4.2: "fails with DuplicateComponentError
// when name already exists in that kind").
func (r *subRegistry[T]) Register(name string, value T, requires ...string) error {
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s %q", ErrDuplicateComponent, r.kind, name)
	}
	r.entries[name] = entry[T]{value: value, requires: requires}
	return nil
}

func (r *subRegistry[T]) Get(name string) (T, error) {
	if e, ok := r.entries[name]; ok {
		return e.value, nil
	}
	var zero T
	return zero, &ReferenceResolutionError{Kind: r.kind, Name: name, Available: r.ListNames()}
}

func (r *subRegistry[T]) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

func (r *subRegistry[T]) ListNames() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *subRegistry[T]) GetRequires(name string) ([]string, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, &ReferenceResolutionError{Kind: r.kind, Name: name, Available: r.ListNames()}
	}
	return e.requires, nil
}

// Registry is the frozen-at-execution-start catalog the Executor reads
// from. Construction happens entirely before a run starts; thread
// safety for concurrent construction is the caller's responsibility
// per spec.md §4.2.
type Registry struct {
	Actions         *subRegistry[Action]
	Agents          *subRegistry[Agent]
	Generators      *subRegistry[Generator]
	ContextBuilders *subRegistry[ContextBuilder]
	Workflows       *subRegistry[*workflows.Workflow]
}

func New() *Registry {
	return &Registry{
		Actions:         newSubRegistry[Action]("action"),
		Agents:          newSubRegistry[Agent]("agent"),
		Generators:      newSubRegistry[Generator]("generator"),
		ContextBuilders: newSubRegistry[ContextBuilder]("context_builder"),
		Workflows:       newSubRegistry[*workflows.Workflow]("workflow"),
	}
}

// RequiresFor returns the component-level prerequisite names for the
// component a step of the given kind references, per spec.md §4.4's
// rule that validate/checkpoint/branch/loop/schedule contribute no
// component prerequisites of their own (only their nested steps do).
func (r *Registry) RequiresFor(step *workflows.StepRecord) ([]string, error) {
	switch step.Type {
	case workflows.StepPython:
		if step.Action == "" || !r.Actions.Has(step.Action) {
			return nil, nil
		}
		return r.Actions.GetRequires(step.Action)
	case workflows.StepAgent:
		if step.Agent == "" || !r.Agents.Has(step.Agent) {
			return nil, nil
		}
		return r.Agents.GetRequires(step.Agent)
	case workflows.StepGenerate:
		if step.Generator == "" || !r.Generators.Has(step.Generator) {
			return nil, nil
		}
		return r.Generators.GetRequires(step.Generator)
	default:
		return nil, nil
	}
}
