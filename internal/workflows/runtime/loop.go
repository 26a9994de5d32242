package runtime

import (
	"context"
	"fmt"
	"sync"

	"maverick/internal/eventbus"
	"maverick/internal/workflows"
)

// iterationOutcome is one loop iteration's summary, collected into the
// loop step's aggregate Output in iteration-index order.
type iterationOutcome struct {
	Index   int            `json:"index"`
	Success bool           `json:"success"`
	Output  any            `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (e *Executor) execLoop(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus) (any, map[string]any, error) {
	maxIter := step.MaxIterations
	if maxIter <= 0 {
		maxIter = workflows.DefaultMaxIterations
	}

	if step.Over != "" {
		return e.execLoopOver(ctx, step, path, wfctx, bus, maxIter)
	}
	return e.execLoopUntil(ctx, step, path, wfctx, bus, maxIter)
}

func (e *Executor) execLoopOver(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, maxIter int) (any, map[string]any, error) {
	scope := e.baseScope(wfctx)
	itemsVal, err := e.evalExpr(step.Over, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("loop %q: resolve over: %w", path, err)
	}
	items, ok := itemsVal.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("loop %q: `over` did not evaluate to a collection (got %T)", path, itemsVal)
	}
	n := len(items)
	if n > maxIter {
		n = maxIter
	}
	if n == 0 {
		return []any{}, nil, nil
	}

	if step.Parallel && n > 1 {
		return e.execLoopOverParallel(ctx, step, path, wfctx, bus, items[:n])
	}
	return e.execLoopOverSequential(ctx, step, path, wfctx, bus, items[:n])
}

func (e *Executor) execLoopOverSequential(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, items []any) (any, map[string]any, error) {
	outcomes := make([]any, 0, len(items))
	for index, item := range items {
		iterPath := workflows.LoopIterationPath(path, index)
		bus.Emit(EventLoopIterationStarted, iterPath, map[string]any{"index": index})

		wfctx.PushIteration(item, index)
		output, iterErr := e.runLoopBody(ctx, step.Steps, iterPath, wfctx, bus)
		wfctx.PopIteration()

		outcome := iterationOutcome{Index: index, Success: iterErr == nil, Output: output}
		if iterErr != nil {
			outcome.Error = iterErr.Error()
		}
		outcomes = append(outcomes, outcome)
		bus.Emit(EventLoopIterationCompleted, iterPath, map[string]any{"index": index, "success": outcome.Success})

		if iterErr != nil && !step.ContinueOnError {
			return outcomes, nil, fmt.Errorf("loop %q: %w", path, &LoopStepExecutionError{LoopPath: path, Index: index, Cause: iterErr})
		}
	}
	return outcomes, nil, nil
}

func (e *Executor) execLoopOverParallel(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, items []any) (any, map[string]any, error) {
	maxConcurrent := step.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = len(items)
	}
	sem := make(chan struct{}, maxConcurrent)

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type rawResult struct {
		index  int
		output any
		err    error
		child  *WorkflowContext
	}
	results := make([]rawResult, len(items))
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for idx, item := range items {
		index, item := idx, item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			iterPath := workflows.LoopIterationPath(path, index)
			bus.Emit(EventLoopIterationStarted, iterPath, map[string]any{"index": index})

			child := wfctx.Fork()
			child.PushIteration(item, index)
			output, err := e.runLoopBody(innerCtx, step.Steps, iterPath, child, bus)

			mu.Lock()
			results[index] = rawResult{index: index, output: output, err: err, child: child}
			if err != nil && !step.ContinueOnError && firstErr == nil {
				firstErr = &LoopStepExecutionError{LoopPath: path, Index: index, Cause: err}
				cancel()
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	outcomes := make([]any, len(results))
	for _, r := range results {
		wfctx.Merge(r.child)
		outcome := iterationOutcome{Index: r.index, Success: r.err == nil, Output: r.output}
		if r.err != nil {
			outcome.Error = r.err.Error()
		}
		outcomes[r.index] = outcome
		iterPath := workflows.LoopIterationPath(path, r.index)
		bus.Emit(EventLoopIterationCompleted, iterPath, map[string]any{"index": r.index, "success": r.err == nil})
	}

	if firstErr != nil {
		return outcomes, nil, fmt.Errorf("loop %q: %w", path, firstErr)
	}
	return outcomes, nil, nil
}

func (e *Executor) execLoopUntil(ctx context.Context, step *workflows.StepRecord, path string, wfctx *WorkflowContext, bus *eventbus.Bus, maxIter int) (any, map[string]any, error) {
	outcomes := make([]any, 0)
	for index := 0; index < maxIter; index++ {
		iterPath := workflows.LoopIterationPath(path, index)
		bus.Emit(EventLoopIterationStarted, iterPath, map[string]any{"index": index})

		wfctx.PushIteration(nil, index)
		output, iterErr := e.runLoopBody(ctx, step.Steps, iterPath, wfctx, bus)
		wfctx.PopIteration()

		outcome := iterationOutcome{Index: index, Success: iterErr == nil, Output: output}
		if iterErr != nil {
			outcome.Error = iterErr.Error()
		}
		outcomes = append(outcomes, outcome)
		bus.Emit(EventLoopIterationCompleted, iterPath, map[string]any{"index": index, "success": outcome.Success})

		if iterErr != nil && !step.ContinueOnError {
			return outcomes, nil, fmt.Errorf("loop %q: %w", path, &LoopStepExecutionError{LoopPath: path, Index: index, Cause: iterErr})
		}

		scope := e.baseScope(wfctx)
		truthy, err := e.evalTruthy(step.Until, scope)
		bus.Emit(EventLoopConditionChecked, iterPath, map[string]any{"index": index, "result": truthy})
		if err != nil {
			return outcomes, nil, fmt.Errorf("loop %q: resolve until: %w", path, err)
		}
		if truthy {
			break
		}
	}
	return outcomes, nil, nil
}

// runLoopBody executes step.Steps in order under iterPath, returning
// the last executed step's output and the first encountered error.
func (e *Executor) runLoopBody(ctx context.Context, steps []workflows.StepRecord, iterPath string, wfctx *WorkflowContext, bus *eventbus.Bus) (any, error) {
	var lastOutput any
	for i := range steps {
		body := &steps[i]
		result, err := e.executeStep(ctx, body, iterPath, wfctx, bus)
		if err != nil {
			return lastOutput, err
		}
		lastOutput = result.Output
	}
	return lastOutput, nil
}

