// Package checkpoint implements the Checkpoint Store interface from
// spec.md §4.8: save/load/list/delete against a durable snapshot of a
// run's step results, keyed by (workflow_name, checkpoint_id).
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// StepResultRecord is the serialized shape of one StepResult inside a
// Snapshot, per spec.md §6's checkpoint file layout. It deliberately
// does not import internal/workflows/runtime.StepResult, keeping the
// store free of a dependency on the executor package it is injected
// into.
type StepResultRecord struct {
	Name       string `json:"name"`
	StepType   string `json:"step_type"`
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Snapshot is the full durable record of a workflow run at the moment
// a checkpoint step executed.
type Snapshot struct {
	WorkflowName string              `json:"workflow_name"`
	CheckpointID string              `json:"checkpoint_id"`
	InputsHash   string              `json:"inputs_hash"`
	StepResults  []StepResultRecord  `json:"step_results"`
	SavedAt      time.Time           `json:"saved_at"`
}

// ErrInputHashMismatch is what the Executor's resume error unwraps to
// (not returned by Store itself) when a resume's inputs hash disagrees
// with the snapshot's. It lives here so callers can match it with
// errors.Is without importing the executor package.
var ErrInputHashMismatch = errors.New("checkpoint inputs_hash mismatch")

var ErrNotFound = errors.New("checkpoint not found")

// Store is the persistence boundary for checkpoints. All operations
// are context-aware to honor cancellation, Go's equivalent of the
// source's async operations.
type Store interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, workflowName, checkpointID string) (*Snapshot, error)
	ListCheckpoints(ctx context.Context, workflowName string) ([]string, error)
	// Delete removes one checkpoint when checkpointID is non-empty, or
	// every checkpoint for workflowName when it is empty.
	Delete(ctx context.Context, workflowName, checkpointID string) error
}

// HashInputs computes the hex SHA-256 of a canonicalized encoding of
// inputs (keys sorted before marshalling) so the same logical inputs
// always hash identically regardless of map iteration order.
func HashInputs(inputs map[string]any) (string, error) {
	canon, err := canonicalize(inputs)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize converts arbitrary JSON-ish values into a form whose
// json.Marshal output has a stable key order: Go already sorts
// map[string]any keys during encoding/json's struct/map marshalling,
// so this mainly exists to recurse through nested maps/slices and
// normalize them to the same concrete types a round trip would produce.
func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cv, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			cv, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return v, nil
	}
}
