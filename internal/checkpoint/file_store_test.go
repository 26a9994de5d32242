package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Checkpoint round-trip (spec.md §8 invariant): load(save(snapshot))
// must equal snapshot, structurally.
func TestFileStore_SaveLoad_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/checkpoints")

	snap := Snapshot{
		WorkflowName: "demo",
		CheckpointID: "c1",
		InputsHash:   "abc123",
		StepResults: []StepResultRecord{
			{Name: "p1", StepType: "python", Success: true, Output: "v1", DurationMS: 12},
		},
		SavedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background(), "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, snap, *loaded)
}

func TestFileStore_Load_NotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/checkpoints")

	_, err := store.Load(context.Background(), "demo", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Save_NeverLeavesTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/checkpoints")

	require.NoError(t, store.Save(context.Background(), Snapshot{WorkflowName: "demo", CheckpointID: "c1"}))

	entries, err := afero.ReadDir(fs, store.workflowDir("demo"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1.json", entries[0].Name())
}

func TestFileStore_ListCheckpoints_SortedAndEmptyWhenMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/checkpoints")

	ids, err := store.ListCheckpoints(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save(context.Background(), Snapshot{WorkflowName: "demo", CheckpointID: "b"}))
	require.NoError(t, store.Save(context.Background(), Snapshot{WorkflowName: "demo", CheckpointID: "a"}))

	ids, err = store.ListCheckpoints(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileStore_Delete_SingleAndAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/checkpoints")

	require.NoError(t, store.Save(context.Background(), Snapshot{WorkflowName: "demo", CheckpointID: "a"}))
	require.NoError(t, store.Save(context.Background(), Snapshot{WorkflowName: "demo", CheckpointID: "b"}))

	require.NoError(t, store.Delete(context.Background(), "demo", "a"))
	ids, err := store.ListCheckpoints(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	require.NoError(t, store.Delete(context.Background(), "demo", ""))
	ids, err = store.ListCheckpoints(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHashInputs_OrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": "z"}
	b := map[string]any{"y": "z", "x": 1}

	ha, err := HashInputs(a)
	require.NoError(t, err)
	hb, err := HashInputs(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
