package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FileStore is the default checkpoint store: one JSON file per
// (workflow, checkpoint_id) under baseDir, written with a staged
// temp-file-then-rename discipline so a crash mid-write never leaves a
// partially written snapshot observable to Load, grounded on spec.md
// §4.8 and §9's "Atomic checkpoints" design note. afero.Fs lets tests
// substitute an in-memory filesystem.
type FileStore struct {
	fs      afero.Fs
	baseDir string
}

func NewFileStore(fs afero.Fs, baseDir string) *FileStore {
	return &FileStore{fs: fs, baseDir: baseDir}
}

func (s *FileStore) workflowDir(workflowName string) string {
	return filepath.Join(s.baseDir, sanitize(workflowName))
}

func (s *FileStore) path(workflowName, checkpointID string) string {
	return filepath.Join(s.workflowDir(workflowName), sanitize(checkpointID)+".json")
}

func sanitize(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "/", "_"), "..", "_")
}

func (s *FileStore) Save(_ context.Context, snapshot Snapshot) error {
	dir := s.workflowDir(snapshot.WorkflowName)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	final := s.path(snapshot.WorkflowName, snapshot.CheckpointID)
	tmp := final + ".tmp"

	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, workflowName, checkpointID string) (*Snapshot, error) {
	raw, err := afero.ReadFile(s.fs, s.path(workflowName, checkpointID))
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	return &snap, nil
}

func (s *FileStore) ListCheckpoints(_ context.Context, workflowName string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.workflowDir(workflowName))
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Delete(_ context.Context, workflowName, checkpointID string) error {
	if checkpointID == "" {
		err := s.fs.RemoveAll(s.workflowDir(workflowName))
		if err != nil && !isNotExist(err) {
			return fmt.Errorf("checkpoint: delete all: %w", err)
		}
		return nil
	}
	err := s.fs.Remove(s.path(workflowName, checkpointID))
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
