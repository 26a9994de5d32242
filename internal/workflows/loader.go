package workflows

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// WorkflowFile is one loaded-and-parsed workflow source file.
type WorkflowFile struct {
	FilePath   string
	Definition *Workflow
	Checksum   string
}

// LoadError records a single file's load failure without aborting the
// rest of a directory scan.
type LoadError struct {
	FilePath string
	Err      error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.FilePath, e.Err)
}

// LoadResult aggregates a directory scan, grounded on the teacher's
// loader.go LoadAll/LoadResult shape.
type LoadResult struct {
	Workflows  []*WorkflowFile
	Errors     []LoadError
	TotalFiles int
}

// Loader reads workflow YAML files from an afero filesystem, so callers
// can swap in an in-memory FS for tests without touching disk.
type Loader struct {
	fs  afero.Fs
	dir string
}

func NewLoader(fs afero.Fs, dir string) *Loader {
	return &Loader{fs: fs, dir: dir}
}

// LoadAll globs every "*.workflow.yaml"/"*.workflow.yml" file under the
// loader's directory and parses each independently; a single malformed
// file is recorded in LoadResult.Errors rather than aborting the scan.
func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{}

	entries, err := afero.Glob(l.fs, filepath.Join(l.dir, "*.workflow.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob workflows: %w", err)
	}
	ymlEntries, err := afero.Glob(l.fs, filepath.Join(l.dir, "*.workflow.yml"))
	if err != nil {
		return nil, fmt.Errorf("glob workflows: %w", err)
	}
	entries = append(entries, ymlEntries...)

	result.TotalFiles = len(entries)
	for _, path := range entries {
		wf, err := l.LoadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{FilePath: path, Err: err})
			continue
		}
		result.Workflows = append(result.Workflows, wf)
	}
	return result, nil
}

// LoadFile reads and parses a single workflow file, defaulting its name
// from the filename when the YAML omits one, then validates its shape.
func (l *Loader) LoadFile(path string) (*WorkflowFile, error) {
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var def Workflow
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if def.Name == "" {
		def.Name = defaultNameFromPath(path)
	}

	if err := def.ValidateShape(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)
	return &WorkflowFile{
		FilePath:   path,
		Definition: &def,
		Checksum:   hex.EncodeToString(sum[:]),
	}, nil
}

func defaultNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".yaml")
	base = strings.TrimSuffix(base, ".yml")
	base = strings.TrimSuffix(base, ".workflow")
	return base
}
