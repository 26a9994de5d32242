package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the alternate CheckpointStore backend (SPEC_FULL.md
// §11's domain stack wiring for the teacher's goose+modernc.org/sqlite
// pair, which the teacher's go.mod carries but no teacher file actually
// drives). A single table keyed by (workflow_name, checkpoint_id) holds
// the same fields the file-backed store writes per-file; the staged
// write discipline of spec.md §9 is provided here by SQLite's own
// transaction atomicity rather than temp-file-then-rename.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite database at dsn
// and applies pending goose migrations before returning.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("checkpoint: goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(ctx context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot.StepResults)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal step_results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_name, checkpoint_id, inputs_hash, step_results, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workflow_name, checkpoint_id) DO UPDATE SET
			inputs_hash = excluded.inputs_hash,
			step_results = excluded.step_results,
			saved_at = excluded.saved_at
	`, snapshot.WorkflowName, snapshot.CheckpointID, snapshot.InputsHash, string(raw), snapshot.SavedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("checkpoint: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, workflowName, checkpointID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT inputs_hash, step_results, saved_at FROM checkpoints
		WHERE workflow_name = ? AND checkpoint_id = ?
	`, workflowName, checkpointID)

	var inputsHash, stepResultsRaw, savedAtRaw string
	if err := row.Scan(&inputsHash, &stepResultsRaw, &savedAtRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint: scan: %w", err)
	}

	var results []StepResultRecord
	if err := json.Unmarshal([]byte(stepResultsRaw), &results); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal step_results: %w", err)
	}
	savedAt, err := time.Parse(time.RFC3339, savedAtRaw)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: parse saved_at: %w", err)
	}

	return &Snapshot{
		WorkflowName: workflowName,
		CheckpointID: checkpointID,
		InputsHash:   inputsHash,
		StepResults:  results,
		SavedAt:      savedAt,
	}, nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, workflowName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id FROM checkpoints WHERE workflow_name = ? ORDER BY checkpoint_id
	`, workflowName)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("checkpoint: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, workflowName, checkpointID string) error {
	if checkpointID == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE workflow_name = ?`, workflowName)
		if err != nil {
			return fmt.Errorf("checkpoint: delete all: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE workflow_name = ? AND checkpoint_id = ?
	`, workflowName, checkpointID)
	if err != nil {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}
