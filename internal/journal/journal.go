// Package journal keeps a durable sqlite record of provisioning runs and
// their step outcomes, so an interrupted run can be inspected and resumed.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultPath is the default journal location
const DefaultPath = "/var/lib/zinstall/journal.db"

// Run statuses
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Step statuses
const (
	StepOK      = "ok"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// Journal wraps the sqlite connection
type Journal struct {
	conn *sql.DB
	path string
}

// Run represents one pipeline execution
type Run struct {
	ID         string
	PoolName   string
	PoolType   string
	Drives     []string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StepRecord represents a single step outcome within a run
type StepRecord struct {
	ID        int64
	RunID     string
	Step      string
	Status    string
	Detail    string
	Timestamp time.Time
}

// Open opens or creates the journal database at the given path
func Open(path string) (*Journal, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}

	j := &Journal{conn: conn, path: path}

	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

// Close closes the journal connection
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) migrate() error {
	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := j.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1 = `
-- One row per pipeline execution
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    pool_name TEXT NOT NULL,
    pool_type TEXT NOT NULL,
    drives_json TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Step outcomes within a run
CREATE TABLE IF NOT EXISTS steps (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    step TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
CREATE INDEX IF NOT EXISTS idx_steps_time ON steps(timestamp);
`

// StartRun records the beginning of a pipeline execution and returns its id.
// Drive identifiers go in as json; secrets never reach the journal.
func (j *Journal) StartRun(poolName, poolType string, drives []string) (string, error) {
	id := uuid.NewString()

	drivesJSON, err := json.Marshal(drives)
	if err != nil {
		return "", fmt.Errorf("failed to marshal drives: %w", err)
	}

	_, err = j.conn.Exec(`
		INSERT INTO runs (id, pool_name, pool_type, drives_json)
		VALUES (?, ?, ?, ?)
	`, id, poolName, poolType, string(drivesJSON))
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	return id, nil
}

// FinishRun marks a run complete or failed
func (j *Journal) FinishRun(runID, status string) error {
	_, err := j.conn.Exec(`
		UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecordStep logs a step outcome within a run
func (j *Journal) RecordStep(runID, step, status, detail string) error {
	_, err := j.conn.Exec(`
		INSERT INTO steps (run_id, step, status, detail)
		VALUES (?, ?, ?, ?)
	`, runID, step, status, detail)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// GetRun returns a run by id, or nil if not found
func (j *Journal) GetRun(runID string) (*Run, error) {
	row := j.conn.QueryRow(`
		SELECT id, pool_name, pool_type, drives_json, status, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID)

	var r Run
	var drivesJSON string
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.PoolName, &r.PoolType, &drivesJSON, &r.Status, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if err := json.Unmarshal([]byte(drivesJSON), &r.Drives); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drives: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}

	return &r, nil
}

// GetSteps returns the step records for a run, oldest first
func (j *Journal) GetSteps(runID string) ([]*StepRecord, error) {
	rows, err := j.conn.Query(`
		SELECT id, run_id, step, status, detail, timestamp
		FROM steps
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		var s StepRecord
		if err := rows.Scan(&s.ID, &s.RunID, &s.Step, &s.Status, &s.Detail, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, &s)
	}

	return steps, rows.Err()
}
