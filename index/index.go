// ABOUTME: SQLite-backed run index for fast run queries without directory scans.
// ABOUTME: Records run rows and an append-only audit event log keyed by ULID.
package index

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// RunRow is one indexed run. Stopped and ExitStatus are nil until the run
// finalizes; a row with either nil is an incomplete run.
type RunRow struct {
	RunID      string
	OpRef      string
	Started    int64
	Stopped    *int64
	ExitStatus *int64
}

// Completed reports whether the indexed run finalized.
func (r RunRow) Completed() bool {
	return r.Stopped != nil && r.ExitStatus != nil
}

// AuditEvent is one append-only audit log entry for a run.
type AuditEvent struct {
	EventID string
	RunID   string
	Event   string
	Time    int64
}

// ErrNotFound is returned when a run id is not in the index.
var ErrNotFound = errors.New("run not found in index")

// Index is a SQLite-backed mirror of run metadata. The run directories
// remain the source of truth; the index is a queryable cache maintained by
// the CLI around orchestrated runs.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index database at the given path and ensures
// the schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			opref TEXT NOT NULL,
			started INTEGER NOT NULL,
			stopped INTEGER,
			exit_status INTEGER
		);

		CREATE TABLE IF NOT EXISTS audit_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			event TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// RecordStarted upserts a run row at run start and appends a run_started
// audit event.
func (ix *Index) RecordStarted(runID, opRef string, started int64) error {
	_, err := ix.db.Exec(
		`INSERT INTO runs (run_id, opref, started)
		 VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			opref = excluded.opref,
			started = excluded.started`,
		runID, opRef, started,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", runID, err)
	}
	return ix.appendEvent(runID, "run_started", started)
}

// RecordStopped finalizes a run row and appends a run_stopped audit event.
func (ix *Index) RecordStopped(runID string, stopped int64, exitStatus int) error {
	res, err := ix.db.Exec(
		`UPDATE runs SET stopped = ?, exit_status = ? WHERE run_id = ?`,
		stopped, exitStatus, runID,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finalize run %s: %w", runID, ErrNotFound)
	}
	return ix.appendEvent(runID, "run_stopped", stopped)
}

func (ix *Index) appendEvent(runID, event string, ts int64) error {
	_, err := ix.db.Exec(
		`INSERT INTO audit_events (event_id, run_id, event, ts) VALUES (?, ?, ?, ?)`,
		ulid.Make().String(), runID, event, ts,
	)
	if err != nil {
		return fmt.Errorf("append audit event %s for run %s: %w", event, runID, err)
	}
	return nil
}

// List returns every indexed run, most recently started first.
func (ix *Index) List() ([]RunRow, error) {
	rows, err := ix.db.Query(
		`SELECT run_id, opref, started, stopped, exit_status
		 FROM runs ORDER BY started DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []RunRow
	for rows.Next() {
		row, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return result, nil
}

// Get returns a single indexed run, or ErrNotFound.
func (ix *Index) Get(runID string) (RunRow, error) {
	rows, err := ix.db.Query(
		`SELECT run_id, opref, started, stopped, exit_status
		 FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return RunRow{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return RunRow{}, fmt.Errorf("get run %s: %w", runID, ErrNotFound)
	}
	return scanRun(rows)
}

// Events returns the audit events for a run in insertion (ULID) order.
func (ix *Index) Events(runID string) ([]AuditEvent, error) {
	rows, err := ix.db.Query(
		`SELECT event_id, run_id, event, ts
		 FROM audit_events WHERE run_id = ? ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list audit events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.Event, &ev.Time); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events for run %s: %w", runID, err)
	}
	return events, nil
}

func scanRun(rows *sql.Rows) (RunRow, error) {
	var row RunRow
	var stopped, exitStatus sql.NullInt64
	if err := rows.Scan(&row.RunID, &row.OpRef, &row.Started, &stopped, &exitStatus); err != nil {
		return RunRow{}, fmt.Errorf("scan run row: %w", err)
	}
	if stopped.Valid {
		row.Stopped = &stopped.Int64
	}
	if exitStatus.Valid {
		row.ExitStatus = &exitStatus.Int64
	}
	return row, nil
}
