package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// auditColumns is the column order shared by the insert and select
// statements. scanAuditEvent must match it.
const auditColumns = "plan_id, run_id, task_id, role, status, output_json, error_text, started_at, finished_at"

const auditSchema = `
CREATE TABLE IF NOT EXISTS orchestrator_audit_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id     TEXT NOT NULL,
	run_id      TEXT,
	task_id     TEXT,
	role        TEXT,
	status      TEXT NOT NULL,
	output_json TEXT,
	error_text  TEXT,
	started_at  TIMESTAMP,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orchestrator_audit_plan ON orchestrator_audit_events(plan_id);
CREATE INDEX IF NOT EXISTS idx_orchestrator_audit_run ON orchestrator_audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_orchestrator_audit_status ON orchestrator_audit_events(status);
`

// SQLiteAuditStore persists audit events in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore creates a SQLite-backed audit store over an existing
// handle and ensures the schema.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

// OpenSQLiteAuditStore opens the database file at path and returns a store
// owning the handle. Close releases it. The handle is pinged so a bad path
// fails here rather than on the first Record.
func OpenSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	output, err := auditOutputJSON(event.Output)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO orchestrator_audit_events ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		event.PlanID, event.RunID, event.TaskID, event.Role, event.Status,
		output, event.Error,
		storedTime(event.StartedAt), storedTime(event.FinishedAt),
	)
	return err
}

// List returns audit events matching the filter.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := "SELECT " + auditColumns + " FROM orchestrator_audit_events"
	conds, args := filter.sqlConditions()
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// sqlConditions renders the filter's set fields as WHERE clauses with
// matching placeholder args.
func (f AuditFilter) sqlConditions() ([]string, []any) {
	var conds []string
	var args []any
	add := func(clause, value string) {
		if value != "" {
			conds = append(conds, clause)
			args = append(args, value)
		}
	}
	add("plan_id = ?", f.PlanID)
	add("run_id = ?", f.RunID)
	add("task_id = ?", f.TaskID)
	add("status = ?", f.Status)
	return conds, args
}

func scanAuditEvent(rows *sql.Rows) (AuditEvent, error) {
	var (
		event      AuditEvent
		outputJSON string
		started    sql.NullTime
		finished   sql.NullTime
	)
	dest := []any{
		&event.PlanID, &event.RunID, &event.TaskID, &event.Role, &event.Status,
		&outputJSON, &event.Error, &started, &finished,
	}
	if err := rows.Scan(dest...); err != nil {
		return AuditEvent{}, err
	}
	if outputJSON != "" {
		var out any
		if err := json.Unmarshal([]byte(outputJSON), &out); err == nil {
			event.Output = out
		}
	}
	if started.Valid {
		event.StartedAt = started.Time
	}
	if finished.Valid {
		event.FinishedAt = finished.Time
	}
	return event, nil
}

// auditOutputJSON renders the output payload for the output_json column.
// A nil payload becomes the literal null rather than the empty string, so
// a recorded "no output" survives the round trip.
func auditOutputJSON(output any) (string, error) {
	if output == nil {
		return "null", nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// storedTime strips the zone to UTC before a timestamp reaches the
// driver. Zero times pass through untouched.
func storedTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(time.UTC)
}
