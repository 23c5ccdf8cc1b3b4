package scheduler

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStorage persists task state in the central database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage wraps the shared database handle.
func NewSQLiteStorage(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

// SaveTask upserts a task's stored state, keyed by name so that
// registration across restarts reattaches to the same row.
func (s *SQLiteStorage) SaveTask(t *Task) error {
	var lastRun any
	if !t.LastRun.IsZero() {
		lastRun = t.LastRun.UTC().Format(time.RFC3339)
	}
	enabled := 0
	if t.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, name, description, schedule, enabled, last_run_at, last_error, run_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = excluded.name,
		     description = excluded.description,
		     schedule = excluded.schedule,
		     enabled = excluded.enabled,
		     last_run_at = excluded.last_run_at,
		     last_error = excluded.last_error,
		     run_count = excluded.run_count`,
		t.ID, t.Name, t.Description, t.Schedule, enabled, lastRun, t.LastErr, t.RunCount,
	)
	if err != nil {
		return fmt.Errorf("save task %q: %w", t.Name, err)
	}
	return nil
}

// LoadTasks returns persisted state keyed by task name.
func (s *SQLiteStorage) LoadTasks() (map[string]PersistedTask, error) {
	rows, err := s.db.Query(
		`SELECT id, name, enabled, last_run_at, last_error, run_count FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]PersistedTask)
	for rows.Next() {
		var p PersistedTask
		var enabled int
		var lastRun sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &enabled, &lastRun, &p.LastErr, &p.RunCount); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		p.Enabled = enabled != 0
		if lastRun.Valid {
			p.LastRun, _ = time.Parse(time.RFC3339, lastRun.String)
		}
		out[p.Name] = p
	}
	return out, rows.Err()
}

// DeleteTask removes a task row.
func (s *SQLiteStorage) DeleteTask(id string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %q: %w", id, err)
	}
	return nil
}
