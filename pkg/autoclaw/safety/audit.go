package safety

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// AuditLog persists safety gate decisions to the central database so
// that blocked commands and quarantines can be reviewed later.
type AuditLog struct {
	db     *sql.DB
	logger *slog.Logger
}

// AuditEntry is one recorded decision.
type AuditEntry struct {
	ID         int64
	ActionType string
	Subject    string
	Allowed    bool
	Reason     string
	CreatedAt  time.Time
}

// NewAuditLog wraps the shared database handle.
func NewAuditLog(db *sql.DB, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{db: db, logger: logger.With("component", "safety_audit")}
}

// Record inserts a decision. Failures are logged, never propagated:
// auditing must not break the operation it observes.
func (a *AuditLog) Record(actionType, subject string, allowed bool, reason string) {
	allowedInt := 0
	if allowed {
		allowedInt = 1
	}
	_, err := a.db.Exec(
		`INSERT INTO audit_log (action_type, subject, allowed, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		actionType, subject, allowedInt, reason, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		a.logger.Error("failed to record audit entry", "error", err, "type", actionType)
	}
}

// Recent returns the newest entries, most recent first.
func (a *AuditLog) Recent(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(
		`SELECT id, action_type, subject, allowed, reason, created_at
		   FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var allowedInt int
		var created string
		if err := rows.Scan(&e.ID, &e.ActionType, &e.Subject, &allowedInt, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Allowed = allowedInt != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the retention window.
func (a *AuditLog) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := a.db.Exec(`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		a.logger.Debug("pruned audit entries", "count", n)
	}
	return n, nil
}
