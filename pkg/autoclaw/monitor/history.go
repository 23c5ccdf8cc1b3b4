package monitor

import (
	"database/sql"
	"fmt"
	"time"
)

// History persists alerts to the central database.
type History struct {
	db *sql.DB
}

// NewHistory wraps the shared database handle.
func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

// Record inserts one alert.
func (h *History) Record(alert Alert) error {
	_, err := h.db.Exec(
		`INSERT INTO alert_history (id, type, message, severity, value, threshold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Type, alert.Message, alert.Severity,
		alert.Value, alert.Threshold, alert.Time.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

// Since returns alerts recorded after the cutoff, newest first.
func (h *History) Since(cutoff time.Time) ([]Alert, error) {
	rows, err := h.db.Query(
		`SELECT id, type, message, severity, value, threshold, created_at
		   FROM alert_history WHERE created_at >= ? ORDER BY created_at DESC`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var created string
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.Severity, &a.Value, &a.Threshold, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Time, _ = time.Parse(time.RFC3339, created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Prune deletes alerts older than the retention window.
func (h *History) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := h.db.Exec(`DELETE FROM alert_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune alert history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
