package db

import (
	"database/sql"
	"fmt"
)

// RemediationEvent represents a row in the remediation_events audit table.
type RemediationEvent struct {
	ID        int
	Key       string
	Event     string
	Phase     string
	Attempt   int
	Detail    string
	Timestamp string
}

// ValidationCheck represents a row in the validation_checks table.
type ValidationCheck struct {
	ID         int
	Key        string
	CheckName  string
	Passed     bool
	ExitCode   int
	DurationMs int
	Summary    string
	Timestamp  string
}

// LogEvent inserts an audit event for a remediation record.
func (d *DB) LogEvent(key string, event string, phase string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO remediation_events (key, event, phase, attempt, detail) VALUES (?, ?, ?, ?, ?)`,
		key, event, phase, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log remediation event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail for a key, newest first.
func (d *DB) ListEvents(key string, limit int) ([]RemediationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT id, key, event, phase, attempt, detail, timestamp
		 FROM remediation_events WHERE key = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list remediation events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns the most recent audit events across all keys.
func (d *DB) RecentEvents(limit int) ([]RemediationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT id, key, event, phase, attempt, detail, timestamp
		 FROM remediation_events ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent remediation events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]RemediationEvent, error) {
	var events []RemediationEvent
	for rows.Next() {
		var e RemediationEvent
		var phase, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Key, &e.Event, &phase, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan remediation event: %w", err)
		}
		e.Phase = phase.String
		e.Attempt = int(attempt.Int64)
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogValidationCheck inserts a validation check result.
func (d *DB) LogValidationCheck(key string, checkName string, passed bool, exitCode int, durationMs int, summary string) error {
	_, err := d.conn.Exec(
		`INSERT INTO validation_checks (key, check_name, passed, exit_code, duration_ms, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		key, checkName, passed, exitCode, durationMs, summary,
	)
	if err != nil {
		return fmt.Errorf("log validation check: %w", err)
	}
	return nil
}

// ListValidationChecks returns the validation check rows for a key.
func (d *DB) ListValidationChecks(key string) ([]ValidationCheck, error) {
	rows, err := d.conn.Query(
		`SELECT id, key, check_name, passed, exit_code, duration_ms, summary, timestamp
		 FROM validation_checks WHERE key = ? ORDER BY id`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("list validation checks: %w", err)
	}
	defer rows.Close()

	var checks []ValidationCheck
	for rows.Next() {
		var c ValidationCheck
		var exitCode, durationMs sql.NullInt64
		var summary sql.NullString
		if err := rows.Scan(&c.ID, &c.Key, &c.CheckName, &c.Passed, &exitCode, &durationMs, &summary, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan validation check: %w", err)
		}
		c.ExitCode = int(exitCode.Int64)
		c.DurationMs = int(durationMs.Int64)
		c.Summary = summary.String
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
