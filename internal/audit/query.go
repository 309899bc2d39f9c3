package audit

import (
	"database/sql"
	"fmt"
	"time"
)

const selectColumns = "id, uid, timestamp, event_name, tool_name, session_id, cwd, lines, duration_ms"

// ListEvents returns hook events with optional filtering by event name.
// Results are ordered by timestamp descending (newest first).
func ListEvents(db *sql.DB, limit, offset int, filterEvent string) ([]Event, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: ListEvents called with nil db")
	}

	query := "SELECT " + selectColumns + " FROM hook_events WHERE 1=1"
	var args []any

	if filterEvent != "" {
		query += " AND event_name = ?"
		args = append(args, filterEvent)
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate event rows: %w", err)
	}

	return events, nil
}

// GetEvent returns a single hook event by ID.
func GetEvent(db *sql.DB, id int64) (*Event, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: GetEvent called with nil db")
	}

	var e Event
	var tsStr string
	err := db.QueryRow(
		"SELECT "+selectColumns+" FROM hook_events WHERE id = ?", id,
	).Scan(&e.ID, &e.UID, &tsStr, &e.EventName, &e.ToolName, &e.SessionID, &e.CWD, &e.Lines, &e.DurationMs)
	if err != nil {
		return nil, fmt.Errorf("audit: get event %d: %w", id, err)
	}

	ts, err := time.Parse(timestampLayout, tsStr)
	if err != nil {
		return nil, fmt.Errorf("audit: parse timestamp %q: %w", tsStr, err)
	}
	e.Timestamp = ts

	return &e, nil
}

// Tail returns the last n hook events, newest first.
func Tail(db *sql.DB, n int) ([]Event, error) {
	return ListEvents(db, n, 0, "")
}

// Prune deletes hook events older than the given duration.
// Returns the number of events deleted.
func Prune(db *sql.DB, olderThan time.Duration) (int64, error) {
	return PruneBefore(db, time.Now().UTC().Add(-olderThan))
}

// PruneBefore deletes hook events with a timestamp before the cutoff.
func PruneBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("audit: PruneBefore called with nil db")
	}

	result, err := db.Exec(
		"DELETE FROM hook_events WHERE timestamp < ?",
		cutoff.Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("audit: prune hook events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: prune rows affected: %w", err)
	}
	return count, nil
}

// Stats returns aggregate statistics from the audit database.
func Stats(db *sql.DB) (*AuditStats, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: Stats called with nil db")
	}

	stats := &AuditStats{
		CountByEvent: make(map[string]int64),
	}

	err := db.QueryRow("SELECT COALESCE(COUNT(*), 0), COALESCE(AVG(duration_ms), 0) FROM hook_events").
		Scan(&stats.TotalEvents, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("audit: stats totals: %w", err)
	}

	if stats.TotalEvents == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err = db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM hook_events").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("audit: stats min/max timestamp: %w", err)
	}

	oldest, err := time.Parse(timestampLayout, oldestStr)
	if err != nil {
		return nil, fmt.Errorf("audit: parse oldest timestamp %q: %w", oldestStr, err)
	}
	stats.OldestEntry = oldest

	newest, err := time.Parse(timestampLayout, newestStr)
	if err != nil {
		return nil, fmt.Errorf("audit: parse newest timestamp %q: %w", newestStr, err)
	}
	stats.NewestEntry = newest

	rows, err := db.Query("SELECT event_name, COUNT(*) FROM hook_events GROUP BY event_name")
	if err != nil {
		return nil, fmt.Errorf("audit: stats by event: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("audit: scan event count: %w", err)
		}
		stats.CountByEvent[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate event count rows: %w", err)
	}

	return stats, nil
}

// scanEvent reads one row from a SELECT over selectColumns.
func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var tsStr string
	if err := rows.Scan(&e.ID, &e.UID, &tsStr, &e.EventName, &e.ToolName, &e.SessionID, &e.CWD, &e.Lines, &e.DurationMs); err != nil {
		return Event{}, fmt.Errorf("audit: scan event row: %w", err)
	}
	ts, err := time.Parse(timestampLayout, tsStr)
	if err != nil {
		return Event{}, fmt.Errorf("audit: parse timestamp %q: %w", tsStr, err)
	}
	e.Timestamp = ts
	return e, nil
}
