package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02T15:04:05.000"

// SQLiteRecorder implements Recorder using a local SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS hook_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    uid         TEXT    NOT NULL,
    timestamp   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f','now')),
    event_name  TEXT    NOT NULL,
    tool_name   TEXT    NOT NULL DEFAULT '',
    session_id  TEXT    NOT NULL DEFAULT '',
    lines       INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON hook_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_name ON hook_events(event_name);
`

// DefaultDBPath returns the default audit database path.
// It checks $HOOKLOG_AUDIT_DB, then $XDG_DATA_HOME/hooklog/audit.db,
// then falls back to ~/.local/share/hooklog/audit.db.
func DefaultDBPath() string {
	if p := os.Getenv("HOOKLOG_AUDIT_DB"); p != "" {
		return p
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "hooklog", "audit.db")
}

// Open opens (or creates) a SQLite audit database at the given path.
// It runs the schema migration and configures WAL mode with a 5-second
// busy timeout.
func Open(dbPath string) (*SQLiteRecorder, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open database %q: %w", dbPath, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			closeErr := db.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("audit: %s: %w (also failed to close: %v)", pragma, err, closeErr)
			}
			return nil, fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("audit: create schema: %w (also failed to close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("audit: migrate: %w (also failed to close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// migrate applies incremental schema migrations using PRAGMA user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version == 0 {
		exists, err := columnExists(db, "hook_events", "cwd")
		if err != nil {
			return fmt.Errorf("check cwd column: %w", err)
		}
		if !exists {
			if _, err := db.Exec("ALTER TABLE hook_events ADD COLUMN cwd TEXT NOT NULL DEFAULT ''"); err != nil {
				return fmt.Errorf("add cwd column: %w", err)
			}
		}
		if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
			return fmt.Errorf("set user_version to 1: %w", err)
		}
	}

	// version >= 1: schema is current, nothing to do.
	return nil
}

// columnExists checks whether a column exists in the given table.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue *string
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// DB returns the underlying *sql.DB for use with query helpers.
// Returns nil if the receiver is nil.
func (r *SQLiteRecorder) DB() *sql.DB {
	if r == nil {
		return nil
	}
	return r.db
}

// RecordEvent inserts one handled hook event. A missing UID is assigned
// here. Nil receiver is a no-op.
func (r *SQLiteRecorder) RecordEvent(e Event) error {
	if r == nil {
		return nil
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	uid := e.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO hook_events (uid, timestamp, event_name, tool_name, session_id, cwd, lines, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uid,
		ts.Format(timestampLayout),
		e.EventName,
		e.ToolName,
		e.SessionID,
		e.CWD,
		e.Lines,
		e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("audit: insert hook_event: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
// Nil receiver is a no-op.
func (r *SQLiteRecorder) Close() error {
	if r == nil {
		return nil
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("audit: close database: %w", err)
	}
	return nil
}
