package audit

import "time"

// Recorder records handled hook events alongside the text log.
type Recorder interface {
	RecordEvent(e Event) error
	Close() error
}

// Event is one handled hook invocation.
type Event struct {
	ID         int64
	UID        string // uuid assigned at record time if empty
	Timestamp  time.Time
	EventName  string
	ToolName   string
	SessionID  string
	CWD        string
	Lines      int // lines appended to the text log
	DurationMs int64
}

// AuditStats holds aggregate statistics from the audit database.
type AuditStats struct {
	TotalEvents   int64
	CountByEvent  map[string]int64
	AvgDurationMs float64
	OldestEntry   time.Time
	NewestEntry   time.Time
}

// Truncate truncates s to max bytes, appending "..." if truncated.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
