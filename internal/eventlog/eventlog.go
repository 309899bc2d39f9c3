// Package eventlog implements the hook event logger: it classifies one
// hook payload and appends a timestamped, human-readable entry to the
// shared append-only log file.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"hooklog/internal/gitmeta"
	"hooklog/internal/hook"
)

// Default log location, relative to the working directory. The original
// hook scripts hard-coded this path; here it is configuration with these
// as defaults so tests can point the logger at a temp dir.
const (
	DefaultDir  = "logs"
	DefaultFile = "copilot-hooks.log"
)

// promptPreviewLen is the display budget for prompt previews.
// The full prompt is still recoverable from the payload line.
const promptPreviewLen = 80

// Config locates the log file.
type Config struct {
	Dir  string `yaml:"dir,omitempty"`
	File string `yaml:"file,omitempty"`
}

// Path returns the log file path, applying defaults for empty fields.
func (c Config) Path() string {
	dir := c.Dir
	if dir == "" {
		dir = DefaultDir
	}
	file := c.File
	if file == "" {
		file = DefaultFile
	}
	return filepath.Join(dir, file)
}

// Summary describes what one invocation appended, for the audit store.
type Summary struct {
	EventName string
	ToolName  string
	SessionID string
	CWD       string
	Lines     int
}

// Logger appends hook event entries to the log file.
type Logger struct {
	path string
	now  func() time.Time
	meta gitmeta.Collector
	log  *slog.Logger
}

// New builds a Logger for the given config. The clock and metadata
// collector default to the real ones; tests override via the setters.
func New(cfg Config, logger *slog.Logger) *Logger {
	return &Logger{
		path: cfg.Path(),
		now:  time.Now,
		meta: gitmeta.Collect,
		log:  logger,
	}
}

// WithClock replaces the timestamp source. Returns the receiver.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// WithCollector replaces the git metadata collector. Returns the receiver.
func (l *Logger) WithCollector(c gitmeta.Collector) *Logger {
	l.meta = c
	return l
}

// Handle processes one raw hook payload: classify, append the primary
// line, append git metadata lines for SessionStart, then append the
// verbatim payload line. Malformed input degrades the entry but is never
// an error; only filesystem faults are.
func (l *Logger) Handle(ctx context.Context, raw []byte) (Summary, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Summary{}, fmt.Errorf("eventlog: create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("eventlog: open %s: %w", l.path, err)
	}
	defer func() { _ = f.Close() }()

	inp := hook.Parse(raw)
	ts := l.now().Format("2006-01-02 15:04:05")

	sum := Summary{
		EventName: inp.HookEventName,
		ToolName:  inp.ToolName,
		SessionID: inp.SessionID,
		CWD:       inp.CWD,
	}

	if err := l.appendLine(f, ts, message(inp), &sum); err != nil {
		return sum, err
	}

	if inp.HookEventName == hook.EventSessionStart {
		info := l.meta(ctx, inp.CWD)
		l.log.Debug("repo metadata",
			"branch", info.Branch,
			"remote", info.RemoteURL,
			"identity", info.Identity())
		if info.Branch != "" {
			if err := l.appendLine(f, ts, "git branch: "+info.Branch, &sum); err != nil {
				return sum, err
			}
		}
		if info.RemoteURL != "" {
			if err := l.appendLine(f, ts, "git remote: "+info.RemoteURL, &sum); err != nil {
				return sum, err
			}
		}
		if id := info.Identity(); id != "" {
			if err := l.appendLine(f, ts, "git user: "+id, &sum); err != nil {
				return sum, err
			}
		}
	}

	// Verbatim payload line: anything the structured summary above did
	// not cover stays recoverable from the log. Note this is unredacted;
	// tool_input/tool_response land in the file as-is.
	if err := l.appendLine(f, ts, "payload: "+string(raw), &sum); err != nil {
		return sum, err
	}

	return sum, nil
}

// appendLine writes one "[ts] msg" line as a single write, so concurrent
// invocations interleave at line granularity rather than corrupting
// each other.
func (l *Logger) appendLine(f *os.File, ts, msg string, sum *Summary) error {
	if _, err := f.WriteString("[" + ts + "] " + msg + "\n"); err != nil {
		return fmt.Errorf("eventlog: append to %s: %w", l.path, err)
	}
	sum.Lines++
	return nil
}

// message selects the primary line text by event name. Unrecognized
// names (including the parse-failure sentinel) fall through to a generic
// line that embeds the literal value for diagnosis.
func message(inp hook.Input) string {
	switch inp.HookEventName {
	case hook.EventSessionStart:
		return "Session started"
	case hook.EventSessionEnd:
		return "Session ended"
	case hook.EventUserPromptSubmit:
		if inp.Prompt == nil {
			return "User prompt submitted"
		}
		return "User prompt submitted: " + preview(*inp.Prompt)
	case hook.EventPreToolUse:
		return "Tool starting: " + orUnknown(inp.ToolName, "unknown")
	case hook.EventPostToolUse:
		return "Tool finished: " + orUnknown(inp.ToolName, "unknown")
	case hook.EventErrorOccurred:
		var errText string
		if inp.Error != nil {
			errText = *inp.Error
		}
		return "Error: " + orUnknown(errText, "unknown error")
	default:
		return fmt.Sprintf("Unhandled event: %s", inp.HookEventName)
	}
}

// preview truncates s to the display budget, marking truncation with an
// ellipsis. Counts characters, not bytes.
func preview(s string) string {
	r := []rune(s)
	if len(r) <= promptPreviewLen {
		return s
	}
	return string(r[:promptPreviewLen]) + "..."
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
