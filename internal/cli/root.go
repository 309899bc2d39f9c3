package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hooklog/internal/audit"
	"hooklog/internal/config"
	"hooklog/internal/eventlog"
	"hooklog/internal/pathutil"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("HOOKLOG_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hooklog",
		Short:         "Copilot hook event logger for the TTS studio",
		Long:          "hooklog is invoked by the agent's hook mechanism with one JSON event\non stdin. It appends a human-readable entry to the shared log file and\nrecords the event in a local audit database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newServiceCmd())

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
		return 1
	}
	return 0
}

// runRoot is the default command: read the event from stdin, append the
// log entry, record it in the audit store. Bad input never produces a
// non-zero exit; the triggering agent must not be blocked by logging.
func runRoot(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	start := time.Now()

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Warn("failed to read stdin", "err", err)
		return nil
	}

	// Config problems degrade to defaults rather than blocking the agent.
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("config error, using defaults", "err", err)
		cfg = config.Config{}
	}

	elog := eventlog.New(cfg.Log, logger)
	sum, err := elog.Handle(cmd.Context(), data)
	if err != nil {
		// Filesystem fault: the execution environment is broken, which is
		// the one condition allowed to surface as a process error.
		fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
		return &exitError{code: 1}
	}

	logger.Debug("event logged",
		"event", sum.EventName,
		"tool", sum.ToolName,
		"lines", sum.Lines)

	// Audit store is fail-open: errors logged, never propagated.
	recordAudit(cfg, sum, time.Since(start), logger)

	return nil
}

// recordAudit writes the event to the SQLite store and triggers
// best-effort rotation when a retention is configured.
func recordAudit(cfg config.Config, sum eventlog.Summary, elapsed time.Duration, logger *slog.Logger) {
	if os.Getenv("HOOKLOG_AUDIT") == "0" || (cfg.Audit != nil && cfg.Audit.Disabled) {
		return
	}

	dbPath := audit.DefaultDBPath()
	if cfg.Audit != nil && cfg.Audit.DBPath != "" {
		dbPath = pathutil.ExpandTilde(cfg.Audit.DBPath)
	}

	rec, err := audit.Open(dbPath)
	if err != nil {
		logger.Warn("failed to open audit db, continuing without audit", "err", err)
		return
	}
	defer func() { _ = rec.Close() }()

	err = rec.RecordEvent(audit.Event{
		EventName:  sum.EventName,
		ToolName:   sum.ToolName,
		SessionID:  sum.SessionID,
		CWD:        sum.CWD,
		Lines:      sum.Lines,
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		logger.Warn("failed to record audit event", "err", err)
	}

	if cfg.Audit != nil && cfg.Audit.Retention != "" {
		retention, err := parseDuration(cfg.Audit.Retention)
		if err != nil {
			logger.Warn("invalid audit retention", "retention", cfg.Audit.Retention, "err", err)
			return
		}
		audit.MaybeRotate(rec.DB(), audit.RotationConfig{
			Retention:   retention,
			ArchiveDir:  filepath.Join(filepath.Dir(dbPath), "archives"),
			ThrottleDir: filepath.Dir(dbPath),
		}, logger)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hooklog %s (%s)\n", Version, Commit)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and check service commands",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hooklog: config error: %v\n", err)
		return &exitError{code: 1}
	}

	fmt.Printf("Log file: %s\n", cfg.Log.Path())
	if cfg.Audit != nil && cfg.Audit.Disabled {
		fmt.Println("Audit:    disabled")
	} else {
		dbPath := audit.DefaultDBPath()
		if cfg.Audit != nil && cfg.Audit.DBPath != "" {
			dbPath = pathutil.ExpandTilde(cfg.Audit.DBPath)
		}
		fmt.Printf("Audit:    %s\n", dbPath)
	}

	if len(cfg.Services) == 0 {
		fmt.Println("No services configured.")
		return nil
	}

	hasIssues := false

	for i, svc := range cfg.Services {
		cmdStr := pathutil.ExpandTilde(svc.Command)
		parts := strings.Fields(cmdStr)
		status := "OK"
		if len(parts) == 0 {
			status = "EMPTY COMMAND"
			hasIssues = true
		} else if _, err := exec.LookPath(parts[0]); err != nil {
			status = fmt.Sprintf("NOT FOUND: %s", parts[0])
			hasIssues = true
		}

		fmt.Printf("Service %d: name=%s command=%q dir=%s port=%d [%s]\n",
			i+1, svc.Name, svc.Command, svc.Dir, svc.Port, status)
	}

	if hasIssues {
		return &exitError{code: 1}
	}
	return nil
}
