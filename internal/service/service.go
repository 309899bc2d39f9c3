// Package service starts and stops the auxiliary processes (the TTS UI
// and the TTS API server) by spawning detached processes and recording
// their PIDs to files for later termination.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"hooklog/internal/pathutil"
)

// DefaultStopGrace is how long Stop waits after SIGTERM before escalating
// to SIGKILL.
const DefaultStopGrace = 5 * time.Second

// ErrNotRunning is returned by Stop and reported by Status when no live
// process is recorded for a service.
var ErrNotRunning = errors.New("service not running")

// Service describes one managed process, as configured in YAML.
type Service struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Env     []string `yaml:"env,omitempty"`
	Port    int      `yaml:"port,omitempty"`
}

// Status reports the recorded state of one service.
type Status struct {
	Name    string
	PID     int
	Running bool
}

// Manager starts, stops and inspects services. PID files and per-service
// output logs live under pidDir.
type Manager struct {
	pidDir string
	log    *slog.Logger
}

// NewManager returns a Manager writing PID files under pidDir.
func NewManager(pidDir string, logger *slog.Logger) *Manager {
	return &Manager{pidDir: pidDir, log: logger}
}

// Start spawns the service in its own session with stdout/stderr
// redirected to <piddir>/<name>.log, records the PID, and returns it.
// A service whose recorded PID is still alive is not started twice.
//
// Limitation: the command string is split with strings.Fields, so
// commands containing paths with spaces must use Args instead.
func (m *Manager) Start(svc Service) (int, error) {
	if pid, ok := m.readPID(svc.Name); ok && alive(pid) {
		return 0, fmt.Errorf("service: %s already running (pid %d)", svc.Name, pid)
	}

	parts := strings.Fields(pathutil.ExpandTilde(svc.Command))
	if len(parts) == 0 {
		return 0, fmt.Errorf("service: empty command for %q", svc.Name)
	}
	args := parts[1:]
	if len(svc.Args) > 0 {
		args = append(args, svc.Args...)
	}

	if err := os.MkdirAll(m.pidDir, 0o755); err != nil {
		return 0, fmt.Errorf("service: create pid dir: %w", err)
	}

	out, err := os.OpenFile(m.logPath(svc.Name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("service: open output log for %q: %w", svc.Name, err)
	}
	defer func() { _ = out.Close() }()

	cmd := exec.Command(parts[0], args...)
	cmd.Dir = pathutil.ExpandTilde(svc.Dir)
	cmd.Stdout = out
	cmd.Stderr = out
	if len(svc.Env) > 0 {
		cmd.Env = append(os.Environ(), svc.Env...)
	}
	// Own session: the service must outlive this process and not receive
	// its terminal signals.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("service: start %q: %w", svc.Name, err)
	}

	pid := cmd.Process.Pid
	if err := m.writePID(svc.Name, pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, err
	}
	// Reap the child if it exits while this process is still around;
	// otherwise kill(pid, 0) would keep reporting the zombie as alive.
	go func() { _ = cmd.Wait() }()

	m.log.Info("service started", "name", svc.Name, "pid", pid, "log", m.logPath(svc.Name))
	return pid, nil
}

// Stop terminates the recorded process: SIGTERM, then SIGKILL after the
// grace period. A stale PID file (process already gone) is cleaned up and
// reported as ErrNotRunning.
func (m *Manager) Stop(name string, grace time.Duration) error {
	pid, ok := m.readPID(name)
	if !ok {
		return fmt.Errorf("service: %s: %w", name, ErrNotRunning)
	}

	if !alive(pid) {
		_ = os.Remove(m.pidPath(name))
		return fmt.Errorf("service: %s (stale pid %d): %w", name, pid, ErrNotRunning)
	}

	if grace <= 0 {
		grace = DefaultStopGrace
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("service: signal %s (pid %d): %w", name, pid, err)
	}

	deadline := time.Now().Add(grace)
	for alive(pid) {
		if time.Now().After(deadline) {
			m.log.Warn("service did not exit, killing", "name", name, "pid", pid)
			_ = unix.Kill(pid, unix.SIGKILL)
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := os.Remove(m.pidPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("service: remove pid file for %s: %w", name, err)
	}

	m.log.Info("service stopped", "name", name, "pid", pid)
	return nil
}

// Status reports whether the recorded PID for the service is alive.
func (m *Manager) Status(name string) Status {
	pid, ok := m.readPID(name)
	if !ok {
		return Status{Name: name}
	}
	return Status{Name: name, PID: pid, Running: alive(pid)}
}

func (m *Manager) pidPath(name string) string {
	return filepath.Join(m.pidDir, name+".pid")
}

func (m *Manager) logPath(name string) string {
	return filepath.Join(m.pidDir, name+".log")
}

func (m *Manager) readPID(name string) (int, bool) {
	data, err := os.ReadFile(m.pidPath(name))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (m *Manager) writePID(name string, pid int) error {
	path := m.pidPath(name)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("service: write pid file %s: %w", path, err)
	}
	return nil
}

// alive probes the process with signal 0. EPERM still means the process
// exists, just owned by someone else.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
