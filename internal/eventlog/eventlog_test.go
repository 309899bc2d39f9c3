package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hooklog/internal/gitmeta"
)

var testTime = time.Date(2025, 8, 25, 10, 30, 0, 0, time.UTC)

const testStamp = "[2025-08-25 10:30:00] "

// newTestLogger returns a Logger writing into dir with a fixed clock and
// the given metadata collector (nil means "no repo found").
func newTestLogger(t *testing.T, dir string, collect gitmeta.Collector) *Logger {
	t.Helper()
	if collect == nil {
		collect = func(context.Context, string) gitmeta.Info { return gitmeta.Info{} }
	}
	return New(Config{Dir: dir, File: "copilot-hooks.log"}, testSlog()).
		WithClock(func() time.Time { return testTime }).
		WithCollector(collect)
}

func testSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func readLines(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "copilot-hooks.log"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRecognizedEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "session start",
			payload: `{"hookEventName": "SessionStart"}`,
			want:    "Session started",
		},
		{
			name:    "session end",
			payload: `{"hookEventName": "SessionEnd"}`,
			want:    "Session ended",
		},
		{
			name:    "prompt submit",
			payload: `{"hookEventName": "UserPromptSubmit", "prompt": "read me a story"}`,
			want:    `User prompt submitted: read me a story`,
		},
		{
			name:    "pre tool use",
			payload: `{"hookEventName": "PreToolUse", "tool_name": "generate_speech"}`,
			want:    "Tool starting: generate_speech",
		},
		{
			name:    "post tool use",
			payload: `{"hookEventName": "PostToolUse", "tool_name": "generate_speech"}`,
			want:    "Tool finished: generate_speech",
		},
		{
			name:    "error occurred",
			payload: `{"hookEventName": "ErrorOccurred", "error": "CUDA out of memory"}`,
			want:    "Error: CUDA out of memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			l := newTestLogger(t, dir, nil)

			sum, err := l.Handle(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			require.Equal(t, 2, sum.Lines)

			lines := readLines(t, dir)
			require.Len(t, lines, 2)
			require.Equal(t, testStamp+tt.want, lines[0])
			require.Equal(t, testStamp+"payload: "+tt.payload, lines[1])
		})
	}
}

func TestToolNameDefaults(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	_, err := l.Handle(context.Background(), []byte(`{"hookEventName": "PreToolUse"}`))
	require.NoError(t, err)
	_, err = l.Handle(context.Background(), []byte(`{"hookEventName": "ErrorOccurred"}`))
	require.NoError(t, err)

	lines := readLines(t, dir)
	require.Equal(t, testStamp+"Tool starting: unknown", lines[0])
	require.Equal(t, testStamp+"Error: unknown error", lines[2])
}

func TestUnrecognizedEvent(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	sum, err := l.Handle(context.Background(), []byte(`{"hookEventName": "FooBar"}`))
	require.NoError(t, err)
	require.Equal(t, 2, sum.Lines)

	lines := readLines(t, dir)
	require.Equal(t, testStamp+"Unhandled event: FooBar", lines[0])
}

func TestPromptTruncation(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	long := strings.Repeat("x", 200)
	payload := fmt.Sprintf(`{"hookEventName": "UserPromptSubmit", "prompt": %q}`, long)

	_, err := l.Handle(context.Background(), []byte(payload))
	require.NoError(t, err)

	lines := readLines(t, dir)
	require.Equal(t, testStamp+"User prompt submitted: "+strings.Repeat("x", 80)+"...", lines[0])
	// The payload line still carries the full prompt.
	require.Contains(t, lines[1], long)
}

func TestPromptAbsent(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	_, err := l.Handle(context.Background(), []byte(`{"hookEventName": "UserPromptSubmit"}`))
	require.NoError(t, err)

	lines := readLines(t, dir)
	require.Equal(t, testStamp+"User prompt submitted", lines[0])
}

func TestSessionStartMetadata(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, func(context.Context, string) gitmeta.Info {
		return gitmeta.Info{
			Branch:    "main",
			RemoteURL: "https://example.com/repo.git",
			UserName:  "Alice",
			UserEmail: "alice@example.com",
		}
	})

	payload := `{"hookEventName": "SessionStart", "cwd": "/work/repo"}`
	sum, err := l.Handle(context.Background(), []byte(payload))
	require.NoError(t, err)
	require.Equal(t, 5, sum.Lines)

	lines := readLines(t, dir)
	require.Equal(t, []string{
		testStamp + "Session started",
		testStamp + "git branch: main",
		testStamp + "git remote: https://example.com/repo.git",
		testStamp + "git user: Alice <alice@example.com>",
		testStamp + "payload: " + payload,
	}, lines)
}

func TestSessionStartPartialIdentity(t *testing.T) {
	tests := []struct {
		name string
		info gitmeta.Info
		want []string
	}{
		{
			name: "name only",
			info: gitmeta.Info{UserName: "Alice"},
			want: []string{"git user: Alice"},
		},
		{
			name: "email only",
			info: gitmeta.Info{UserEmail: "alice@example.com"},
			want: []string{"git user: alice@example.com"},
		},
		{
			name: "branch only",
			info: gitmeta.Info{Branch: "dev"},
			want: []string{"git branch: dev"},
		},
		{
			name: "nothing",
			info: gitmeta.Info{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			l := newTestLogger(t, dir, func(context.Context, string) gitmeta.Info {
				return tt.info
			})

			sum, err := l.Handle(context.Background(), []byte(`{"hookEventName": "SessionStart"}`))
			require.NoError(t, err)
			require.Equal(t, 2+len(tt.want), sum.Lines)

			lines := readLines(t, dir)
			for i, want := range tt.want {
				require.Equal(t, testStamp+want, lines[1+i])
			}
			require.Equal(t, testStamp+`payload: {"hookEventName": "SessionStart"}`, lines[len(lines)-1])
		})
	}
}

func TestMetadataOnlyForSessionStart(t *testing.T) {
	dir := t.TempDir()
	called := false
	l := newTestLogger(t, dir, func(context.Context, string) gitmeta.Info {
		called = true
		return gitmeta.Info{Branch: "main"}
	})

	_, err := l.Handle(context.Background(), []byte(`{"hookEventName": "SessionEnd"}`))
	require.NoError(t, err)
	require.False(t, called, "collector must not run for non-SessionStart events")

	lines := readLines(t, dir)
	require.Len(t, lines, 2)
}

func TestMalformedInputStillLogged(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	sum, err := l.Handle(context.Background(), []byte("definitely not json"))
	require.NoError(t, err)
	require.Equal(t, 2, sum.Lines)
	require.Equal(t, "UNKNOWN", sum.EventName)

	lines := readLines(t, dir)
	require.Equal(t, testStamp+"Unhandled event: UNKNOWN", lines[0])
	require.Equal(t, testStamp+"payload: definitely not json", lines[1])
}

func TestAppendsAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	l := newTestLogger(t, dir, nil)

	for i := 0; i < 3; i++ {
		_, err := l.Handle(context.Background(), []byte(`{"hookEventName": "SessionEnd"}`))
		require.NoError(t, err)
	}

	lines := readLines(t, dir)
	require.Len(t, lines, 6, "entries must append, never truncate")
}

func TestConcurrentInvocations(t *testing.T) {
	dir := t.TempDir()

	const workers = 16
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := newTestLogger(t, dir, nil)
			payload := fmt.Sprintf(`{"hookEventName": "PostToolUse", "tool_name": "tool-%d"}`, i)
			_, err := l.Handle(context.Background(), []byte(payload))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	lines := readLines(t, dir)
	require.Len(t, lines, workers*2, "no invocation may lose its appends")
}

func TestConfigPathDefaults(t *testing.T) {
	require.Equal(t, filepath.Join("logs", "copilot-hooks.log"), Config{}.Path())
	require.Equal(t, filepath.Join("custom", "copilot-hooks.log"), Config{Dir: "custom"}.Path())
	require.Equal(t, filepath.Join("logs", "x.log"), Config{File: "x.log"}.Path())
}
