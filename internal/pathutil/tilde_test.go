package pathutil

import (
	"path/filepath"
	"testing"
)

func TestExpandTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/logs", filepath.Join(home, "logs")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
		{"~user/logs", "~user/logs"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExpandTilde(tt.in); got != tt.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
