package pathutil

import (
	"os"
	"strings"
)

// ExpandTilde replaces a leading ~ or ~/ with the user's home directory.
// Paths like ~user/... are left unchanged (only the current user's ~ is
// expanded). If the home directory cannot be determined, the path is
// returned as-is.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return home + path[1:]
}
