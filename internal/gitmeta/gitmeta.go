// Package gitmeta queries ambient repository metadata from the git CLI.
// Every query is best-effort: a missing binary, a directory outside any
// repository, or an unset config key all simply produce an absent field.
package gitmeta

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// queryTimeout bounds each individual git invocation.
const queryTimeout = 2 * time.Second

// Info holds the metadata attached to session-start log entries.
// Empty string means the value could not be determined.
type Info struct {
	Branch    string
	RemoteURL string
	UserName  string
	UserEmail string
}

// Collector produces repo metadata for a directory. The eventlog package
// takes one of these so tests can substitute a fixed Info.
type Collector func(ctx context.Context, dir string) Info

// Identity combines user name and email into "name <email>".
// With only one present, that one is returned alone; with neither,
// the empty string.
func (i Info) Identity() string {
	switch {
	case i.UserName != "" && i.UserEmail != "":
		return i.UserName + " <" + i.UserEmail + ">"
	case i.UserName != "":
		return i.UserName
	default:
		return i.UserEmail
	}
}

// Collect runs the four metadata queries concurrently against the given
// directory (empty dir means the current working directory). Individual
// failures are swallowed; the caller sees absent fields.
func Collect(ctx context.Context, dir string) Info {
	var info Info

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info.Branch = query(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
		return nil
	})
	g.Go(func() error {
		info.RemoteURL = query(ctx, dir, "remote", "get-url", "origin")
		return nil
	})
	g.Go(func() error {
		info.UserName = query(ctx, dir, "config", "user.name")
		return nil
	})
	g.Go(func() error {
		info.UserEmail = query(ctx, dir, "config", "user.email")
		return nil
	})
	_ = g.Wait() // goroutines only ever return nil

	return info
}

// query runs a single git command and returns its trimmed stdout,
// or empty string on any failure.
func query(ctx context.Context, dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
