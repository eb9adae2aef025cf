// Package sysexec runs host commands for fault modules and signal providers.
package sysexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single command when the caller's context has no
// earlier deadline.
const DefaultTimeout = 30 * time.Second

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner returns a runner using DefaultTimeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

// Run executes name with args. The output is returned even when the command
// exits non-zero, since tools like systemctl report state via exit codes.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(b))
	if ctx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("%s timed out after %s", name, timeout)
	}
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// IsNotFound reports whether err means the executable does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// FirstSuccess runs each command in order until one succeeds, returning the
// command line that worked. Used for tools that differ across distributions.
func FirstSuccess(ctx context.Context, r Runner, cmds ...[]string) (string, error) {
	var errs []string
	for _, c := range cmds {
		if len(c) == 0 {
			continue
		}
		if _, err := r.Run(ctx, c[0], c[1:]...); err != nil {
			errs = append(errs, err.Error())
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return strings.Join(c, " "), nil
	}
	return "", fmt.Errorf("all alternatives failed: %s", strings.Join(errs, "; "))
}
