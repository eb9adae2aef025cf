// Package lockfile guards against two agent invocations on one host.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
)

// Lock is a held host lock.
type Lock struct {
	path string
	file *os.File
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock at path without blocking. When another process
// holds it the error is KindLocked and names the holder's PID if known.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "create lock dir")
	}
	f, err := acquire(path)
	if err != nil {
		return nil, err
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		_ = f.Sync()
	}
	return &Lock{path: path, file: f}, nil
}

// Holder returns the PID recorded in the lock file, or 0.
func Holder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func heldError(path string, cause error) error {
	msg := "another agent run holds " + path
	if pid := Holder(path); pid > 0 {
		msg = fmt.Sprintf("%s (pid %d)", msg, pid)
	}
	return &agenterr.Error{Kind: agenterr.KindLocked, Op: "lockfile.Acquire", Message: msg, Err: cause}
}
