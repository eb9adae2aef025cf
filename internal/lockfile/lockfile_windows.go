//go:build windows

package lockfile

import (
	"errors"
	"os"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"golang.org/x/sys/windows"
)

// The locked byte sits past any PID content so Holder can still read the
// file. Windows drops the lock when the owning process exits.
func lockRange() *windows.Overlapped {
	return &windows.Overlapped{OffsetHigh: 1}
}

func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "open lock file")
	}
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, lockRange())
	if err != nil {
		f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, heldError(path, err)
		}
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "LockFileEx")
	}
	return f, nil
}

// Release drops the lock. The file is left in place; the next run reuses it.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, lockRange())
	err := l.file.Close()
	l.file = nil
	return err
}
