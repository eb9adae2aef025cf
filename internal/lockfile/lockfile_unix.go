//go:build unix

package lockfile

import (
	"errors"
	"os"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"golang.org/x/sys/unix"
)

func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "open lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, heldError(path, err)
		}
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "flock")
	}
	return f, nil
}

// Release drops the lock. The file is left in place; the next run reuses it.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
