//go:build !unix && !windows

package lockfile

import (
	"errors"
	"os"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
)

// Without flock the file's existence is the lock; Release removes it.
func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, heldError(path, err)
		}
		return nil, agenterr.Wrap(agenterr.KindLocked, "lockfile.Acquire", err, "open lock file")
	}
	return f, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if rmErr := os.Remove(l.path); err == nil {
		err = rmErr
	}
	return err
}
