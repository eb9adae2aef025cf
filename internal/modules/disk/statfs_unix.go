//go:build linux || darwin

package disk

import (
	"golang.org/x/sys/unix"
)

// statfs returns total and available bytes for the filesystem at path.
// Available excludes blocks reserved for root.
func statfs(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
