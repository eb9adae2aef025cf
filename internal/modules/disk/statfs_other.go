//go:build !linux && !darwin && !windows

package disk

import (
	"fmt"
	"runtime"
)

func statfs(path string) (total, free uint64, err error) {
	return 0, 0, fmt.Errorf("free space probe not supported on %s", runtime.GOOS)
}
