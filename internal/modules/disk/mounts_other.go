//go:build !linux

package disk

import (
	"runtime"
)

// systemMounts falls back to the system root when mountinfo is unavailable.
func systemMounts() ([]string, error) {
	if runtime.GOOS == "windows" {
		return []string{`C:\`}, nil
	}
	return []string{"/"}, nil
}
