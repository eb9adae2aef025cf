//go:build linux

package disk

import (
	"strings"

	"github.com/prometheus/procfs"
)

var pseudoFS = map[string]bool{
	"tmpfs":       true,
	"devtmpfs":    true,
	"squashfs":    true,
	"overlay":     true,
	"proc":        true,
	"sysfs":       true,
	"cgroup":      true,
	"cgroup2":     true,
	"devpts":      true,
	"mqueue":      true,
	"debugfs":     true,
	"tracefs":     true,
	"securityfs":  true,
	"pstore":      true,
	"bpf":         true,
	"configfs":    true,
	"fusectl":     true,
	"hugetlbfs":   true,
	"autofs":      true,
	"binfmt_misc": true,
	"nsfs":        true,
	"ramfs":       true,
	"efivarfs":    true,
}

// systemMounts lists real filesystems from /proc/self/mountinfo.
func systemMounts() ([]string, error) {
	mounts, err := procfs.GetMounts()
	if err != nil {
		return nil, err
	}
	return realMounts(mounts), nil
}

func realMounts(mounts []*procfs.MountInfo) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mounts {
		if pseudoFS[m.FSType] || strings.HasPrefix(m.FSType, "fuse.") {
			continue
		}
		if seen[m.MountPoint] {
			continue
		}
		seen[m.MountPoint] = true
		out = append(out, m.MountPoint)
	}
	return out
}
