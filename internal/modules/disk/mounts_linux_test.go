//go:build linux

package disk

import (
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
)

func TestRealMounts(t *testing.T) {
	mounts := []*procfs.MountInfo{
		{MountPoint: "/", FSType: "ext4"},
		{MountPoint: "/proc", FSType: "proc"},
		{MountPoint: "/run", FSType: "tmpfs"},
		{MountPoint: "/snap/core/1", FSType: "squashfs"},
		{MountPoint: "/home", FSType: "xfs"},
		{MountPoint: "/home", FSType: "xfs"},
		{MountPoint: "/run/user/1000/doc", FSType: "fuse.portal"},
		{MountPoint: "/var/lib/docker/overlay2/x/merged", FSType: "overlay"},
	}
	assert.Equal(t, []string{"/", "/home"}, realMounts(mounts))
}
