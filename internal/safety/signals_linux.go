//go:build linux

package safety

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// RebootRequiredFile is written by update tooling when a reboot is pending.
const RebootRequiredFile = "/var/run/reboot-required"

// HostSignals reads signals from /proc, sysinfo(2) and who(1).
type HostSignals struct {
	runner       sysexec.Runner
	sampleWindow time.Duration
	rebootFile   string
}

// NewHostSignals creates the Linux signal provider.
func NewHostSignals(runner sysexec.Runner, sampleWindow time.Duration) *HostSignals {
	if sampleWindow <= 0 {
		sampleWindow = time.Second
	}
	return &HostSignals{runner: runner, sampleWindow: sampleWindow, rebootFile: RebootRequiredFile}
}

func (s *HostSignals) Now() time.Time { return time.Now() }

// ActiveSessions counts logged-in users with a terminal or display.
func (s *HostSignals) ActiveSessions(ctx context.Context) (int, error) {
	out, err := s.runner.Run(ctx, "who")
	if err != nil {
		return 0, err
	}
	return countSessions(out), nil
}

func countSessions(whoOutput string) int {
	n := 0
	for _, line := range strings.Split(whoOutput, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// CPUPercent samples /proc/stat twice across the sample window.
func (s *HostSignals) CPUPercent(ctx context.Context) (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("open procfs: %w", err)
	}
	first, err := fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(s.sampleWindow):
	}

	second, err := fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}
	return busyPercent(first.CPUTotal, second.CPUTotal), nil
}

func busyPercent(a, b procfs.CPUStat) float64 {
	idle := func(c procfs.CPUStat) float64 { return c.Idle + c.Iowait }
	total := func(c procfs.CPUStat) float64 {
		return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	}
	dt := total(b) - total(a)
	if dt <= 0 {
		return 0
	}
	return (dt - (idle(b) - idle(a))) / dt * 100
}

// Uptime returns time since boot.
func (s *HostSignals) Uptime(ctx context.Context) (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return time.Duration(info.Uptime) * time.Second, nil
}

// PendingReboot checks for the Debian-style marker file.
func (s *HostSignals) PendingReboot(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.rebootFile)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}
