package service

import (
	"context"
	"strings"

	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
)

// State is the normalized state of a service.
type State string

const (
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
	StateNotFound State = "not_found"
	StateUnknown  State = "unknown"
)

// Manager queries and restarts services through the host service manager.
type Manager interface {
	Status(ctx context.Context, name string) (State, error)
	Restart(ctx context.Context, name string) error
}

// ManagerFor returns the service manager for goos.
func ManagerFor(goos string, runner sysexec.Runner) Manager {
	switch goos {
	case "windows":
		return &scManager{runner: runner}
	case "darwin":
		return &launchdManager{runner: runner}
	default:
		return &systemdManager{runner: runner}
	}
}

type systemdManager struct {
	runner sysexec.Runner
}

// Status maps `systemctl is-active`. It exits non-zero for anything but
// active, so the output is read regardless of the error.
func (m *systemdManager) Status(ctx context.Context, name string) (State, error) {
	out, err := m.runner.Run(ctx, "systemctl", "is-active", name)
	if err != nil && sysexec.IsNotFound(err) {
		return StateUnknown, err
	}

	switch strings.TrimSpace(out) {
	case "active", "activating", "reloading":
		return StateRunning, nil
	case "failed":
		return StateFailed, nil
	}

	// systemd reports missing units as inactive too.
	load, _ := m.runner.Run(ctx, "systemctl", "show", "--property=LoadState", "--value", name)
	if strings.TrimSpace(load) == "not-found" {
		return StateNotFound, nil
	}
	if strings.TrimSpace(out) == "inactive" || strings.TrimSpace(out) == "deactivating" {
		return StateStopped, nil
	}
	return StateUnknown, nil
}

func (m *systemdManager) Restart(ctx context.Context, name string) error {
	_, err := m.runner.Run(ctx, "systemctl", "restart", name)
	return err
}

type launchdManager struct {
	runner sysexec.Runner
}

func (m *launchdManager) Status(ctx context.Context, name string) (State, error) {
	_, err := m.runner.Run(ctx, "launchctl", "list", name)
	switch {
	case err == nil:
		return StateRunning, nil
	case sysexec.IsNotFound(err):
		return StateUnknown, err
	default:
		return StateStopped, nil
	}
}

func (m *launchdManager) Restart(ctx context.Context, name string) error {
	_, err := m.runner.Run(ctx, "launchctl", "kickstart", "-k", "system/"+name)
	return err
}

type scManager struct {
	runner sysexec.Runner
}

// Status parses `sc query`; a non-zero exit means the service does not exist.
func (m *scManager) Status(ctx context.Context, name string) (State, error) {
	out, err := m.runner.Run(ctx, "sc", "query", name)
	if err != nil {
		if sysexec.IsNotFound(err) {
			return StateUnknown, err
		}
		return StateNotFound, nil
	}
	switch {
	case strings.Contains(out, "RUNNING"):
		return StateRunning, nil
	case strings.Contains(out, "STOPPED"):
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}

func (m *scManager) Restart(ctx context.Context, name string) error {
	_, err := m.runner.Run(ctx, "net", "start", name)
	return err
}
