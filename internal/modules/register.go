// Package modules wires the built-in fault modules into a registry.
package modules

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/config"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/modules/disk"
	"github.com/kubilitics/kubilitics-agent/internal/modules/network"
	"github.com/kubilitics/kubilitics-agent/internal/modules/printer"
	"github.com/kubilitics/kubilitics-agent/internal/modules/service"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"go.uber.org/zap"
)

const day = 24 * time.Hour

// Build creates every built-in module from cfg.
func Build(cfg *config.Config, runner sysexec.Runner, logger *zap.Logger) []module.FaultModule {
	cleanupDirs := cfg.Disk.CleanupDirs
	if len(cleanupDirs) == 0 {
		cleanupDirs = disk.DefaultCleanupDirs(runtime.GOOS)
	}
	logDirs := cfg.Disk.LogDirs
	if len(logDirs) == 0 {
		logDirs = disk.DefaultLogDirs(runtime.GOOS)
	}

	return []module.FaultModule{
		network.New(network.Config{
			ProbeAddress: cfg.Network.ProbeAddress,
			DNSHost:      cfg.Network.DNSHost,
			DialTimeout:  time.Duration(cfg.Network.DialTimeoutSeconds) * time.Second,
		}, runner, logger),
		disk.New(disk.Config{
			WarningGB:     cfg.DiskCleanupThresholdGB,
			CriticalGB:    cfg.DiskCleanupCriticalGB,
			Mounts:        cfg.Disk.Mounts,
			CleanupDirs:   cleanupDirs,
			LogDirs:       logDirs,
			MaxFileAge:    time.Duration(cfg.Disk.MaxFileAgeDays) * day,
			MaxLogFileAge: time.Duration(cfg.Disk.MaxLogFileAgeDays) * day,
		}, logger),
		service.New(cfg.Services.Critical, runner, logger),
		printer.New(cfg.Printer.MaxQueuedJobs, runner, logger),
	}
}

// Register adds every built-in module to reg.
func Register(reg *module.Registry, cfg *config.Config, runner sysexec.Runner, logger *zap.Logger) error {
	for _, m := range Build(cfg, runner, logger) {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
	}
	return nil
}
