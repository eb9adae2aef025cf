package config

import (
	"runtime"
)

// KnownModules are the fault modules shipped with the agent.
var KnownModules = []string{"network", "disk", "service", "printer"}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.CheckIntervalHours = 4
	cfg.BusinessHoursStart = 9
	cfg.BusinessHoursEnd = 18
	cfg.DiskCleanupThresholdGB = 10
	cfg.DiskCleanupCriticalGB = 5
	cfg.MaxLogAgeDays = 30
	cfg.AllowedRemediationModules = append([]string(nil), KnownModules...)
	cfg.EnableSafetyChecks = true
	cfg.MaxRemediationsPerDay = 5

	// Safety defaults
	cfg.Safety.CheckBusinessHours = true
	cfg.Safety.CheckActiveSessions = true
	cfg.Safety.MinUptimeMinutes = 10
	cfg.Safety.MaxCPUPercent = 80
	cfg.Safety.CPUSampleMillis = 1000

	// Execution defaults
	cfg.Execution.Workers = 1
	cfg.Execution.StageTimeoutSeconds = 900
	cfg.Execution.RunTimeoutMinutes = 120
	cfg.Execution.VerifyDelaySeconds = 3

	// Path defaults
	cfg.Paths.LogDir = "/var/log/kubilitics-agent"
	cfg.Paths.ReportDir = "" // <logDir>/reports
	cfg.Paths.StateDB = "/var/lib/kubilitics-agent/state.db"
	cfg.Paths.LockFile = "/var/run/kubilitics-agent.lock"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 10
	cfg.Logging.Compress = true

	// Network defaults
	cfg.Network.ProbeAddress = "8.8.8.8:53"
	cfg.Network.DNSHost = "google.com"
	cfg.Network.DialTimeoutSeconds = 5

	// Disk defaults
	cfg.Disk.MaxFileAgeDays = 7
	cfg.Disk.MaxLogFileAgeDays = 30

	cfg.Services.Critical = defaultCriticalServices(runtime.GOOS)

	return cfg
}

func defaultCriticalServices(goos string) []string {
	switch goos {
	case "windows":
		return []string{"Spooler", "Dhcp", "Dnscache", "EventLog"}
	case "darwin":
		return []string{"com.apple.mDNSResponder", "org.cups.cupsd"}
	default:
		return []string{"NetworkManager", "systemd-resolved", "cups", "ssh"}
	}
}
