package config

import (
	"context"
	"path/filepath"
	"time"
)

// Package config provides configuration management for kubilitics-agent.
//
// Responsibilities:
//   - Load configuration from a YAML or JSON file and environment variables
//   - Fall back to built-in defaults when the file is missing or unusable
//   - Validate configuration before a run
//   - Hand the orchestrator an immutable snapshot for one run
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (applied by the caller)
//   2. Environment variables (KUBILITICS_AGENT_* prefix)
//   3. Config file (default: /etc/kubilitics-agent/config.yaml)
//   4. Built-in defaults
//
// Top-level keys:
//   - checkIntervalHours: scheduler cadence hint
//   - businessHoursStart / businessHoursEnd: local hours, window is [start, end)
//   - diskCleanupThresholdGB / diskCleanupCriticalGB: free-space levels
//   - maxLogAgeDays: retention for reports and run history
//   - allowedRemediationModules: modules the agent runs
//   - enableSafetyChecks: environment gate before remediation
//   - maxRemediationsPerDay: hard daily ceiling, never bypassed
//
// Sections: safety, execution, paths, logging, metrics, network, disk,
// services, printer.

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/kubilitics-agent/config.yaml"

// Config struct contains all configuration fields
type Config struct {
	CheckIntervalHours        int      `yaml:"checkIntervalHours" json:"checkIntervalHours"`
	BusinessHoursStart        int      `yaml:"businessHoursStart" json:"businessHoursStart"`
	BusinessHoursEnd          int      `yaml:"businessHoursEnd" json:"businessHoursEnd"`
	DiskCleanupThresholdGB    float64  `yaml:"diskCleanupThresholdGB" json:"diskCleanupThresholdGB"`
	DiskCleanupCriticalGB     float64  `yaml:"diskCleanupCriticalGB" json:"diskCleanupCriticalGB"`
	MaxLogAgeDays             int      `yaml:"maxLogAgeDays" json:"maxLogAgeDays"`
	AllowedRemediationModules []string `yaml:"allowedRemediationModules" json:"allowedRemediationModules"`
	EnableSafetyChecks        bool     `yaml:"enableSafetyChecks" json:"enableSafetyChecks"`
	MaxRemediationsPerDay     int      `yaml:"maxRemediationsPerDay" json:"maxRemediationsPerDay"`

	// Safety gate tuning
	Safety struct {
		CheckBusinessHours  bool    `yaml:"checkBusinessHours" json:"checkBusinessHours"`
		CheckActiveSessions bool    `yaml:"checkActiveSessions" json:"checkActiveSessions"`
		MinUptimeMinutes    int     `yaml:"minUptimeMinutes" json:"minUptimeMinutes"`
		MaxCPUPercent       float64 `yaml:"maxCpuPercent" json:"maxCpuPercent"`
		CPUSampleMillis     int     `yaml:"cpuSampleMillis" json:"cpuSampleMillis"`
	} `yaml:"safety" json:"safety"`

	// Execution limits
	Execution struct {
		Workers             int `yaml:"workers" json:"workers"`
		StageTimeoutSeconds int `yaml:"stageTimeoutSeconds" json:"stageTimeoutSeconds"`
		RunTimeoutMinutes   int `yaml:"runTimeoutMinutes" json:"runTimeoutMinutes"`
		VerifyDelaySeconds  int `yaml:"verifyDelaySeconds" json:"verifyDelaySeconds"`
	} `yaml:"execution" json:"execution"`

	// Filesystem locations
	Paths struct {
		LogDir    string `yaml:"logDir" json:"logDir"`
		ReportDir string `yaml:"reportDir" json:"reportDir"`
		StateDB   string `yaml:"stateDB" json:"stateDB"`
		LockFile  string `yaml:"lockFile" json:"lockFile"`
	} `yaml:"paths" json:"paths"`

	// Logging configuration
	Logging struct {
		Level      string `yaml:"level" json:"level"`
		MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"logging" json:"logging"`

	// Metrics textfile snapshot
	Metrics struct {
		TextfilePath string `yaml:"textfilePath" json:"textfilePath"`
	} `yaml:"metrics" json:"metrics"`

	// Network module
	Network struct {
		ProbeAddress       string `yaml:"probeAddress" json:"probeAddress"`
		DNSHost            string `yaml:"dnsHost" json:"dnsHost"`
		DialTimeoutSeconds int    `yaml:"dialTimeoutSeconds" json:"dialTimeoutSeconds"`
	} `yaml:"network" json:"network"`

	// Disk module
	Disk struct {
		Mounts            []string `yaml:"mounts" json:"mounts"`
		CleanupDirs       []string `yaml:"cleanupDirs" json:"cleanupDirs"`
		LogDirs           []string `yaml:"logDirs" json:"logDirs"`
		MaxFileAgeDays    int      `yaml:"maxFileAgeDays" json:"maxFileAgeDays"`
		MaxLogFileAgeDays int      `yaml:"maxLogFileAgeDays" json:"maxLogFileAgeDays"`
	} `yaml:"disk" json:"disk"`

	// Service module
	Services struct {
		Critical []string `yaml:"critical" json:"critical"`
	} `yaml:"services" json:"services"`

	// Printer module
	Printer struct {
		MaxQueuedJobs int `yaml:"maxQueuedJobs" json:"maxQueuedJobs"`
	} `yaml:"printer" json:"printer"`
}

// Clone returns a deep copy, used as the per-run snapshot.
func (c *Config) Clone() *Config {
	cp := *c
	cp.AllowedRemediationModules = cloneStrings(c.AllowedRemediationModules)
	cp.Disk.Mounts = cloneStrings(c.Disk.Mounts)
	cp.Disk.CleanupDirs = cloneStrings(c.Disk.CleanupDirs)
	cp.Disk.LogDirs = cloneStrings(c.Disk.LogDirs)
	cp.Services.Critical = cloneStrings(c.Services.Critical)
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ReportDir returns the report directory, defaulting to <logDir>/reports.
func (c *Config) ReportDir() string {
	if c.Paths.ReportDir != "" {
		return c.Paths.ReportDir
	}
	return filepath.Join(c.Paths.LogDir, "reports")
}

// StageTimeout bounds a single Detect, Fix or Verify call.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Execution.StageTimeoutSeconds) * time.Second
}

// RunTimeout bounds the whole invocation.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Execution.RunTimeoutMinutes) * time.Minute
}

// VerifyDelay is the settle time between Fix and Verify.
func (c *Config) VerifyDelay() time.Duration {
	return time.Duration(c.Execution.VerifyDelaySeconds) * time.Second
}

// MaxLogAge is the retention window for reports and history.
func (c *Config) MaxLogAge() time.Duration {
	return time.Duration(c.MaxLogAgeDays) * 24 * time.Hour
}

// ModuleAllowed reports whether name may run. An empty allow list allows all.
func (c *Config) ModuleAllowed(name string) bool {
	if len(c.AllowedRemediationModules) == 0 {
		return true
	}
	for _, m := range c.AllowedRemediationModules {
		if m == name {
			return true
		}
	}
	return false
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources. A non-nil error is a
	// ConfigError: the manager still holds a usable configuration.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error

	// Source returns the config file actually read, or "" when defaults
	// were used.
	Source() string
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}
