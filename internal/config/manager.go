package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KUBILITICS_AGENT"

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	source     string
}

// Load loads configuration from all sources.
//
// A missing or unreadable file is not fatal: the manager keeps defaults plus
// environment overrides and returns a ConfigError for the caller to log.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType(configType(m.configPath))

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	readErr := m.readFile()

	if err := m.unmarshalConfig(); err != nil {
		m.config = DefaultsFromEnv()
		return agenterr.Wrap(agenterr.KindConfig, "config.Load", err, "unmarshal config, using defaults")
	}

	m.applyEnvOverrides()

	return readErr
}

// readFile reads the config file and classifies failures as ConfigErrors.
func (m *viperConfigManager) readFile() error {
	m.source = ""
	err := m.viper.ReadInConfig()
	if err == nil {
		m.source = m.viper.ConfigFileUsed()
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return agenterr.Wrap(agenterr.KindConfig, "config.Load", err,
			fmt.Sprintf("config file %s not found, using defaults", m.configPath))
	}

	// Malformed file: drop whatever was partially read so defaults apply.
	m.resetToDefaults()
	return agenterr.Wrap(agenterr.KindConfig, "config.Load", err,
		fmt.Sprintf("config file %s unreadable, using defaults", m.configPath))
}

func (m *viperConfigManager) resetToDefaults() {
	m.viper = viper.New()
	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.setDefaults()
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Source returns the config file that was read.
func (m *viperConfigManager) Source() string {
	return m.source
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return agenterr.New(agenterr.KindConfig, "config.Validate",
			fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - ")))
	}
	return nil
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.viper == nil {
		return m.Load(ctx)
	}

	readErr := m.readFile()

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return readErr
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("checkIntervalHours", defaults.CheckIntervalHours)
	m.viper.SetDefault("businessHoursStart", defaults.BusinessHoursStart)
	m.viper.SetDefault("businessHoursEnd", defaults.BusinessHoursEnd)
	m.viper.SetDefault("diskCleanupThresholdGB", defaults.DiskCleanupThresholdGB)
	m.viper.SetDefault("diskCleanupCriticalGB", defaults.DiskCleanupCriticalGB)
	m.viper.SetDefault("maxLogAgeDays", defaults.MaxLogAgeDays)
	m.viper.SetDefault("allowedRemediationModules", defaults.AllowedRemediationModules)
	m.viper.SetDefault("enableSafetyChecks", defaults.EnableSafetyChecks)
	m.viper.SetDefault("maxRemediationsPerDay", defaults.MaxRemediationsPerDay)

	// Safety defaults
	m.viper.SetDefault("safety.checkBusinessHours", defaults.Safety.CheckBusinessHours)
	m.viper.SetDefault("safety.checkActiveSessions", defaults.Safety.CheckActiveSessions)
	m.viper.SetDefault("safety.minUptimeMinutes", defaults.Safety.MinUptimeMinutes)
	m.viper.SetDefault("safety.maxCpuPercent", defaults.Safety.MaxCPUPercent)
	m.viper.SetDefault("safety.cpuSampleMillis", defaults.Safety.CPUSampleMillis)

	// Execution defaults
	m.viper.SetDefault("execution.workers", defaults.Execution.Workers)
	m.viper.SetDefault("execution.stageTimeoutSeconds", defaults.Execution.StageTimeoutSeconds)
	m.viper.SetDefault("execution.runTimeoutMinutes", defaults.Execution.RunTimeoutMinutes)
	m.viper.SetDefault("execution.verifyDelaySeconds", defaults.Execution.VerifyDelaySeconds)

	// Path defaults
	m.viper.SetDefault("paths.logDir", defaults.Paths.LogDir)
	m.viper.SetDefault("paths.reportDir", defaults.Paths.ReportDir)
	m.viper.SetDefault("paths.stateDB", defaults.Paths.StateDB)
	m.viper.SetDefault("paths.lockFile", defaults.Paths.LockFile)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.maxSizeMB", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.maxBackups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	m.viper.SetDefault("metrics.textfilePath", defaults.Metrics.TextfilePath)

	// Module defaults
	m.viper.SetDefault("network.probeAddress", defaults.Network.ProbeAddress)
	m.viper.SetDefault("network.dnsHost", defaults.Network.DNSHost)
	m.viper.SetDefault("network.dialTimeoutSeconds", defaults.Network.DialTimeoutSeconds)
	m.viper.SetDefault("disk.mounts", defaults.Disk.Mounts)
	m.viper.SetDefault("disk.cleanupDirs", defaults.Disk.CleanupDirs)
	m.viper.SetDefault("disk.logDirs", defaults.Disk.LogDirs)
	m.viper.SetDefault("disk.maxFileAgeDays", defaults.Disk.MaxFileAgeDays)
	m.viper.SetDefault("disk.maxLogFileAgeDays", defaults.Disk.MaxLogFileAgeDays)
	m.viper.SetDefault("services.critical", defaults.Services.Critical)
	m.viper.SetDefault("printer.maxQueuedJobs", defaults.Printer.MaxQueuedJobs)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.CheckIntervalHours = m.viper.GetInt("checkIntervalHours")
	cfg.BusinessHoursStart = m.viper.GetInt("businessHoursStart")
	cfg.BusinessHoursEnd = m.viper.GetInt("businessHoursEnd")
	cfg.DiskCleanupThresholdGB = m.viper.GetFloat64("diskCleanupThresholdGB")
	cfg.DiskCleanupCriticalGB = m.viper.GetFloat64("diskCleanupCriticalGB")
	cfg.MaxLogAgeDays = m.viper.GetInt("maxLogAgeDays")
	cfg.AllowedRemediationModules = m.viper.GetStringSlice("allowedRemediationModules")
	cfg.EnableSafetyChecks = m.viper.GetBool("enableSafetyChecks")
	cfg.MaxRemediationsPerDay = m.viper.GetInt("maxRemediationsPerDay")

	// Safety
	cfg.Safety.CheckBusinessHours = m.viper.GetBool("safety.checkBusinessHours")
	cfg.Safety.CheckActiveSessions = m.viper.GetBool("safety.checkActiveSessions")
	cfg.Safety.MinUptimeMinutes = m.viper.GetInt("safety.minUptimeMinutes")
	cfg.Safety.MaxCPUPercent = m.viper.GetFloat64("safety.maxCpuPercent")
	cfg.Safety.CPUSampleMillis = m.viper.GetInt("safety.cpuSampleMillis")

	// Execution
	cfg.Execution.Workers = m.viper.GetInt("execution.workers")
	cfg.Execution.StageTimeoutSeconds = m.viper.GetInt("execution.stageTimeoutSeconds")
	cfg.Execution.RunTimeoutMinutes = m.viper.GetInt("execution.runTimeoutMinutes")
	cfg.Execution.VerifyDelaySeconds = m.viper.GetInt("execution.verifyDelaySeconds")

	// Paths
	cfg.Paths.LogDir = m.viper.GetString("paths.logDir")
	cfg.Paths.ReportDir = m.viper.GetString("paths.reportDir")
	cfg.Paths.StateDB = m.viper.GetString("paths.stateDB")
	cfg.Paths.LockFile = m.viper.GetString("paths.lockFile")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.maxSizeMB")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.maxBackups")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	cfg.Metrics.TextfilePath = m.viper.GetString("metrics.textfilePath")

	// Modules
	cfg.Network.ProbeAddress = m.viper.GetString("network.probeAddress")
	cfg.Network.DNSHost = m.viper.GetString("network.dnsHost")
	cfg.Network.DialTimeoutSeconds = m.viper.GetInt("network.dialTimeoutSeconds")
	cfg.Disk.Mounts = m.viper.GetStringSlice("disk.mounts")
	cfg.Disk.CleanupDirs = m.viper.GetStringSlice("disk.cleanupDirs")
	cfg.Disk.LogDirs = m.viper.GetStringSlice("disk.logDirs")
	cfg.Disk.MaxFileAgeDays = m.viper.GetInt("disk.maxFileAgeDays")
	cfg.Disk.MaxLogFileAgeDays = m.viper.GetInt("disk.maxLogFileAgeDays")
	cfg.Services.Critical = m.viper.GetStringSlice("services.critical")
	cfg.Printer.MaxQueuedJobs = m.viper.GetInt("printer.maxQueuedJobs")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment overrides that viper keys cannot express.
func (m *viperConfigManager) applyEnvOverrides() {
	applyHome(m.config)
}

// DefaultsFromEnv returns the built-in defaults with the KUBILITICS_AGENT_HOME
// relocation applied. It is the fallback when a config file is unusable.
func DefaultsFromEnv() *Config {
	cfg := DefaultConfig()
	applyHome(cfg)
	return cfg
}

// KUBILITICS_AGENT_HOME relocates all state under one directory, for
// unprivileged runs.
func applyHome(cfg *Config) {
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		cfg.Paths.LogDir = filepath.Join(home, "logs")
		cfg.Paths.StateDB = filepath.Join(home, "state.db")
		cfg.Paths.LockFile = filepath.Join(home, "agent.lock")
	}
}
