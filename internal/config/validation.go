package config

import (
	"fmt"
	"net"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Schedule and business hours
	if c.CheckIntervalHours < 1 {
		errs = append(errs, &ValidationError{
			Field:   "checkIntervalHours",
			Message: fmt.Sprintf("must be at least 1, got %d", c.CheckIntervalHours),
		})
	}
	if c.BusinessHoursStart < 0 || c.BusinessHoursStart > 23 {
		errs = append(errs, &ValidationError{
			Field:   "businessHoursStart",
			Message: fmt.Sprintf("hour must be between 0 and 23, got %d", c.BusinessHoursStart),
		})
	}
	if c.BusinessHoursEnd < 0 || c.BusinessHoursEnd > 24 {
		errs = append(errs, &ValidationError{
			Field:   "businessHoursEnd",
			Message: fmt.Sprintf("hour must be between 0 and 24, got %d", c.BusinessHoursEnd),
		})
	}

	// Disk thresholds
	if c.DiskCleanupCriticalGB < 0 {
		errs = append(errs, &ValidationError{
			Field:   "diskCleanupCriticalGB",
			Message: "must not be negative",
		})
	}
	if c.DiskCleanupThresholdGB < c.DiskCleanupCriticalGB {
		errs = append(errs, &ValidationError{
			Field:   "diskCleanupThresholdGB",
			Message: fmt.Sprintf("threshold %.1f must not be below critical level %.1f", c.DiskCleanupThresholdGB, c.DiskCleanupCriticalGB),
		})
	}

	// Retention and quota
	if c.MaxLogAgeDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "maxLogAgeDays",
			Message: fmt.Sprintf("must be at least 1, got %d", c.MaxLogAgeDays),
		})
	}
	if c.MaxRemediationsPerDay < 0 {
		errs = append(errs, &ValidationError{
			Field:   "maxRemediationsPerDay",
			Message: fmt.Sprintf("must not be negative, got %d", c.MaxRemediationsPerDay),
		})
	}

	known := make(map[string]bool, len(KnownModules))
	for _, m := range KnownModules {
		known[m] = true
	}
	for _, m := range c.AllowedRemediationModules {
		if !known[m] {
			errs = append(errs, &ValidationError{
				Field:   "allowedRemediationModules",
				Message: fmt.Sprintf("unknown module %q (known: %v)", m, KnownModules),
			})
		}
	}

	errs = append(errs, c.validateSafety()...)
	errs = append(errs, c.validateExecution()...)

	// Paths
	if c.Paths.LogDir == "" {
		errs = append(errs, &ValidationError{Field: "paths.logDir", Message: "log directory is required"})
	}
	if c.Paths.StateDB == "" {
		errs = append(errs, &ValidationError{Field: "paths.stateDB", Message: "state database path is required"})
	}
	if c.Paths.LockFile == "" {
		errs = append(errs, &ValidationError{Field: "paths.lockFile", Message: "lock file path is required"})
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", c.Logging.Level),
		})
	}

	// Network probe
	if _, _, err := net.SplitHostPort(c.Network.ProbeAddress); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "network.probeAddress",
			Message: fmt.Sprintf("invalid address format (expected host:port): %v", err),
		})
	}

	return errs
}

func (c *Config) validateSafety() []error {
	var errs []error
	if c.Safety.MinUptimeMinutes < 0 {
		errs = append(errs, &ValidationError{
			Field:   "safety.minUptimeMinutes",
			Message: "must not be negative",
		})
	}
	if c.Safety.MaxCPUPercent <= 0 || c.Safety.MaxCPUPercent > 100 {
		errs = append(errs, &ValidationError{
			Field:   "safety.maxCpuPercent",
			Message: fmt.Sprintf("must be in (0, 100], got %.1f", c.Safety.MaxCPUPercent),
		})
	}
	if c.Safety.CPUSampleMillis < 0 {
		errs = append(errs, &ValidationError{
			Field:   "safety.cpuSampleMillis",
			Message: "must not be negative",
		})
	}
	return errs
}

func (c *Config) validateExecution() []error {
	var errs []error
	if c.Execution.Workers < 1 {
		errs = append(errs, &ValidationError{
			Field:   "execution.workers",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Execution.Workers),
		})
	}
	if c.Execution.StageTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "execution.stageTimeoutSeconds",
			Message: "must be at least 1",
		})
	}
	if c.Execution.RunTimeoutMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "execution.runTimeoutMinutes",
			Message: "must be at least 1",
		})
	} else if c.StageTimeout() > c.RunTimeout() {
		errs = append(errs, &ValidationError{
			Field:   "execution.stageTimeoutSeconds",
			Message: "stage timeout must not exceed the run timeout",
		})
	}
	if c.Execution.VerifyDelaySeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "execution.verifyDelaySeconds",
			Message: "must not be negative",
		})
	}
	return errs
}
