package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.CheckIntervalHours)
	assert.Equal(t, 9, cfg.BusinessHoursStart)
	assert.Equal(t, 18, cfg.BusinessHoursEnd)
	assert.Equal(t, 10.0, cfg.DiskCleanupThresholdGB)
	assert.Equal(t, 5.0, cfg.DiskCleanupCriticalGB)
	assert.Equal(t, 30, cfg.MaxLogAgeDays)
	assert.Equal(t, []string{"network", "disk", "service", "printer"}, cfg.AllowedRemediationModules)
	assert.True(t, cfg.EnableSafetyChecks)
	assert.Equal(t, 5, cfg.MaxRemediationsPerDay)

	// Safety defaults
	assert.Equal(t, 10, cfg.Safety.MinUptimeMinutes)
	assert.Equal(t, 80.0, cfg.Safety.MaxCPUPercent)

	// Execution defaults
	assert.Equal(t, 1, cfg.Execution.Workers)
	assert.Equal(t, 120, cfg.Execution.RunTimeoutMinutes)

	assert.Equal(t, filepath.Join(cfg.Paths.LogDir, "reports"), cfg.ReportDir())
	assert.NotEmpty(t, cfg.Services.Critical)
	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "business hours start out of range",
			modifyFn: func(cfg *Config) {
				cfg.BusinessHoursStart = 25
			},
			wantError: true,
			errorMsg:  "hour must be between 0 and 23",
		},
		{
			name: "threshold below critical",
			modifyFn: func(cfg *Config) {
				cfg.DiskCleanupThresholdGB = 2
				cfg.DiskCleanupCriticalGB = 5
			},
			wantError: true,
			errorMsg:  "must not be below critical level",
		},
		{
			name: "negative quota",
			modifyFn: func(cfg *Config) {
				cfg.MaxRemediationsPerDay = -1
			},
			wantError: true,
			errorMsg:  "must not be negative",
		},
		{
			name: "zero quota is allowed",
			modifyFn: func(cfg *Config) {
				cfg.MaxRemediationsPerDay = 0
			},
			wantError: false,
		},
		{
			name: "unknown module",
			modifyFn: func(cfg *Config) {
				cfg.AllowedRemediationModules = []string{"disk", "registry"}
			},
			wantError: true,
			errorMsg:  `unknown module "registry"`,
		},
		{
			name: "cpu ceiling out of range",
			modifyFn: func(cfg *Config) {
				cfg.Safety.MaxCPUPercent = 150
			},
			wantError: true,
			errorMsg:  "must be in (0, 100]",
		},
		{
			name: "no workers",
			modifyFn: func(cfg *Config) {
				cfg.Execution.Workers = 0
			},
			wantError: true,
			errorMsg:  "must be at least 1",
		},
		{
			name: "stage timeout above run timeout",
			modifyFn: func(cfg *Config) {
				cfg.Execution.RunTimeoutMinutes = 1
				cfg.Execution.StageTimeoutSeconds = 120
			},
			wantError: true,
			errorMsg:  "stage timeout must not exceed the run timeout",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantError: true,
			errorMsg:  "invalid level",
		},
		{
			name: "invalid probe address",
			modifyFn: func(cfg *Config) {
				cfg.Network.ProbeAddress = "8.8.8.8"
			},
			wantError: true,
			errorMsg:  "invalid address format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			if tt.wantError {
				require.NotEmpty(t, errs, "expected validation errors")
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error containing %q, got %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs, "expected no validation errors, got %v", errs)
			}
		})
	}
}

func TestConfigManagerMissingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing.yaml")

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	err = mgr.Load(ctx)
	require.Error(t, err)
	assert.True(t, agenterr.IsKind(err, agenterr.KindConfig))
	assert.Contains(t, err.Error(), "not found")

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig().MaxRemediationsPerDay, cfg.MaxRemediationsPerDay)
	assert.Empty(t, mgr.Source())
	assert.NoError(t, mgr.Validate(ctx))
}

func TestConfigManagerLoadYAML(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := `
businessHoursStart: 8
businessHoursEnd: 17
maxRemediationsPerDay: 2
allowedRemediationModules:
  - disk
  - service
enableSafetyChecks: false
safety:
  maxCpuPercent: 65
execution:
  workers: 2
paths:
  logDir: /tmp/agent-logs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 8, cfg.BusinessHoursStart)
	assert.Equal(t, 17, cfg.BusinessHoursEnd)
	assert.Equal(t, 2, cfg.MaxRemediationsPerDay)
	assert.Equal(t, []string{"disk", "service"}, cfg.AllowedRemediationModules)
	assert.False(t, cfg.EnableSafetyChecks)
	assert.Equal(t, 65.0, cfg.Safety.MaxCPUPercent)
	assert.Equal(t, 2, cfg.Execution.Workers)
	assert.Equal(t, "/tmp/agent-logs/reports", cfg.ReportDir())
	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.Safety.MinUptimeMinutes)
	assert.Equal(t, path, mgr.Source())
}

func TestConfigManagerLoadJSON(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.json")

	content := `{"checkIntervalHours": 6, "diskCleanupThresholdGB": 20, "diskCleanupCriticalGB": 8}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 6, cfg.CheckIntervalHours)
	assert.Equal(t, 20.0, cfg.DiskCleanupThresholdGB)
	assert.Equal(t, 8.0, cfg.DiskCleanupCriticalGB)
}

func TestConfigManagerMalformedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxRemediationsPerDay: [unterminated"), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	err = mgr.Load(ctx)
	require.Error(t, err)
	assert.True(t, agenterr.IsKind(err, agenterr.KindConfig))
	assert.Equal(t, 5, mgr.Get(ctx).MaxRemediationsPerDay)
}

func TestConfigManagerEnvOverride(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()

	t.Setenv("KUBILITICS_AGENT_MAXREMEDIATIONSPERDAY", "9")
	t.Setenv("KUBILITICS_AGENT_HOME", home)

	mgr, err := NewConfigManager(filepath.Join(home, "absent.yaml"))
	require.NoError(t, err)
	_ = mgr.Load(ctx)

	cfg := mgr.Get(ctx)
	assert.Equal(t, 9, cfg.MaxRemediationsPerDay)
	assert.Equal(t, filepath.Join(home, "logs"), cfg.Paths.LogDir)
	assert.Equal(t, filepath.Join(home, "state.db"), cfg.Paths.StateDB)
}

func TestDefaultsFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("KUBILITICS_AGENT_HOME", home)

	cfg := DefaultsFromEnv()
	assert.Equal(t, filepath.Join(home, "logs"), cfg.Paths.LogDir)
	assert.Equal(t, filepath.Join(home, "state.db"), cfg.Paths.StateDB)
	assert.Equal(t, filepath.Join(home, "agent.lock"), cfg.Paths.LockFile)
	assert.Equal(t, DefaultConfig().MaxRemediationsPerDay, cfg.MaxRemediationsPerDay)
}

func TestConfigManagerValidateJoinsErrors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("businessHoursStart: 30\nexecution:\n  workers: 0\n"), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "businessHoursStart")
	assert.Contains(t, err.Error(), "execution.workers")
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cp := cfg.Clone()
	cp.AllowedRemediationModules[0] = "changed"
	cp.Services.Critical = append(cp.Services.Critical, "extra")

	assert.Equal(t, "network", cfg.AllowedRemediationModules[0])
	assert.NotContains(t, cfg.Services.Critical, "extra")
}

func TestModuleAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedRemediationModules = []string{"disk"}
	assert.True(t, cfg.ModuleAllowed("disk"))
	assert.False(t, cfg.ModuleAllowed("network"))

	cfg.AllowedRemediationModules = nil
	assert.True(t, cfg.ModuleAllowed("network"))
}
