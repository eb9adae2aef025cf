package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/audit"
	"github.com/kubilitics/kubilitics-agent/internal/config"
	"github.com/kubilitics/kubilitics-agent/internal/lockfile"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/orchestrator"
	"github.com/kubilitics/kubilitics-agent/internal/quota"
	"github.com/kubilitics/kubilitics-agent/internal/safety"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubModule struct {
	name      string
	issues    int
	detectErr error
	fixCalls  int
}

func (s *stubModule) Name() string { return s.name }

func (s *stubModule) Detect(context.Context) (*module.DetectionResult, error) {
	if s.detectErr != nil {
		return nil, s.detectErr
	}
	var issues []module.Issue
	for i := 0; i < s.issues; i++ {
		issues = append(issues, module.NewIssue(s.name, "check", fmt.Sprint(i), "broken", module.SeverityWarning))
	}
	return module.NewDetectionResult(issues), nil
}

func (s *stubModule) Fix(_ context.Context, issues []module.Issue) (*module.RemediationResult, error) {
	s.fixCalls++
	res := module.NewRemediationResult()
	for _, i := range issues {
		res.AddAction("repaired " + i.Resource)
	}
	return res.Complete(), nil
}

type idleHost struct{}

func (idleHost) Now() time.Time                                { return time.Now() }
func (idleHost) ActiveSessions(context.Context) (int, error)   { return 0, nil }
func (idleHost) CPUPercent(context.Context) (float64, error)   { return 1, nil }
func (idleHost) Uptime(context.Context) (time.Duration, error) { return 24 * time.Hour, nil }
func (idleHost) PendingReboot(context.Context) (bool, error)   { return false, nil }

type env struct {
	dir        string
	configPath string
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
	mods       []module.FaultModule
}

func newEnv(t *testing.T, mods ...module.FaultModule) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
enableSafetyChecks: false
maxRemediationsPerDay: 5
allowedRemediationModules: [network, disk]
execution:
  verifyDelaySeconds: 0
paths:
  logDir: %[1]s/logs
  stateDB: %[1]s/state.db
  lockFile: %[1]s/agent.lock
metrics:
  textfilePath: %[1]s/agent.prom
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &env{dir: dir, configPath: path, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, mods: mods}
}

func (e *env) app() *app {
	return &app{
		stdout: e.stdout,
		stderr: e.stderr,
		runner: sysexec.NewFakeRunner(),
		register: func(reg *module.Registry, _ *config.Config, _ sysexec.Runner, _ *zap.Logger) error {
			for _, m := range e.mods {
				if err := reg.Register(m); err != nil {
					return err
				}
			}
			return nil
		},
		signals: func(*config.Config, sysexec.Runner) safety.Signals { return idleHost{} },
	}
}

func (e *env) run(args ...string) int {
	e.stdout.Reset()
	e.stderr.Reset()
	return execute(e.app(), append([]string{"--config", e.configPath}, args...))
}

func TestRunRemediatesAndReports(t *testing.T) {
	net := &stubModule{name: "network", issues: 2}
	disk := &stubModule{name: "disk"}
	e := newEnv(t, net, disk)

	code := e.run("--silent")
	require.Equal(t, orchestrator.ExitOK, code, e.stderr.String())
	assert.Equal(t, 1, net.fixCalls)
	assert.Zero(t, disk.fixCalls)
	assert.Empty(t, e.stdout.String(), "silent run prints nothing")

	reports, err := filepath.Glob(filepath.Join(e.dir, "logs", "reports", "*.json"))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, p := range reports {
		rep, err := audit.Load(p)
		require.NoError(t, err)
		switch rep.Module {
		case "network":
			assert.Equal(t, "REMEDIATED", string(rep.ResolutionStatus))
		case "disk":
			assert.Equal(t, "NO_ISSUES", string(rep.ResolutionStatus))
		}
	}

	assert.FileExists(t, filepath.Join(e.dir, "logs", audit.ExecutionLogName(time.Now())))
	assert.FileExists(t, filepath.Join(e.dir, "logs", AuditLogName))
	assert.FileExists(t, filepath.Join(e.dir, "agent.prom"))
}

func TestRunPrintsSummary(t *testing.T) {
	e := newEnv(t, &stubModule{name: "network", issues: 1}, &stubModule{name: "disk"})

	code := e.run("run", "--modules", "network,printer")
	require.Equal(t, orchestrator.ExitOK, code)

	out := e.stdout.String()
	assert.Contains(t, out, "skipped printer (unknown)")
	assert.Contains(t, out, "REMEDIATED")
	assert.Contains(t, out, "run finished: 1 module(s), REMEDIATED=1")
}

func TestRunTestOnly(t *testing.T) {
	net := &stubModule{name: "network", issues: 1}
	e := newEnv(t, net)

	code := e.run("--test-only", "--silent")
	require.Equal(t, orchestrator.ExitOK, code)
	assert.Zero(t, net.fixCalls)
}

func TestRunModuleErrorExitsOne(t *testing.T) {
	e := newEnv(t, &stubModule{name: "network", detectErr: errors.New("route table unreadable")}, &stubModule{name: "disk"})

	code := e.run()
	assert.Equal(t, orchestrator.ExitModuleError, code)
	assert.Contains(t, e.stdout.String(), "ERROR=1")
}

func TestRunLockHeld(t *testing.T) {
	net := &stubModule{name: "network", issues: 1}
	e := newEnv(t, net)

	lock, err := lockfile.Acquire(filepath.Join(e.dir, "agent.lock"))
	require.NoError(t, err)
	defer lock.Release()

	code := e.run("--silent")
	assert.Equal(t, orchestrator.ExitNotStarted, code)
	assert.Contains(t, e.stderr.String(), "another agent run holds")
	assert.Zero(t, net.fixCalls)
}

func TestStatusAndHistory(t *testing.T) {
	e := newEnv(t, &stubModule{name: "network", issues: 1}, &stubModule{name: "disk"})
	require.Equal(t, orchestrator.ExitOK, e.run("--silent"))

	require.Equal(t, orchestrator.ExitOK, e.run("status", "-o", "json"))
	var st quota.Status
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &st))
	assert.Equal(t, 1, st.Used)
	assert.Equal(t, 5, st.Max)
	assert.Equal(t, 4, st.Remaining)

	require.Equal(t, orchestrator.ExitOK, e.run("history", "--module", "network"))
	lines := strings.Split(strings.TrimSpace(e.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "MODULE")
	assert.Contains(t, lines[1], "REMEDIATED")

	require.Equal(t, orchestrator.ExitOK, e.run("history", "--limit", "1"))
	assert.Len(t, strings.Split(strings.TrimSpace(e.stdout.String()), "\n"), 2)
}

func TestConfigShowFallsBackToDefaults(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	a := &app{stdout: stdout, stderr: stderr}

	code := execute(a, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show"})
	require.Equal(t, orchestrator.ExitOK, code)
	assert.Contains(t, stdout.String(), "maxRemediationsPerDay: 5")
	assert.Contains(t, stdout.String(), "businessHoursEnd: 18")
	assert.Contains(t, stderr.String(), "warning:")
}

func TestInvalidConfigKeepsHomeRelocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("KUBILITICS_AGENT_HOME", home)

	e := newEnv(t, &stubModule{name: "network"}, &stubModule{name: "disk"})
	require.NoError(t, os.WriteFile(e.configPath, []byte("checkIntervalHours: 0\n"), 0o600))

	code := e.run("--silent")
	require.Equal(t, orchestrator.ExitOK, code, e.stderr.String())
	assert.FileExists(t, filepath.Join(home, "state.db"))
	assert.FileExists(t, filepath.Join(home, "logs", audit.ExecutionLogName(time.Now())))
	assert.FileExists(t, filepath.Join(home, "logs", AuditLogName))
}

func TestBadOutputFormat(t *testing.T) {
	e := newEnv(t)
	code := e.run("status", "-o", "xml")
	assert.Equal(t, orchestrator.ExitNotStarted, code)
	assert.Contains(t, e.stderr.String(), "unsupported output")
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, orchestrator.ExitOK, e.run("version"))
	assert.True(t, strings.HasPrefix(e.stdout.String(), "kubilitics-agent dev"))
}
