package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/audit"
	"github.com/kubilitics/kubilitics-agent/internal/config"
	"github.com/kubilitics/kubilitics-agent/internal/db"
	"github.com/kubilitics/kubilitics-agent/internal/lockfile"
	"github.com/kubilitics/kubilitics-agent/internal/metrics"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/orchestrator"
	"github.com/kubilitics/kubilitics-agent/internal/quota"
	"github.com/kubilitics/kubilitics-agent/internal/safety"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AuditLogName is the audit event file inside the log directory.
const AuditLogName = "audit.log"

func addRunFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().StringSliceVar(&a.modules, "modules", nil, "comma-separated modules to run (default: allowedRemediationModules)")
	cmd.Flags().BoolVar(&a.testOnly, "test-only", false, "detect only; never remediate")
	cmd.Flags().BoolVar(&a.force, "force", false, "remediate even without issues and bypass the safety gate (never the quota)")
	cmd.Flags().BoolVar(&a.silent, "silent", false, "suppress console output; logs and reports are still written")
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Detect and remediate faults (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAgent(cmd.Context())
		},
	}
	addRunFlags(cmd, a)
	return cmd
}

func hostSignals(cfg *config.Config, runner sysexec.Runner) safety.Signals {
	return safety.NewHostSignals(runner, time.Duration(cfg.Safety.CPUSampleMillis)*time.Millisecond)
}

// loadConfig never fails: a missing, malformed or invalid file yields the
// built-in defaults (still honouring KUBILITICS_AGENT_HOME) plus the
// ConfigError to report.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return config.DefaultsFromEnv(), err
	}
	if err := mgr.Load(ctx); err != nil {
		return mgr.Get(ctx), err
	}
	if err := mgr.Validate(ctx); err != nil {
		return config.DefaultsFromEnv(), err
	}
	return mgr.Get(ctx), nil
}

func (a *app) options() orchestrator.Options {
	var names []string
	for _, m := range a.modules {
		if m = strings.TrimSpace(m); m != "" {
			names = append(names, m)
		}
	}
	return orchestrator.Options{
		Modules:  names,
		TestOnly: a.testOnly,
		Force:    a.force,
		Silent:   a.silent,
	}
}

func notStarted(err error) error {
	return &exitError{code: orchestrator.ExitNotStarted, err: err}
}

// runAgent is one invocation of the remediation pipeline.
func (a *app) runAgent(ctx context.Context) error {
	cfg, cfgErr := a.loadConfig(ctx)

	logCfg := audit.DefaultConfig()
	logCfg.LogDir = cfg.Paths.LogDir
	logCfg.Level = cfg.Logging.Level
	logCfg.MaxSize = cfg.Logging.MaxSizeMB
	logCfg.MaxBackups = cfg.Logging.MaxBackups
	logCfg.MaxAge = cfg.MaxLogAgeDays
	logCfg.Compress = cfg.Logging.Compress
	logCfg.Silent = a.silent
	logCfg.Console = a.stderr

	execLog, err := audit.NewExecutionLogger(logCfg, time.Now())
	if err != nil {
		return notStarted(fmt.Errorf("open execution log: %w", err))
	}
	defer execLog.Close()
	logger := execLog.Logger.Named("Agent")

	events, err := audit.NewEventLogger(audit.EventLogConfig{
		Path:       filepath.Join(execLog.Dir, AuditLogName),
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.MaxLogAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		logger.Warn("audit log unavailable", zap.String("operation", "Startup"), zap.Error(err))
		events = audit.NewNopEventLogger()
	}
	defer events.Close()

	rc := orchestrator.NewRunContext(cfg, a.options(), execLog.Logger)

	if cfgErr != nil {
		logger.Warn("configuration unusable, built-in defaults applied",
			zap.String("operation", "LoadConfig"), zap.String("path", a.configPath), zap.Error(cfgErr))
		_ = events.LogConfigDefaulted(ctx, rc.RunID, cfgErr)
	} else {
		_ = events.LogConfigLoaded(ctx, rc.RunID, a.configPath)
	}

	lock, err := lockfile.Acquire(cfg.Paths.LockFile)
	if err != nil {
		logger.Error("run not started", zap.String("operation", "Startup"), zap.Error(err))
		_ = events.LogRunAborted(ctx, rc.RunID, err)
		return notStarted(err)
	}
	defer lock.Release()

	store, err := db.NewSQLiteStore(cfg.Paths.StateDB)
	if err != nil {
		err = agenterr.Wrap(agenterr.KindPersistence, "cli.run", err, "open state database")
		logger.Error("run not started", zap.String("operation", "Startup"), zap.Error(err))
		_ = events.LogRunAborted(ctx, rc.RunID, err)
		return notStarted(err)
	}
	defer store.Close()

	reg := module.NewRegistry()
	if err := a.register(reg, cfg, a.runner, execLog.Logger); err != nil {
		logger.Error("run not started", zap.String("operation", "Startup"), zap.Error(err))
		_ = events.LogRunAborted(ctx, rc.RunID, err)
		return notStarted(err)
	}

	reporter := audit.NewReporter(cfg.ReportDir(), store, execLog.Logger)
	m := metrics.New()
	orch, err := orchestrator.New(orchestrator.Deps{
		Registry:  reg,
		Gate:      safety.NewGate(safety.PolicyFromConfig(cfg), a.signals(cfg, a.runner), execLog.Logger),
		Quota:     quota.NewTracker(store, cfg.MaxRemediationsPerDay),
		Reporter:  reporter,
		Events:    events,
		Metrics:   m,
		Retention: reporter,
	})
	if err != nil {
		return notStarted(err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := orch.Run(ctx, rc)

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			logger.Warn("metrics snapshot not written", zap.String("operation", "WriteMetrics"), zap.String("path", path), zap.Error(err))
		}
	}

	if !a.silent {
		a.printSummary(summary)
	}

	if code := summary.ExitCode(); code != orchestrator.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func (a *app) printSummary(s *orchestrator.Summary) {
	for _, sk := range s.Skipped {
		fmt.Fprintf(a.stdout, "skipped %s (%s)\n", sk.Module, sk.Reason)
	}
	for _, r := range s.Reports {
		line := fmt.Sprintf("%-10s %-11s issues=%d actions=%d", r.Module, r.ResolutionStatus, r.IssueCount(), r.ActionCount())
		if r.Error != "" {
			line += " error=" + r.Error
		}
		if len(r.PostponementReasons) > 0 {
			line += " postponed: " + strings.Join(r.PostponementReasons, "; ")
		}
		fmt.Fprintln(a.stdout, line)
	}
	fmt.Fprintln(a.stdout, s.String())
}
