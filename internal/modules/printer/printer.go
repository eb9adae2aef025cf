// Package printer checks the print spooler and clears stuck jobs.
package printer

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/modules/service"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"go.uber.org/zap"
)

// Name is the registry key.
const Name = "printer"

// Check names.
const (
	CheckScheduler = "scheduler"
	CheckQueue     = "queue"
)

// Plan is the platform-specific spooler layout.
type Plan struct {
	// Spooler is the service unit of the print scheduler.
	Spooler string
	// ListJobs prints queued jobs; CountJobs turns its output into a number.
	ListJobs  []string
	CountJobs func(out string) (int, error)
	// CancelJobs drops every queued job.
	CancelJobs []string
}

// PlanFor returns the spooler layout for goos.
func PlanFor(goos string) Plan {
	switch goos {
	case "windows":
		return Plan{
			Spooler:    "Spooler",
			ListJobs:   []string{"powershell", "-NoProfile", "-Command", "(Get-Printer | Get-PrintJob | Measure-Object).Count"},
			CountJobs:  parseCount,
			CancelJobs: []string{"powershell", "-NoProfile", "-Command", "Get-Printer | Get-PrintJob | Remove-PrintJob"},
		}
	case "darwin":
		return Plan{
			Spooler:    "org.cups.cupsd",
			ListJobs:   []string{"lpstat", "-o"},
			CountJobs:  countLines,
			CancelJobs: []string{"cancel", "-a"},
		}
	default:
		return Plan{
			Spooler:    "cups",
			ListJobs:   []string{"lpstat", "-o"},
			CountJobs:  countLines,
			CancelJobs: []string{"cancel", "-a"},
		}
	}
}

func countLines(out string) (int, error) {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}

func parseCount(out string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(out))
}

// Module is the printer fault module.
type Module struct {
	maxQueued int
	plan      Plan
	runner    sysexec.Runner
	services  service.Manager
	logger    *zap.Logger
}

// New creates the module for the current platform. maxQueued is the number
// of queued jobs tolerated before the queue counts as stuck.
func New(maxQueued int, runner sysexec.Runner, logger *zap.Logger) *Module {
	return NewWithPlan(maxQueued, PlanFor(runtime.GOOS), runner, service.ManagerFor(runtime.GOOS, runner), logger)
}

// NewWithPlan creates the module with an explicit plan and service manager.
func NewWithPlan(maxQueued int, plan Plan, runner sysexec.Runner, services service.Manager, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		maxQueued: maxQueued,
		plan:      plan,
		runner:    runner,
		services:  services,
		logger:    logger.Named("PrinterModule"),
	}
}

func (m *Module) Name() string { return Name }

// Detect checks the scheduler and then the queue. Hosts without a print
// spooler have nothing to check.
func (m *Module) Detect(ctx context.Context) (*module.DetectionResult, error) {
	log := m.logger.With(zap.String("operation", "CheckSpooler"))

	state, err := m.services.Status(ctx, m.plan.Spooler)
	if err != nil {
		if sysexec.IsNotFound(err) {
			log.Info("no service manager, printer checks skipped")
			return module.NewDetectionResult(nil), nil
		}
		return nil, agenterr.Wrap(agenterr.KindDetection, "printer.Detect", err, "cannot query print spooler")
	}
	if state == service.StateNotFound {
		log.Info("print spooler not installed, nothing to check")
		return module.NewDetectionResult(nil), nil
	}

	var issues []module.Issue
	if state != service.StateRunning {
		desc := fmt.Sprintf("Print spooler %s is not running (%s)", m.plan.Spooler, state)
		log.Warn(desc)
		issues = append(issues, module.NewIssue(Name, CheckScheduler, m.plan.Spooler, desc, module.SeverityWarning))
		// A stopped scheduler cannot report its queue.
		return module.NewDetectionResult(issues), nil
	}
	log.Debug("print spooler running")

	if issue, ok := m.checkQueue(ctx); !ok {
		issues = append(issues, issue)
	}
	return module.NewDetectionResult(issues), nil
}

// queueDepth returns the number of queued jobs.
func (m *Module) queueDepth(ctx context.Context) (int, error) {
	out, err := m.runner.Run(ctx, m.plan.ListJobs[0], m.plan.ListJobs[1:]...)
	if err != nil {
		return 0, err
	}
	return m.plan.CountJobs(out)
}

func (m *Module) checkQueue(ctx context.Context) (module.Issue, bool) {
	log := m.logger.With(zap.String("operation", "CheckQueue"))

	n, err := m.queueDepth(ctx)
	if err != nil {
		// An unreadable queue is not reported as an issue.
		log.Warn("cannot read print queue", zap.Error(err))
		return module.Issue{}, true
	}
	if n <= m.maxQueued {
		log.Debug(fmt.Sprintf("%d job(s) queued", n))
		return module.Issue{}, true
	}

	desc := fmt.Sprintf("%d print job(s) in queue", n)
	log.Warn(desc)
	return module.NewIssue(Name, CheckQueue, m.plan.Spooler, desc, module.SeverityWarning).
		WithDetail("jobs", n), false
}

// Fix restarts the spooler for a scheduler issue and cancels queued jobs for
// a queue issue. When both are present the restart runs first. Each action is
// skipped when the host no longer shows the fault.
func (m *Module) Fix(ctx context.Context, issues []module.Issue) (*module.RemediationResult, error) {
	res := module.NewRemediationResult()

	var restart, cancel bool
	for _, issue := range issues {
		switch issue.Check {
		case CheckScheduler:
			restart = true
		case CheckQueue:
			cancel = true
		}
	}

	if restart {
		log := m.logger.With(zap.String("operation", "RestartSpooler"))
		if state, err := m.services.Status(ctx, m.plan.Spooler); err == nil && state == service.StateRunning {
			log.Info("spooler already running, restart skipped")
		} else if err := m.services.Restart(ctx, m.plan.Spooler); err != nil {
			log.Error("spooler restart failed", zap.Error(err))
			res.AddError(fmt.Sprintf("restart %s: %v", m.plan.Spooler, err))
		} else {
			log.Info("spooler restarted")
			res.AddAction(fmt.Sprintf("restarted print spooler %s", m.plan.Spooler))
		}
	}

	if cancel {
		log := m.logger.With(zap.String("operation", "ClearQueue"))
		if n, err := m.queueDepth(ctx); err == nil && n <= m.maxQueued {
			log.Info(fmt.Sprintf("%d job(s) queued, nothing to cancel", n))
		} else if _, err := m.runner.Run(ctx, m.plan.CancelJobs[0], m.plan.CancelJobs[1:]...); err != nil {
			log.Error("clearing print queue failed", zap.Error(err))
			res.AddError(fmt.Sprintf("clear print queue: %v", err))
		} else {
			log.Info("print queue cleared")
			res.AddAction("cancelled all queued print jobs")
		}
	}
	return res.Complete(), nil
}

// Verify re-runs detection for the original issues.
func (m *Module) Verify(ctx context.Context, originalIssues []module.Issue) (*module.VerificationResult, error) {
	return module.VerifyByRedetect(ctx, m, originalIssues)
}
