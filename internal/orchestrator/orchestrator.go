package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/audit"
	"github.com/kubilitics/kubilitics-agent/internal/metrics"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/quota"
	"github.com/kubilitics/kubilitics-agent/internal/report"
	"github.com/kubilitics/kubilitics-agent/internal/safety"
	"go.uber.org/zap"
)

// Package orchestrator drives every selected module through the pipeline:
//
//   Idle → Detecting → NoIssuesFound                                   NO_ISSUES
//                    → IssuesFound → (test-only)                       TEST_ONLY
//                                  → GateCheck → Postponed             FAILED
//                                              → Remediating → Verifying
//                                                            → Reported
//
// Error is reachable from every state and ends only that module. Nothing a
// module does (error, panic, hang past its stage timeout) can stop a sibling
// from being run and reported.

// SafetyGate decides whether remediation may run now.
type SafetyGate interface {
	Evaluate(ctx context.Context, force bool) *safety.SafetyCheckResult
}

// QuotaTracker enforces the daily remediation ceiling.
type QuotaTracker interface {
	TryConsume(ctx context.Context) (bool, error)
	Status(ctx context.Context) (*quota.Status, error)
	ExceededMessage() string
}

// ReportSink persists a sealed report and returns where it went.
type ReportSink interface {
	Record(ctx context.Context, runStarted time.Time, rep *report.RunReport) string
}

// Pruner applies report retention.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (*audit.PruneResult, error)
}

// Deps are the orchestrator's collaborators. Events, Metrics and Retention
// are optional.
type Deps struct {
	Registry  *module.Registry
	Gate      SafetyGate
	Quota     QuotaTracker
	Reporter  ReportSink
	Events    audit.EventLogger
	Metrics   *metrics.Metrics
	Retention Pruner
}

// Orchestrator runs modules and aggregates their reports.
type Orchestrator struct {
	registry  *module.Registry
	gate      SafetyGate
	quota     QuotaTracker
	reporter  ReportSink
	events    audit.EventLogger
	metrics   *metrics.Metrics
	retention Pruner
}

// New creates an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Gate == nil || deps.Quota == nil || deps.Reporter == nil {
		return nil, errors.New("orchestrator: registry, gate, quota and reporter are required")
	}
	events := deps.Events
	if events == nil {
		events = audit.NewNopEventLogger()
	}
	return &Orchestrator{
		registry:  deps.Registry,
		gate:      deps.Gate,
		quota:     deps.Quota,
		reporter:  deps.Reporter,
		events:    events,
		metrics:   deps.Metrics,
		retention: deps.Retention,
	}, nil
}

// Skip reasons.
const (
	SkipUnknown    = "unknown"
	SkipNotAllowed = "not_allowed"
)

// Skip is a requested module that was not run.
type Skip struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

// Select resolves the module list for a run.
func (o *Orchestrator) Select(rc *RunContext) ([]string, []Skip) {
	requested := rc.Options.Modules
	explicit := len(requested) > 0
	if !explicit {
		requested = rc.Config.AllowedRemediationModules
		if len(requested) == 0 {
			requested = o.registry.Names()
		}
	}

	var selected []string
	var skipped []Skip
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch {
		case !o.registry.Has(name):
			skipped = append(skipped, Skip{Module: name, Reason: SkipUnknown})
		case explicit && !rc.Config.ModuleAllowed(name):
			skipped = append(skipped, Skip{Module: name, Reason: SkipNotAllowed})
		default:
			selected = append(selected, name)
		}
	}
	return selected, skipped
}

// Run executes the pipeline for every selected module and returns the
// summary. Reports are in selection order regardless of worker count.
func (o *Orchestrator) Run(ctx context.Context, rc *RunContext) *Summary {
	log := rc.Logger.Named("Orchestrator")

	if rc.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.RunTimeout)
		defer cancel()
	}

	selected, skipped := o.Select(rc)
	for _, s := range skipped {
		o.metrics.ObserveSkip(s.Reason)
		_ = o.events.LogModuleSkipped(ctx, rc.RunID, s.Module, s.Reason)
		if s.Reason == SkipUnknown {
			log.Warn("unknown module skipped", zap.String("operation", "SelectModules"), zap.String("module", s.Module))
		} else {
			log.Info("module not in allowedRemediationModules, skipped", zap.String("operation", "SelectModules"), zap.String("module", s.Module))
		}
	}

	log.Info(fmt.Sprintf("run started with %d module(s)", len(selected)),
		zap.String("operation", "Run"),
		zap.String("run_id", rc.RunID),
		zap.Strings("modules", selected),
		zap.Bool("test_only", rc.Options.TestOnly),
		zap.Bool("force", rc.Options.Force),
	)
	_ = o.events.LogRunStarted(ctx, rc.RunID, selected, rc.Options.TestOnly, rc.Options.Force)

	// Reporting outlives cancellation so an interrupted run is still recorded.
	persistCtx := context.WithoutCancel(ctx)

	reports := make([]*report.RunReport, len(selected))
	paths := make([]string, len(selected))

	workers := rc.Config.Execution.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, name := range selected {
		m, _ := o.registry.Get(name)

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, m module.FaultModule) {
			defer wg.Done()
			defer func() { <-sem }()

			rep := o.runModule(ctx, rc, m)
			reports[i] = rep
			paths[i] = o.reporter.Record(persistCtx, rc.StartedAt, rep)
			o.metrics.ObserveResolution(rep.Module, string(rep.ResolutionStatus))
			_ = o.events.LogModuleReported(persistCtx, rep)
		}(i, m)
	}
	wg.Wait()

	summary := newSummary(rc, reports, paths, skipped)

	if st, err := o.quota.Status(persistCtx); err == nil {
		o.metrics.SetQuota(st.Used, st.Max)
	}
	o.metrics.RunFinished(summary.FinishedAt, summary.Duration())

	if o.retention != nil {
		pctx, cancel := context.WithTimeout(persistCtx, 30*time.Second)
		if _, err := o.retention.Prune(pctx, rc.Config.MaxLogAge()); err != nil {
			log.Warn("retention incomplete", zap.String("operation", "Prune"), zap.Error(err))
		}
		cancel()
	}

	log.Info(summary.String(),
		zap.String("operation", "Run"),
		zap.String("run_id", rc.RunID),
		zap.Duration("duration", summary.Duration()),
		zap.Int("exit_code", summary.ExitCode()),
	)
	_ = o.events.LogRunCompleted(persistCtx, rc.RunID, summary.Counts, summary.Duration())

	return summary
}

// runModule moves one module from Idle to Reported.
func (o *Orchestrator) runModule(ctx context.Context, rc *RunContext, m module.FaultModule) *report.RunReport {
	name := m.Name()
	log := rc.Logger.Named("Orchestrator").With(zap.String("module", name))
	out := report.Outcome{
		RunID:     rc.RunID,
		Module:    name,
		StartedAt: time.Now(),
		TestOnly:  rc.Options.TestOnly,
		Forced:    rc.Options.Force,
	}

	fail := func(stage string, err error) *report.RunReport {
		out.Err = err
		fields := []zap.Field{zap.String("operation", stage), zap.Error(err)}
		var pe *PanicError
		if errors.As(err, &pe) {
			fields = append(fields, zap.String("stack", pe.Stack))
		}
		log.Error("module failed", fields...)
		_ = o.events.LogModuleFailed(context.WithoutCancel(ctx), rc.RunID, name, stage, err)
		return report.New(out)
	}

	// Detecting
	start := time.Now()
	det, err := runStage(ctx, rc.StageTimeout, func(ctx context.Context) (*module.DetectionResult, error) {
		return m.Detect(ctx)
	})
	o.metrics.ObserveStage(name, metrics.StageDetect, time.Since(start))
	if err != nil {
		return fail("Detect", classify(ctx, err, agenterr.KindDetection, name+".Detect", name, rc.StageTimeout))
	}
	if det == nil {
		return fail("Detect", agenterr.New(agenterr.KindDetection, name+".Detect", "no detection result").ForModule(name))
	}
	out.Detection = det
	log.Info(fmt.Sprintf("detected %d issue(s)", len(det.Issues)), zap.String("operation", "Detect"))
	_ = o.events.LogModuleDetected(ctx, rc.RunID, name, len(det.Issues), time.Since(start))

	if !det.HasIssues && !rc.Options.Force {
		return report.New(out)
	}
	if rc.Options.TestOnly {
		log.Info("test-only run, remediation withheld", zap.String("operation", "Detect"))
		return report.New(out)
	}

	// GateCheck
	gate := o.gate.Evaluate(ctx, rc.Options.Force)
	if err := ctx.Err(); err != nil {
		return fail("GateCheck", classify(ctx, err, agenterr.KindCanceled, name+".GateCheck", name, rc.StageTimeout))
	}
	if !gate.Passed {
		for _, check := range gate.FailedChecks() {
			o.metrics.ObserveGateFailure(check)
		}
		out.Postponed = gate.Reasons
		_ = o.events.LogGateDenied(ctx, rc.RunID, name, gate.Reasons)
		log.Warn("remediation postponed by safety gate",
			zap.String("operation", "GateCheck"),
			zap.Strings("reasons", gate.Reasons),
		)
		return report.New(out)
	}
	if gate.Forced {
		_ = o.events.LogGateForced(ctx, rc.RunID, name)
	}

	ok, err := o.quota.TryConsume(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fail("GateCheck", classify(ctx, ctxErr, agenterr.KindCanceled, name+".GateCheck", name, rc.StageTimeout))
	}
	if err != nil {
		out.Postponed = []string{"quota unavailable: " + err.Error()}
		log.Warn("remediation postponed, quota state unreadable", zap.String("operation", "GateCheck"), zap.Error(err))
		return report.New(out)
	}
	if !ok {
		msg := o.quota.ExceededMessage()
		out.Postponed = []string{msg}
		_ = o.events.LogQuotaExhausted(ctx, rc.RunID, name, msg)
		log.Warn("remediation postponed: "+msg, zap.String("operation", "GateCheck"))
		return report.New(out)
	}

	// Remediating
	start = time.Now()
	rem, err := runStage(ctx, rc.StageTimeout, func(ctx context.Context) (*module.RemediationResult, error) {
		return m.Fix(ctx, det.Issues)
	})
	o.metrics.ObserveStage(name, metrics.StageFix, time.Since(start))
	if err != nil {
		return fail("Fix", classify(ctx, err, agenterr.KindRemediation, name+".Fix", name, rc.StageTimeout))
	}
	if rem == nil {
		return fail("Fix", agenterr.New(agenterr.KindRemediation, name+".Fix", "no remediation result").ForModule(name))
	}
	out.Remediation = rem
	for _, e := range rem.Errors {
		log.Warn("fix action failed: "+e, zap.String("operation", "Fix"))
	}
	log.Info(fmt.Sprintf("%d action(s) taken, success=%t", len(rem.ActionsTaken), rem.Success), zap.String("operation", "Fix"))
	_ = o.events.LogModuleRemediated(ctx, rc.RunID, name, rem.ActionsTaken, rem.Errors, time.Since(start))

	v, hasVerify := m.(module.Verifier)
	if !hasVerify {
		return report.New(out)
	}

	// Verifying
	if err := sleepCtx(ctx, rc.VerifyDelay); err != nil {
		return fail("Verify", classify(ctx, err, agenterr.KindVerification, name+".Verify", name, rc.StageTimeout))
	}
	start = time.Now()
	ver, err := runStage(ctx, rc.StageTimeout, func(ctx context.Context) (*module.VerificationResult, error) {
		return v.Verify(ctx, det.Issues)
	})
	o.metrics.ObserveStage(name, metrics.StageVerify, time.Since(start))
	if err != nil {
		return fail("Verify", classify(ctx, err, agenterr.KindVerification, name+".Verify", name, rc.StageTimeout))
	}
	if ver == nil {
		return fail("Verify", agenterr.New(agenterr.KindVerification, name+".Verify", "no verification result").ForModule(name))
	}
	out.Verification = ver
	log.Info("verification "+string(ver.Status), zap.String("operation", "Verify"))
	_ = o.events.LogModuleVerified(ctx, rc.RunID, name, string(ver.Status), time.Since(start))

	return report.New(out)
}
