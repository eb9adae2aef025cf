package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/config"
	"go.uber.org/zap"
)

// Package safety provides the Safety Gate for kubilitics-agent.
//
// The gate decides whether remediation (never detection) may run right now.
// It sits between the detection result and the first disruptive action, so a
// module's Fix never runs while a user is at the machine.
//
// Gate Evaluation:
//   1. business_hours   local time outside [start, end)   (disable: safety.checkBusinessHours)
//   2. active_session   no interactive session            (disable: safety.checkActiveSessions)
//   3. uptime           booted at least minUptimeMinutes ago
//   4. cpu_load         sampled utilization below maxCpuPercent
//   5. pending_reboot   advisory only, adds a warning reason
//
// The gate passes iff every enabled check passes. enableSafetyChecks=false
// skips checks 1-4. A signal that cannot be read fails its check: the gate
// never passes on missing information.
//
// Force skips checks 1-4 but is recorded in the reasons. The daily quota is
// enforced elsewhere and is never bypassed.
//
// Reasons are always populated, on pass as well as on failure, so every
// decision can be audited.

// Check names.
const (
	CheckBusinessHours = "business_hours"
	CheckActiveSession = "active_session"
	CheckUptime        = "uptime"
	CheckCPULoad       = "cpu_load"
	CheckPendingReboot = "pending_reboot"
)

// Signals provides live environment readings.
type Signals interface {
	Now() time.Time
	ActiveSessions(ctx context.Context) (int, error)
	CPUPercent(ctx context.Context) (float64, error)
	Uptime(ctx context.Context) (time.Duration, error)
	PendingReboot(ctx context.Context) (bool, error)
}

// Policy is the gate configuration for one run.
type Policy struct {
	Enabled             bool
	CheckBusinessHours  bool
	BusinessHoursStart  int
	BusinessHoursEnd    int
	CheckActiveSessions bool
	MinUptime           time.Duration
	MaxCPUPercent       float64
}

// PolicyFromConfig builds the gate policy from a config snapshot.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Enabled:             cfg.EnableSafetyChecks,
		CheckBusinessHours:  cfg.Safety.CheckBusinessHours,
		BusinessHoursStart:  cfg.BusinessHoursStart,
		BusinessHoursEnd:    cfg.BusinessHoursEnd,
		CheckActiveSessions: cfg.Safety.CheckActiveSessions,
		MinUptime:           time.Duration(cfg.Safety.MinUptimeMinutes) * time.Minute,
		MaxCPUPercent:       cfg.Safety.MaxCPUPercent,
	}
}

// Check is a single gate evaluation.
type Check struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Skipped  bool   `json:"skipped"`
	Advisory bool   `json:"advisory,omitempty"`
	Reason   string `json:"reason"`
}

// SafetyCheckResult is the outcome of a gate evaluation.
type SafetyCheckResult struct {
	Passed  bool     `json:"passed"`
	Forced  bool     `json:"forced"`
	Reasons []string `json:"reasons"`
	Checks  []Check  `json:"checks"`
}

// FailedChecks returns the names of blocking checks that failed.
func (r *SafetyCheckResult) FailedChecks() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed && !c.Skipped && !c.Advisory {
			out = append(out, c.Name)
		}
	}
	return out
}

// Gate evaluates the policy against live signals.
type Gate struct {
	policy  Policy
	signals Signals
	logger  *zap.Logger
}

// NewGate creates a gate. A nil logger disables logging.
func NewGate(policy Policy, signals Signals, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{policy: policy, signals: signals, logger: logger.Named("SafetyGate")}
}

// Evaluate runs the gate.
func (g *Gate) Evaluate(ctx context.Context, force bool) *SafetyCheckResult {
	result := &SafetyCheckResult{Forced: force}

	switch {
	case force:
		for _, name := range []string{CheckBusinessHours, CheckActiveSession, CheckUptime, CheckCPULoad} {
			result.add(Check{Name: name, Passed: true, Skipped: true, Reason: name + " skipped: force flag set"})
		}
	case !g.policy.Enabled:
		for _, name := range []string{CheckBusinessHours, CheckActiveSession, CheckUptime, CheckCPULoad} {
			result.add(Check{Name: name, Passed: true, Skipped: true, Reason: name + " skipped: safety checks disabled"})
		}
	default:
		result.add(g.checkBusinessHours())
		result.add(g.checkActiveSession(ctx))
		result.add(g.checkUptime(ctx))
		result.add(g.checkCPU(ctx))
	}

	result.add(g.checkPendingReboot(ctx))

	result.Passed = len(result.FailedChecks()) == 0

	fields := []zap.Field{
		zap.String("operation", "Evaluate"),
		zap.Bool("passed", result.Passed),
		zap.Bool("forced", force),
		zap.Strings("reasons", result.Reasons),
	}
	if result.Passed {
		g.logger.Info("safety gate passed", fields...)
	} else {
		g.logger.Warn("safety gate failed", fields...)
	}
	return result
}

func (r *SafetyCheckResult) add(c Check) {
	r.Checks = append(r.Checks, c)
	r.Reasons = append(r.Reasons, c.Reason)
}

// InBusinessHours reports whether hour falls in [start, end). A window with
// start > end wraps past midnight; start == end is empty.
func InBusinessHours(hour, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

func (g *Gate) checkBusinessHours() Check {
	c := Check{Name: CheckBusinessHours}
	if !g.policy.CheckBusinessHours {
		c.Passed, c.Skipped = true, true
		c.Reason = "business hours check disabled"
		return c
	}

	now := g.signals.Now()
	window := fmt.Sprintf("%02d:00-%02d:00", g.policy.BusinessHoursStart, g.policy.BusinessHoursEnd)
	if InBusinessHours(now.Hour(), g.policy.BusinessHoursStart, g.policy.BusinessHoursEnd) {
		c.Reason = fmt.Sprintf("within business hours (%s, now %s)", window, now.Format("15:04"))
		return c
	}
	c.Passed = true
	c.Reason = fmt.Sprintf("outside business hours (%s)", window)
	return c
}

func (g *Gate) checkActiveSession(ctx context.Context) Check {
	c := Check{Name: CheckActiveSession}
	if !g.policy.CheckActiveSessions {
		c.Passed, c.Skipped = true, true
		c.Reason = "active session check disabled"
		return c
	}

	n, err := g.signals.ActiveSessions(ctx)
	if err != nil {
		c.Reason = g.unreadable("active sessions", err)
		return c
	}
	if n > 0 {
		c.Reason = fmt.Sprintf("%d active interactive session(s)", n)
		return c
	}
	c.Passed = true
	c.Reason = "no active interactive session"
	return c
}

func (g *Gate) checkUptime(ctx context.Context) Check {
	c := Check{Name: CheckUptime}
	up, err := g.signals.Uptime(ctx)
	if err != nil {
		c.Reason = g.unreadable("uptime", err)
		return c
	}
	if up < g.policy.MinUptime {
		c.Reason = fmt.Sprintf("system booted %s ago, waiting for %s to stabilize", up.Round(time.Second), g.policy.MinUptime)
		return c
	}
	c.Passed = true
	c.Reason = fmt.Sprintf("uptime %s", up.Round(time.Minute))
	return c
}

func (g *Gate) checkCPU(ctx context.Context) Check {
	c := Check{Name: CheckCPULoad}
	pct, err := g.signals.CPUPercent(ctx)
	if err != nil {
		c.Reason = g.unreadable("CPU utilization", err)
		return c
	}
	if pct >= g.policy.MaxCPUPercent {
		c.Reason = fmt.Sprintf("CPU at %.1f%%, ceiling %.0f%%", pct, g.policy.MaxCPUPercent)
		return c
	}
	c.Passed = true
	c.Reason = fmt.Sprintf("CPU at %.1f%%", pct)
	return c
}

func (g *Gate) checkPendingReboot(ctx context.Context) Check {
	c := Check{Name: CheckPendingReboot, Advisory: true, Passed: true}
	pending, err := g.signals.PendingReboot(ctx)
	switch {
	case err != nil:
		c.Reason = "pending reboot unknown: " + err.Error()
	case pending:
		c.Passed = false
		c.Reason = "warning: reboot pending"
	default:
		c.Reason = "no reboot pending"
	}
	return c
}

// unreadable records a SafetyGateError and returns the failing reason.
func (g *Gate) unreadable(signal string, err error) string {
	gerr := agenterr.Wrap(agenterr.KindSafetyGate, "safety."+signal, err, "signal unreadable")
	g.logger.Warn("safety signal unreadable, failing check",
		zap.String("operation", "Evaluate"),
		zap.String("signal", signal),
		zap.Error(gerr),
	)
	return fmt.Sprintf("cannot determine %s: %v", signal, err)
}
