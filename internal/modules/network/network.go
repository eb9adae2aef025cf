// Package network detects and repairs host connectivity faults: internet
// reachability, DNS resolution and the default gateway.
package network

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"go.uber.org/zap"
)

// Name is the registry key.
const Name = "network"

// Check names, used in Issue.Check.
const (
	CheckConnectivity = "connectivity"
	CheckDNS          = "dns"
	CheckGateway      = "gateway"
)

// Config tunes the probes.
type Config struct {
	ProbeAddress string
	DNSHost      string
	DialTimeout  time.Duration
}

// Module is the network fault module.
type Module struct {
	cfg    Config
	runner sysexec.Runner
	plan   Plan
	logger *zap.Logger

	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	lookup func(ctx context.Context, host string) ([]string, error)
}

// Option customizes a Module.
type Option func(*Module)

// WithPlan replaces the platform command plan.
func WithPlan(p Plan) Option {
	return func(m *Module) { m.plan = p }
}

// WithDialer replaces the TCP dial used by the connectivity probe.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(m *Module) { m.dial = dial }
}

// WithResolver replaces the DNS lookup.
func WithResolver(lookup func(ctx context.Context, host string) ([]string, error)) Option {
	return func(m *Module) { m.lookup = lookup }
}

// New creates the module for the current platform.
func New(cfg Config, runner sysexec.Runner, logger *zap.Logger, opts ...Option) *Module {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Module{
		cfg:    cfg,
		runner: runner,
		plan:   PlanFor(runtime.GOOS),
		logger: logger.Named("NetworkModule"),
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	m.dial = dialer.DialContext
	m.lookup = net.DefaultResolver.LookupHost
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string { return Name }

// Detect probes connectivity, DNS and the default gateway.
func (m *Module) Detect(ctx context.Context) (*module.DetectionResult, error) {
	var issues []module.Issue

	if issue, ok := m.checkConnectivity(ctx); !ok {
		issues = append(issues, issue)
	}
	if issue, ok := m.checkDNS(ctx); !ok {
		issues = append(issues, issue)
	}
	issue, ok, err := m.checkGateway(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		issues = append(issues, issue)
	}
	return module.NewDetectionResult(issues), nil
}

func (m *Module) checkConnectivity(ctx context.Context) (module.Issue, bool) {
	if m.cfg.ProbeAddress == "" {
		return module.Issue{}, true
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.dial(dialCtx, "tcp", m.cfg.ProbeAddress)
	if err != nil {
		m.logger.Warn("internet connectivity check failed",
			zap.String("operation", "CheckConnectivity"), zap.String("address", m.cfg.ProbeAddress), zap.Error(err))
		return module.NewIssue(Name, CheckConnectivity, m.cfg.ProbeAddress,
			fmt.Sprintf("No internet connectivity detected: %v", err), module.SeverityCritical), false
	}
	_ = conn.Close()
	m.logger.Debug("internet connectivity OK", zap.String("operation", "CheckConnectivity"))
	return module.Issue{}, true
}

func (m *Module) checkDNS(ctx context.Context) (module.Issue, bool) {
	if m.cfg.DNSHost == "" {
		return module.Issue{}, true
	}
	lookupCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	addrs, err := m.lookup(lookupCtx, m.cfg.DNSHost)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses returned")
	}
	if err != nil {
		m.logger.Warn("DNS resolution failed",
			zap.String("operation", "CheckDNS"), zap.String("host", m.cfg.DNSHost), zap.Error(err))
		return module.NewIssue(Name, CheckDNS, m.cfg.DNSHost,
			fmt.Sprintf("DNS resolution failed for %s: %v", m.cfg.DNSHost, err), module.SeverityWarning), false
	}
	m.logger.Debug("DNS resolution OK", zap.String("operation", "CheckDNS"), zap.String("address", addrs[0]))
	return module.Issue{}, true
}

// checkGateway returns an error only when the route table cannot be read at
// all, which means detection itself is broken on this host.
func (m *Module) checkGateway(ctx context.Context) (module.Issue, bool, error) {
	out, err := m.runner.Run(ctx, m.plan.Gateway[0], m.plan.Gateway[1:]...)
	if err != nil && sysexec.IsNotFound(err) {
		return module.Issue{}, false, agenterr.Wrap(agenterr.KindDetection, "network.Detect", err, "cannot read default route")
	}

	gateway, iface := m.plan.ParseGateway(out)
	if err != nil || gateway == "" {
		m.logger.Warn("no default gateway configured", zap.String("operation", "CheckGateway"))
		return module.NewIssue(Name, CheckGateway, "", "No default gateway configured", module.SeverityCritical), false, nil
	}

	ping := m.plan.Ping(gateway)
	if _, err := m.runner.Run(ctx, ping[0], ping[1:]...); err != nil {
		m.logger.Warn("default gateway unreachable",
			zap.String("operation", "CheckGateway"), zap.String("gateway", gateway), zap.Error(err))
		issue := module.NewIssue(Name, CheckGateway, gateway,
			fmt.Sprintf("Default gateway %s is unreachable", gateway), module.SeverityCritical)
		return issue.WithDetail("interface", iface), false, nil
	}
	m.logger.Debug("default gateway reachable", zap.String("operation", "CheckGateway"), zap.String("gateway", gateway))
	return module.Issue{}, true, nil
}

// Fix maps issues to actions: a DNS failure flushes the resolver cache, a
// connectivity or gateway failure renews the DHCP lease, and lost
// connectivity additionally restarts the network service. Each check is
// probed again first and a check that now passes triggers nothing.
func (m *Module) Fix(ctx context.Context, issues []module.Issue) (*module.RemediationResult, error) {
	res := module.NewRemediationResult()
	if len(issues) == 0 {
		return res.Complete(), nil
	}

	var flush, renew, restart bool
	var iface string
	failing := make(map[string]bool)
	for _, issue := range issues {
		still, probed := failing[issue.Check]
		if !probed {
			still = m.stillFailing(ctx, issue.Check)
			failing[issue.Check] = still
		}
		if !still {
			continue
		}
		switch issue.Check {
		case CheckDNS:
			flush = true
		case CheckGateway:
			renew = true
		case CheckConnectivity:
			renew = true
			restart = true
		}
		if v, ok := issue.Details["interface"].(string); ok && v != "" {
			iface = v
		}
	}

	if flush {
		m.apply(ctx, res, "flush DNS cache", m.plan.FlushDNS)
	}
	if renew {
		m.apply(ctx, res, "renew DHCP lease", m.plan.RenewLease(iface))
	}
	if restart {
		m.apply(ctx, res, "restart network service", m.plan.RestartNetwork(iface))
	}
	return res.Complete(), nil
}

// stillFailing probes check again. A route table that cannot be read counts
// as failing.
func (m *Module) stillFailing(ctx context.Context, check string) bool {
	var ok bool
	switch check {
	case CheckDNS:
		_, ok = m.checkDNS(ctx)
	case CheckConnectivity:
		_, ok = m.checkConnectivity(ctx)
	case CheckGateway:
		var err error
		_, ok, err = m.checkGateway(ctx)
		ok = ok && err == nil
	default:
		return false
	}
	if ok {
		m.logger.Info("check passes again, no action needed", zap.String("operation", "Fix"), zap.String("check", check))
	}
	return !ok
}

func (m *Module) apply(ctx context.Context, res *module.RemediationResult, action string, steps []Step) {
	log := m.logger.With(zap.String("operation", "Fix"), zap.String("action", action))
	if len(steps) == 0 {
		log.Info("action not available on this platform")
		return
	}

	var ran []string
	for _, step := range steps {
		cmd, err := sysexec.FirstSuccess(ctx, m.runner, step...)
		if err != nil {
			log.Error("action failed", zap.Error(err))
			res.AddError(fmt.Sprintf("%s: %v", action, err))
			return
		}
		ran = append(ran, cmd)
	}
	log.Info("action completed", zap.Strings("commands", ran))
	res.AddAction(fmt.Sprintf("%s (%s)", action, strings.Join(ran, "; ")))
}

// Verify re-runs detection for the original issues.
func (m *Module) Verify(ctx context.Context, originalIssues []module.Issue) (*module.VerificationResult, error) {
	return module.VerifyByRedetect(ctx, m, originalIssues)
}
