// Package service watches a list of critical services and restarts the ones
// that are down.
package service

import (
	"context"
	"fmt"
	"runtime"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"go.uber.org/zap"
)

// Name is the registry key.
const Name = "service"

// CheckState is the Issue.Check for a service that is not running.
const CheckState = "service_state"

// Module is the service fault module.
type Module struct {
	services []string
	manager  Manager
	logger   *zap.Logger
}

// New creates the module using the platform service manager.
func New(services []string, runner sysexec.Runner, logger *zap.Logger) *Module {
	return NewWithManager(services, ManagerFor(runtime.GOOS, runner), logger)
}

// NewWithManager creates the module with an explicit service manager.
func NewWithManager(services []string, manager Manager, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		services: append([]string(nil), services...),
		manager:  manager,
		logger:   logger.Named("ServiceModule"),
	}
}

func (m *Module) Name() string { return Name }

// Detect reports each configured service that is stopped or failed.
// Services that are not installed are skipped.
func (m *Module) Detect(ctx context.Context) (*module.DetectionResult, error) {
	var issues []module.Issue
	checked := 0

	for _, name := range m.services {
		state, err := m.manager.Status(ctx, name)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindDetection, "service.Detect", err, "service manager unavailable")
		}
		log := m.logger.With(zap.String("operation", "CheckService"), zap.String("service", name))

		switch state {
		case StateRunning:
			checked++
			log.Debug("service running")
		case StateNotFound:
			log.Info("service not installed, skipped")
		case StateStopped, StateFailed:
			checked++
			desc := fmt.Sprintf("Service %s is %s", name, state)
			log.Warn(desc)
			issues = append(issues, module.NewIssue(Name, CheckState, name, desc, module.SeverityWarning).
				WithDetail("state", string(state)))
		default:
			checked++
			log.Warn(fmt.Sprintf("service has unexpected status: %s", state))
		}
	}

	m.logger.Info(fmt.Sprintf("service detection completed. Issues found: %d / %d services checked", len(issues), checked),
		zap.String("operation", "Detect"))
	return module.NewDetectionResult(issues), nil
}

// Fix restarts each service named by an issue that is still down. A service
// already running again is left alone.
func (m *Module) Fix(ctx context.Context, issues []module.Issue) (*module.RemediationResult, error) {
	res := module.NewRemediationResult()
	restarted := make(map[string]bool)

	for _, issue := range issues {
		if issue.Check != CheckState || restarted[issue.Resource] {
			continue
		}
		restarted[issue.Resource] = true

		log := m.logger.With(zap.String("operation", "RestartService"), zap.String("service", issue.Resource))
		if state, err := m.manager.Status(ctx, issue.Resource); err == nil && state == StateRunning {
			log.Info("service already running, restart skipped")
			continue
		}
		if err := m.manager.Restart(ctx, issue.Resource); err != nil {
			log.Error("restart failed", zap.Error(err))
			res.AddError(fmt.Sprintf("restart %s: %v", issue.Resource, err))
			continue
		}
		log.Info("service restarted")
		res.AddAction(fmt.Sprintf("restarted service %s", issue.Resource))
	}
	return res.Complete(), nil
}

// Verify re-runs detection for the original issues.
func (m *Module) Verify(ctx context.Context, originalIssues []module.Issue) (*module.VerificationResult, error) {
	return module.VerifyByRedetect(ctx, m, originalIssues)
}
