package module

import (
	"context"
)

// Package module defines the contract every fault-check plugin implements.
//
// A module owns one problem domain (network, disk, ...). The orchestrator
// drives it through three stages:
//
//   Detect  read-only inspection; idempotent; safe under a failed safety gate
//   Fix     remediation of the detected issues; idempotent; partial failure
//           is reported in RemediationResult.Errors rather than returned
//   Verify  optional; re-checks only the original issues without mutating
//
// Fix called with an empty issue list must be a no-op that returns a
// successful result with no actions. Forced runs rely on this.
//
// Returned errors mean the stage itself could not run (for example a
// required OS facility is missing); the orchestrator resolves the module
// as ERROR and carries on with its siblings.

// FaultModule is implemented by every fault-check plugin.
type FaultModule interface {
	// Name is the registry key, e.g. "disk".
	Name() string

	// Detect inspects the system without changing it.
	Detect(ctx context.Context) (*DetectionResult, error)

	// Fix attempts to remediate the given issues.
	Fix(ctx context.Context, issues []Issue) (*RemediationResult, error)
}

// Verifier is implemented by modules that can confirm a fix.
type Verifier interface {
	Verify(ctx context.Context, originalIssues []Issue) (*VerificationResult, error)
}

// VerifyByRedetect re-runs m's detection and reports each original issue as
// fixed when the fresh detection no longer contains an issue with its Key.
func VerifyByRedetect(ctx context.Context, m FaultModule, originalIssues []Issue) (*VerificationResult, error) {
	if len(originalIssues) == 0 {
		return NewVerificationResult(nil), nil
	}

	current, err := m.Detect(ctx)
	if err != nil {
		return nil, err
	}

	remaining := make(map[string]struct{}, len(current.Issues))
	for _, issue := range current.Issues {
		remaining[issue.Key()] = struct{}{}
	}

	results := make([]IssueCheck, 0, len(originalIssues))
	for _, issue := range originalIssues {
		_, still := remaining[issue.Key()]
		results = append(results, IssueCheck{Issue: issue, Fixed: !still})
	}
	return NewVerificationResult(results), nil
}
