// Package report holds the per-module run report and the rule that derives
// its resolution status.
package report

import (
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/module"
)

// ResolutionStatus is the single summary outcome of a module's run.
type ResolutionStatus string

const (
	StatusNoIssues   ResolutionStatus = "NO_ISSUES"
	StatusTestOnly   ResolutionStatus = "TEST_ONLY"
	StatusRemediated ResolutionStatus = "REMEDIATED"
	StatusPartial    ResolutionStatus = "PARTIAL"
	StatusFailed     ResolutionStatus = "FAILED"
	StatusError      ResolutionStatus = "ERROR"
)

// AllStatuses lists every resolution status in display order.
var AllStatuses = []ResolutionStatus{
	StatusNoIssues, StatusTestOnly, StatusRemediated, StatusPartial, StatusFailed, StatusError,
}

// Outcome collects stage results while a module moves through the pipeline.
type Outcome struct {
	RunID        string
	Module       string
	StartedAt    time.Time
	TestOnly     bool
	Forced       bool
	Detection    *module.DetectionResult
	Remediation  *module.RemediationResult
	Verification *module.VerificationResult
	// Postponed carries the safety gate reasons or quota message when
	// remediation was withheld.
	Postponed []string
	Err       error
}

// RunReport is the persisted record of one module's run. It is created once
// by New and not modified afterwards.
type RunReport struct {
	RunID               string                     `json:"runId"`
	Module              string                     `json:"module"`
	Detection           *module.DetectionResult    `json:"detection"`
	Remediation         *module.RemediationResult  `json:"remediation,omitempty"`
	Verification        *module.VerificationResult `json:"verification,omitempty"`
	TestOnly            bool                       `json:"testOnly"`
	Forced              bool                       `json:"forced"`
	PostponementReasons []string                   `json:"postponementReasons,omitempty"`
	Error               string                     `json:"error,omitempty"`
	ResolutionStatus    ResolutionStatus           `json:"resolutionStatus"`
	StartedAt           time.Time                  `json:"startedAt"`
	Timestamp           time.Time                  `json:"timestamp"`
	DurationMs          int64                      `json:"durationMs"`
}

// New seals an outcome into a report, deriving the resolution status.
func New(o Outcome) *RunReport {
	now := time.Now().UTC()
	r := &RunReport{
		RunID:               o.RunID,
		Module:              o.Module,
		Detection:           o.Detection,
		Remediation:         o.Remediation,
		Verification:        o.Verification,
		TestOnly:            o.TestOnly,
		Forced:              o.Forced,
		PostponementReasons: o.Postponed,
		StartedAt:           o.StartedAt,
		Timestamp:           now,
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	if !o.StartedAt.IsZero() {
		r.DurationMs = now.Sub(o.StartedAt).Milliseconds()
	}
	r.ResolutionStatus = r.derive()
	return r
}

func (r *RunReport) derive() ResolutionStatus {
	return Resolve(r.Detection, r.Remediation, r.Verification, r.TestOnly, r.Forced, r.Error != "")
}

// Consistent reports whether the stored status matches the report's fields.
func (r *RunReport) Consistent() bool {
	return r.ResolutionStatus == r.derive()
}

// IssueCount returns the number of detected issues.
func (r *RunReport) IssueCount() int {
	if r.Detection == nil {
		return 0
	}
	return len(r.Detection.Issues)
}

// ActionCount returns the number of fix actions taken.
func (r *RunReport) ActionCount() int {
	if r.Remediation == nil {
		return 0
	}
	return len(r.Remediation.ActionsTaken)
}

// Resolve maps stage results to a resolution status:
//
//	failed stage or missing detection   ERROR
//	verification present                ALL_FIXED→REMEDIATED, PARTIAL→PARTIAL, NOT_FIXED→FAILED
//	remediation without verification    REMEDIATED if successful, else FAILED
//	no issues and not forced            NO_ISSUES
//	test-only                           TEST_ONLY
//	otherwise (postponed)               FAILED
func Resolve(
	detection *module.DetectionResult,
	remediation *module.RemediationResult,
	verification *module.VerificationResult,
	testOnly, forced, errored bool,
) ResolutionStatus {
	if errored || detection == nil {
		return StatusError
	}

	if verification != nil {
		switch verification.Status {
		case module.VerificationAllFixed:
			return StatusRemediated
		case module.VerificationPartial:
			return StatusPartial
		default:
			return StatusFailed
		}
	}

	if remediation != nil {
		if remediation.Success {
			return StatusRemediated
		}
		return StatusFailed
	}

	if !detection.HasIssues && !forced {
		return StatusNoIssues
	}
	if testOnly {
		return StatusTestOnly
	}
	return StatusFailed
}
