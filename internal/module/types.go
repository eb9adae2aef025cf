package module

import (
	"time"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one detected instance of a fault. Issues are values and are not
// modified after detection.
type Issue struct {
	Module      string                 `json:"module"`
	Check       string                 `json:"check"`
	Resource    string                 `json:"resource,omitempty"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	DetectedAt  time.Time              `json:"detectedAt"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewIssue creates an issue stamped with the current time.
func NewIssue(module, check, resource, description string, severity Severity) Issue {
	return Issue{
		Module:      module,
		Check:       check,
		Resource:    resource,
		Description: description,
		Severity:    severity,
		DetectedAt:  time.Now().UTC(),
	}
}

// WithDetail returns a copy of the issue with key set in Details.
func (i Issue) WithDetail(key string, value interface{}) Issue {
	details := make(map[string]interface{}, len(i.Details)+1)
	for k, v := range i.Details {
		details[k] = v
	}
	details[key] = value
	i.Details = details
	return i
}

// Key identifies the fault independently of the volatile description text,
// so a later detection can be matched against an earlier one.
func (i Issue) Key() string {
	return i.Module + "/" + i.Check + "/" + i.Resource
}

// DetectionResult is the output of a module's Detect stage.
type DetectionResult struct {
	HasIssues bool      `json:"hasIssues"`
	Issues    []Issue   `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDetectionResult builds a detection result; HasIssues follows the issue list.
func NewDetectionResult(issues []Issue) *DetectionResult {
	if issues == nil {
		issues = []Issue{}
	}
	return &DetectionResult{
		HasIssues: len(issues) > 0,
		Issues:    issues,
		Timestamp: time.Now().UTC(),
	}
}

// RemediationResult is the output of a module's Fix stage.
type RemediationResult struct {
	ActionsTaken []string  `json:"actionsTaken"`
	Errors       []string  `json:"errors"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRemediationResult starts an empty remediation result.
func NewRemediationResult() *RemediationResult {
	return &RemediationResult{
		ActionsTaken: []string{},
		Errors:       []string{},
	}
}

// AddAction records a completed fix action.
func (r *RemediationResult) AddAction(action string) {
	r.ActionsTaken = append(r.ActionsTaken, action)
}

// AddError records a failed fix action.
func (r *RemediationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Complete stamps the result. A fix succeeds when no action failed or at
// least one action made progress.
func (r *RemediationResult) Complete() *RemediationResult {
	r.Success = len(r.Errors) == 0 || len(r.ActionsTaken) > 0
	r.Timestamp = time.Now().UTC()
	return r
}

// VerificationStatus summarizes a Verify stage.
type VerificationStatus string

const (
	VerificationAllFixed VerificationStatus = "ALL_FIXED"
	VerificationPartial  VerificationStatus = "PARTIAL"
	VerificationNotFixed VerificationStatus = "NOT_FIXED"
)

// IssueCheck is the verification outcome for one original issue.
type IssueCheck struct {
	Issue Issue `json:"issue"`
	Fixed bool  `json:"fixed"`
}

// VerificationResult is the output of a module's Verify stage.
type VerificationResult struct {
	Status    VerificationStatus `json:"status"`
	Results   []IssueCheck       `json:"results"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewVerificationResult derives the status from the per-issue results. An
// empty result list counts as all fixed.
func NewVerificationResult(results []IssueCheck) *VerificationResult {
	if results == nil {
		results = []IssueCheck{}
	}
	fixed := 0
	for _, r := range results {
		if r.Fixed {
			fixed++
		}
	}

	status := VerificationPartial
	switch {
	case fixed == len(results):
		status = VerificationAllFixed
	case fixed == 0:
		status = VerificationNotFixed
	}

	return &VerificationResult{
		Status:    status,
		Results:   results,
		Timestamp: time.Now().UTC(),
	}
}
