package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issues(n int) []module.Issue {
	out := make([]module.Issue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, module.NewIssue("disk", "low_space", "/", "low disk", module.SeverityWarning))
	}
	return out
}

func remediation(success bool) *module.RemediationResult {
	r := module.NewRemediationResult()
	if success {
		r.AddAction("cleaned temp")
	} else {
		r.AddError("permission denied")
	}
	return r.Complete()
}

func verification(fixed ...bool) *module.VerificationResult {
	var checks []module.IssueCheck
	for _, f := range fixed {
		checks = append(checks, module.IssueCheck{Fixed: f})
	}
	return module.NewVerificationResult(checks)
}

func TestResolve(t *testing.T) {
	withIssues := module.NewDetectionResult(issues(2))
	clean := module.NewDetectionResult(nil)

	tests := []struct {
		name         string
		detection    *module.DetectionResult
		remediation  *module.RemediationResult
		verification *module.VerificationResult
		testOnly     bool
		forced       bool
		errored      bool
		want         ResolutionStatus
	}{
		{name: "no issues", detection: clean, want: StatusNoIssues},
		{name: "no issues test-only", detection: clean, testOnly: true, want: StatusNoIssues},
		{name: "test-only with issues", detection: withIssues, testOnly: true, want: StatusTestOnly},
		{name: "forced test-only without issues", detection: clean, testOnly: true, forced: true, want: StatusTestOnly},
		{name: "postponed", detection: withIssues, want: StatusFailed},
		{name: "remediated without verify", detection: withIssues, remediation: remediation(true), want: StatusRemediated},
		{name: "failed without verify", detection: withIssues, remediation: remediation(false), want: StatusFailed},
		{name: "verified all fixed", detection: withIssues, remediation: remediation(true), verification: verification(true, true), want: StatusRemediated},
		{name: "verified partial", detection: withIssues, remediation: remediation(true), verification: verification(true, false), want: StatusPartial},
		{name: "verified not fixed", detection: withIssues, remediation: remediation(true), verification: verification(false), want: StatusFailed},
		{name: "verification wins over failed fix", detection: withIssues, remediation: remediation(false), verification: verification(true), want: StatusRemediated},
		{name: "forced no-op verified", detection: clean, forced: true, remediation: remediation(true), verification: verification(), want: StatusRemediated},
		{name: "stage error", detection: withIssues, remediation: remediation(true), errored: true, want: StatusError},
		{name: "missing detection", want: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.detection, tt.remediation, tt.verification, tt.testOnly, tt.forced, tt.errored)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDerivesStatus(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	r := New(Outcome{
		RunID:     "run-1",
		Module:    "disk",
		StartedAt: started,
		Detection: module.NewDetectionResult(issues(1)),
		Postponed: []string{"business hours in effect (9:00-18:00)"},
	})

	assert.Equal(t, StatusFailed, r.ResolutionStatus)
	assert.True(t, r.Consistent())
	assert.Equal(t, 1, r.IssueCount())
	assert.Equal(t, 0, r.ActionCount())
	assert.GreaterOrEqual(t, r.DurationMs, int64(2000))
	assert.Equal(t, []string{"business hours in effect (9:00-18:00)"}, r.PostponementReasons)
}

func TestNewWithError(t *testing.T) {
	r := New(Outcome{
		Module:    "network",
		Detection: module.NewDetectionResult(nil),
		Err:       errors.New("detect: timed out"),
	})

	assert.Equal(t, StatusError, r.ResolutionStatus)
	assert.Equal(t, "detect: timed out", r.Error)
}

func TestConsistentDetectsTampering(t *testing.T) {
	r := New(Outcome{Module: "disk", Detection: module.NewDetectionResult(nil)})
	require.True(t, r.Consistent())

	r.ResolutionStatus = StatusRemediated
	assert.False(t, r.Consistent())
}

func TestReportJSONShape(t *testing.T) {
	r := New(Outcome{RunID: "run-1", Module: "printer", Detection: module.NewDetectionResult(nil)})

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "NO_ISSUES", m["resolutionStatus"])
	assert.Equal(t, "printer", m["module"])
	assert.NotContains(t, m, "remediation")
	assert.NotContains(t, m, "verification")
}
