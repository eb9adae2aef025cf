package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	name   string
	issues []Issue
	err    error
}

func (s *stubModule) Name() string { return s.name }

func (s *stubModule) Detect(ctx context.Context) (*DetectionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return NewDetectionResult(s.issues), nil
}

func (s *stubModule) Fix(ctx context.Context, issues []Issue) (*RemediationResult, error) {
	return NewRemediationResult().Complete(), nil
}

func TestNewDetectionResult(t *testing.T) {
	empty := NewDetectionResult(nil)
	assert.False(t, empty.HasIssues)
	assert.NotNil(t, empty.Issues)

	one := NewDetectionResult([]Issue{NewIssue("disk", "low_space", "/", "low", SeverityWarning)})
	assert.True(t, one.HasIssues)
	assert.Len(t, one.Issues, 1)
}

func TestRemediationResultComplete(t *testing.T) {
	tests := []struct {
		name    string
		actions []string
		errs    []string
		want    bool
	}{
		{name: "no-op", want: true},
		{name: "actions only", actions: []string{"flushed dns"}, want: true},
		{name: "partial", actions: []string{"flushed dns"}, errs: []string{"dhclient failed"}, want: true},
		{name: "errors only", errs: []string{"dhclient failed"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRemediationResult()
			for _, a := range tt.actions {
				r.AddAction(a)
			}
			for _, e := range tt.errs {
				r.AddError(e)
			}
			r.Complete()
			assert.Equal(t, tt.want, r.Success)
			assert.False(t, r.Timestamp.IsZero())
		})
	}
}

func TestNewVerificationResultStatus(t *testing.T) {
	issue := NewIssue("service", "inactive", "cups", "cups inactive", SeverityWarning)

	tests := []struct {
		name    string
		results []IssueCheck
		want    VerificationStatus
	}{
		{name: "empty", results: nil, want: VerificationAllFixed},
		{name: "all fixed", results: []IssueCheck{{Issue: issue, Fixed: true}}, want: VerificationAllFixed},
		{name: "none fixed", results: []IssueCheck{{Issue: issue}, {Issue: issue}}, want: VerificationNotFixed},
		{name: "some fixed", results: []IssueCheck{{Issue: issue, Fixed: true}, {Issue: issue}}, want: VerificationPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewVerificationResult(tt.results).Status)
		})
	}
}

func TestIssueWithDetailCopies(t *testing.T) {
	base := NewIssue("disk", "low_space", "/", "low", SeverityCritical).WithDetail("free_gb", 3.2)
	derived := base.WithDetail("total_gb", 100.0)

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
	assert.Equal(t, "disk/low_space//", base.Key())
}

func TestVerifyByRedetect(t *testing.T) {
	dnsIssue := NewIssue("network", "dns", "google.com", "dns failed", SeverityCritical)
	gwIssue := NewIssue("network", "gateway", "10.0.0.1", "gateway unreachable", SeverityWarning)

	m := &stubModule{name: "network", issues: []Issue{gwIssue}}
	res, err := VerifyByRedetect(context.Background(), m, []Issue{dnsIssue, gwIssue})
	require.NoError(t, err)

	assert.Equal(t, VerificationPartial, res.Status)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Fixed)
	assert.False(t, res.Results[1].Fixed)
}

func TestVerifyByRedetectEmptyIsNoop(t *testing.T) {
	m := &stubModule{name: "network", err: errors.New("must not be called")}
	res, err := VerifyByRedetect(context.Background(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, VerificationAllFixed, res.Status)
}

func TestVerifyByRedetectPropagatesError(t *testing.T) {
	m := &stubModule{name: "network", err: errors.New("no route")}
	_, err := VerifyByRedetect(context.Background(), m, []Issue{NewIssue("network", "dns", "", "x", SeverityInfo)})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubModule{name: "network"}))
	require.NoError(t, r.Register(&stubModule{name: "disk"}))

	assert.Error(t, r.Register(&stubModule{name: "disk"}))
	assert.Error(t, r.Register(&stubModule{name: ""}))
	assert.Error(t, r.Register(nil))

	assert.Equal(t, []string{"network", "disk"}, r.Names())
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("disk"))

	_, ok := r.Get("printer")
	assert.False(t, ok)
}
