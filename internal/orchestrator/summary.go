package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/report"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitModuleError = 1
	ExitNotStarted  = 2
)

// Summary aggregates one run.
type Summary struct {
	RunID      string                          `json:"runId"`
	StartedAt  time.Time                       `json:"startedAt"`
	FinishedAt time.Time                       `json:"finishedAt"`
	Reports    []*report.RunReport             `json:"reports"`
	Paths      map[string]string               `json:"reportPaths,omitempty"`
	Skipped    []Skip                          `json:"skipped,omitempty"`
	Counts     map[report.ResolutionStatus]int `json:"counts"`
}

func newSummary(rc *RunContext, reports []*report.RunReport, paths []string, skipped []Skip) *Summary {
	s := &Summary{
		RunID:      rc.RunID,
		StartedAt:  rc.StartedAt,
		FinishedAt: time.Now(),
		Reports:    reports,
		Paths:      make(map[string]string, len(paths)),
		Skipped:    skipped,
		Counts:     make(map[report.ResolutionStatus]int),
	}
	for i, r := range reports {
		s.Counts[r.ResolutionStatus]++
		if paths[i] != "" {
			s.Paths[r.Module] = paths[i]
		}
	}
	return s
}

// Duration is the run's wall time.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ExitCode is 0 when no module resolved ERROR, 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Counts[report.StatusError] > 0 {
		return ExitModuleError
	}
	return ExitOK
}

// Report returns the report for a module, or nil.
func (s *Summary) Report(moduleName string) *report.RunReport {
	for _, r := range s.Reports {
		if r.Module == moduleName {
			return r
		}
	}
	return nil
}

// String renders counts as "run finished: 2 module(s), REMEDIATED=1 NO_ISSUES=1".
func (s *Summary) String() string {
	var parts []string
	for _, st := range report.AllStatuses {
		if n := s.Counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	msg := fmt.Sprintf("run finished: %d module(s)", len(s.Reports))
	if len(parts) > 0 {
		msg += ", " + strings.Join(parts, " ")
	}
	return msg
}
