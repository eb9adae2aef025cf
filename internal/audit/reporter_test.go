package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/db"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newStore(t *testing.T) db.Store {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport() *report.RunReport {
	det := module.NewDetectionResult([]module.Issue{
		module.NewIssue("service", "unit_active", "cups", "cups is inactive", module.SeverityWarning),
	})
	rem := module.NewRemediationResult()
	rem.AddAction("restarted cups")
	rem.Complete()
	return report.New(report.Outcome{
		RunID:        "run-42",
		Module:       "service",
		StartedAt:    time.Now(),
		Detection:    det,
		Remediation:  rem,
		Verification: module.NewVerificationResult([]module.IssueCheck{{Issue: det.Issues[0], Fixed: true}}),
	})
}

func TestReportFileName(t *testing.T) {
	ts := time.Date(2026, 10, 19, 2, 15, 0, 42_000_000, time.Local)
	assert.Equal(t, "20261019_021500.042_disk.json", ReportFileName(ts, "disk"))
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := filepath.Join(t.TempDir(), "reports")
	r := NewReporter(dir, store, nil)

	rep := sampleReport()
	started := time.Date(2026, 10, 19, 2, 15, 0, 0, time.Local)
	path := r.Record(ctx, started, rep)

	require.NotEmpty(t, path)
	assert.Equal(t, filepath.Join(dir, "20261019_021500.000_service.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, report.StatusRemediated, loaded.ResolutionStatus)
	assert.True(t, loaded.Consistent())

	recs, err := store.ListRunRecords(ctx, "service", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "REMEDIATED", recs[0].Status)
	assert.Equal(t, 1, recs[0].IssueCount)
	assert.Equal(t, 1, recs[0].ActionCount)
	assert.Equal(t, path, recs[0].ReportPath)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".report-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRecordWriteFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewReporter(filepath.Join(blocker, "reports"), store, zap.New(core))

	rep := sampleReport()
	path := r.Record(ctx, time.Now(), rep)

	assert.Empty(t, path)
	assert.Equal(t, report.StatusRemediated, rep.ResolutionStatus)
	assert.Equal(t, 1, logs.FilterMessage("report not persisted").Len())

	recs, err := store.ListRunRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].ReportPath)
}

func TestRecordWithoutHistory(t *testing.T) {
	r := NewReporter(t.TempDir(), nil, nil)
	assert.NotEmpty(t, r.Record(context.Background(), time.Now(), sampleReport()))
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := t.TempDir()
	r := NewReporter(dir, store, nil)
	now := time.Now()

	oldPath := r.Record(ctx, now.AddDate(0, 0, -40), sampleReport())
	newPath := r.Record(ctx, now, sampleReport())
	require.NotEmpty(t, oldPath)
	require.NotEmpty(t, newPath)

	old := now.AddDate(0, 0, -40)
	require.NoError(t, os.Chtimes(oldPath, old, old))
	require.NoError(t, store.AppendRunRecord(ctx, &db.RunRecord{RunID: "ancient", Module: "disk", Status: "NO_ISSUES", RecordedAt: old}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), old, old))

	res, err := r.Prune(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, int64(1), res.Records)

	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, newPath)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestPruneDisabled(t *testing.T) {
	res, err := NewReporter(t.TempDir(), nil, nil).Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Files)
}
