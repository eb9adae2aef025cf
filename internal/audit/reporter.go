package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/db"
	"github.com/kubilitics/kubilitics-agent/internal/report"
	"go.uber.org/zap"
)

// ReportFileName names a report by run start time and module, e.g.
// 20261019_021500.042_disk.json.
func ReportFileName(runStarted time.Time, module string) string {
	return runStarted.Format("20060102_150405.000") + "_" + module + ".json"
}

// Reporter persists RunReports as JSON files and indexes them in the run
// history. Failures are logged as warnings and never returned.
type Reporter struct {
	dir     string
	history db.HistoryStore
	logger  *zap.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// NewReporter creates a reporter writing into dir. history may be nil.
func NewReporter(dir string, history db.HistoryStore, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{dir: dir, history: history, logger: logger.Named("AuditReporter"), now: time.Now}
}

// Dir returns the report directory.
func (r *Reporter) Dir() string { return r.dir }

// Record writes the report and its history row. It returns the report path,
// or "" when the file could not be written.
func (r *Reporter) Record(ctx context.Context, runStarted time.Time, rep *report.RunReport) string {
	path, err := r.write(runStarted, rep)
	if err != nil {
		r.logger.Warn("report not persisted",
			zap.String(OperationKey, "Record"),
			zap.String("module", rep.Module),
			zap.Error(agenterr.Wrap(agenterr.KindPersistence, "audit.Record", err, "write report")),
		)
		path = ""
	} else {
		r.logger.Info(fmt.Sprintf("%s resolved %s", rep.Module, rep.ResolutionStatus),
			zap.String(OperationKey, "Record"),
			zap.String("report", path),
		)
	}

	if r.history != nil {
		rec := &db.RunRecord{
			RunID:       rep.RunID,
			Module:      rep.Module,
			Status:      string(rep.ResolutionStatus),
			IssueCount:  rep.IssueCount(),
			ActionCount: rep.ActionCount(),
			TestOnly:    rep.TestOnly,
			Forced:      rep.Forced,
			Error:       rep.Error,
			ReportPath:  path,
			RecordedAt:  rep.Timestamp,
		}
		if err := r.history.AppendRunRecord(ctx, rec); err != nil {
			r.logger.Warn("run history not updated",
				zap.String(OperationKey, "Record"),
				zap.String("module", rep.Module),
				zap.Error(agenterr.Wrap(agenterr.KindPersistence, "audit.Record", err, "append history")),
			)
		}
	}
	return path
}

func (r *Reporter) write(runStarted time.Time, rep *report.RunReport) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(r.dir, ReportFileName(runStarted, rep.Module))
	tmp, err := os.CreateTemp(r.dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}

// Load reads a persisted report.
func Load(path string) (*report.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep report.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &rep, nil
}

// PruneResult counts what retention removed.
type PruneResult struct {
	Files   int
	Records int64
}

// Prune deletes report files and history rows older than maxAge. A zero
// maxAge keeps everything.
func (r *Reporter) Prune(ctx context.Context, maxAge time.Duration) (*PruneResult, error) {
	res := &PruneResult{}
	if maxAge <= 0 {
		return res, nil
	}
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	entries, err := os.ReadDir(r.dir)
	if err != nil && !os.IsNotExist(err) {
		r.mu.Unlock()
		return res, agenterr.Wrap(agenterr.KindPersistence, "audit.Prune", err, "read report dir")
	}
	var errs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		res.Files++
	}
	r.mu.Unlock()

	if r.history != nil {
		n, err := r.history.PruneRunRecords(ctx, cutoff)
		if err != nil {
			errs = append(errs, err.Error())
		}
		res.Records = n
	}

	r.logger.Info("retention applied",
		zap.String(OperationKey, "Prune"),
		zap.Int("files", res.Files),
		zap.Int64("records", res.Records),
		zap.Time("cutoff", cutoff),
	)
	if len(errs) > 0 {
		return res, agenterr.New(agenterr.KindPersistence, "audit.Prune", strings.Join(errs, "; "))
	}
	return res, nil
}
