package db

import (
	"context"
	"time"
)

// Store is the persistence interface for cross-run agent state.
type Store interface {
	QuotaStore
	HistoryStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Quota store ──────────────────────────────────────────────────────────────

// QuotaState is the persisted daily remediation counter.
type QuotaState struct {
	Day       string    `json:"day"` // local calendar day, YYYY-MM-DD
	Used      int       `json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotaStore persists the single quota row.
type QuotaStore interface {
	// LoadQuota reads the quota row. Returns nil, nil when none was written yet.
	LoadQuota(ctx context.Context) (*QuotaState, error)

	// ConsumeQuota atomically resets the counter when day differs from the
	// stored day, then increments it if it is below max. It returns whether
	// a unit was consumed and the state after the call. Nothing is written
	// when the ceiling is reached.
	ConsumeQuota(ctx context.Context, day string, max int) (bool, *QuotaState, error)
}

// ─── History store ────────────────────────────────────────────────────────────

// RunRecord indexes one persisted RunReport.
type RunRecord struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Module      string    `json:"module"`
	Status      string    `json:"status"`
	IssueCount  int       `json:"issue_count"`
	ActionCount int       `json:"action_count"`
	TestOnly    bool      `json:"test_only"`
	Forced      bool      `json:"forced"`
	Error       string    `json:"error,omitempty"`
	ReportPath  string    `json:"report_path,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// HistoryStore persists the run history index.
type HistoryStore interface {
	// AppendRunRecord inserts a history row.
	AppendRunRecord(ctx context.Context, rec *RunRecord) error

	// ListRunRecords returns the newest records first. An empty module
	// matches all modules; limit <= 0 means 50.
	ListRunRecords(ctx context.Context, module string, limit int) ([]*RunRecord, error)

	// PruneRunRecords deletes records older than before and returns the count.
	PruneRunRecords(ctx context.Context, before time.Time) (int64, error)
}
