package db

import (
	"context"
	"fmt"
	"time"
)

// ─── Run History ─────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendRunRecord(ctx context.Context, rec *RunRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	rec.RecordedAt = rec.RecordedAt.UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (run_id, module, status, issue_count, action_count, test_only, forced, error, report_path, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Module, rec.Status, rec.IssueCount, rec.ActionCount,
		boolToInt(rec.TestOnly), boolToInt(rec.Forced), rec.Error, rec.ReportPath, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (s *sqliteStore) ListRunRecords(ctx context.Context, module string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, run_id, module, status, issue_count, action_count, test_only, forced, error, report_path, recorded_at
		FROM run_history`
	args := []interface{}{}
	if module != "" {
		query += ` WHERE module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	var results []*RunRecord
	for rows.Next() {
		var r RunRecord
		var testOnly, forced int
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Module, &r.Status, &r.IssueCount, &r.ActionCount,
			&testOnly, &forced, &r.Error, &r.ReportPath, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		r.TestOnly = testOnly != 0
		r.Forced = forced != 0
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *sqliteStore) PruneRunRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_history WHERE recorded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune run records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune run records: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
