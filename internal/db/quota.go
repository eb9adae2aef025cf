package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ─── Quota Store ─────────────────────────────────────────────────────────────

func (s *sqliteStore) LoadQuota(ctx context.Context) (*QuotaState, error) {
	var st QuotaState
	err := s.db.QueryRowContext(ctx, `
		SELECT day, used, updated_at FROM quota_state WHERE id = 1
	`).Scan(&st.Day, &st.Used, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quota: %w", err)
	}
	return &st, nil
}

func (s *sqliteStore) ConsumeQuota(ctx context.Context, day string, max int) (bool, *QuotaState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("consume quota: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st := QuotaState{Day: day}
	var storedDay string
	var used int
	err = tx.QueryRowContext(ctx, `SELECT day, used FROM quota_state WHERE id = 1`).Scan(&storedDay, &used)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first use
	case err != nil:
		return false, nil, fmt.Errorf("consume quota: read: %w", err)
	case storedDay == day:
		st.Used = used
	}
	// A different stored day means the counter rolled over; st.Used stays 0.

	if st.Used >= max {
		return false, &st, nil
	}

	st.Used++
	st.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quota_state (id, day, used, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day = excluded.day,
			used = excluded.used,
			updated_at = excluded.updated_at
	`, st.Day, st.Used, st.UpdatedAt)
	if err != nil {
		return false, nil, fmt.Errorf("consume quota: write: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("consume quota: commit: %w", err)
	}
	return true, &st, nil
}
