package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Quota ────────────────────────────────────────────────────────────────────

func TestLoadQuotaEmpty(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadQuota(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestConsumeQuotaUpToMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, st, err := s.ConsumeQuota(ctx, "2026-10-19", 3)
		require.NoError(t, err)
		assert.True(t, ok, "consume %d", i)
		assert.Equal(t, i, st.Used)
	}

	ok, st, err := s.ConsumeQuota(ctx, "2026-10-19", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, st.Used)

	stored, err := s.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", stored.Day)
	assert.Equal(t, 3, stored.Used)
}

func TestConsumeQuotaRollsOver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := s.ConsumeQuota(ctx, "2026-10-18", 2)
		require.NoError(t, err)
	}
	ok, _, err := s.ConsumeQuota(ctx, "2026-10-18", 2)
	require.NoError(t, err)
	require.False(t, ok)

	ok, st, err := s.ConsumeQuota(ctx, "2026-10-19", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, st.Used)
	assert.Equal(t, "2026-10-19", st.Day)
}

func TestConsumeQuotaZeroMaxWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, st, err := s.ConsumeQuota(ctx, "2026-10-19", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, st.Used)

	stored, err := s.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestConsumeQuotaConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const max = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.ConsumeQuota(ctx, "2026-10-19", max)
			if err != nil {
				t.Errorf("ConsumeQuota: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, granted)
}

func TestQuotaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "agent.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, _, err = s1.ConsumeQuota(ctx, "2026-10-19", 5)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	st, err := s2.LoadQuota(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.Used)
}

// ─── History ──────────────────────────────────────────────────────────────────

func TestRunHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	records := []*RunRecord{
		{RunID: "run-1", Module: "disk", Status: "NO_ISSUES", RecordedAt: base},
		{RunID: "run-1", Module: "network", Status: "REMEDIATED", IssueCount: 2, ActionCount: 1, Forced: true, RecordedAt: base.Add(time.Second)},
		{RunID: "run-2", Module: "disk", Status: "ERROR", Error: "detect timed out", RecordedAt: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		require.NoError(t, s.AppendRunRecord(ctx, r))
		assert.NotZero(t, r.ID)
	}

	all, err := s.ListRunRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-2", all[0].RunID)
	assert.Equal(t, "detect timed out", all[0].Error)

	network, err := s.ListRunRecords(ctx, "network", 10)
	require.NoError(t, err)
	require.Len(t, network, 1)
	assert.True(t, network[0].Forced)
	assert.False(t, network[0].TestOnly)
	assert.Equal(t, 2, network[0].IssueCount)

	limited, err := s.ListRunRecords(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneRunRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendRunRecord(ctx, &RunRecord{RunID: "old", Module: "disk", Status: "FAILED", RecordedAt: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.AppendRunRecord(ctx, &RunRecord{RunID: "new", Module: "disk", Status: "FAILED", RecordedAt: now}))

	n, err := s.PruneRunRecords(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.ListRunRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].RunID)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
