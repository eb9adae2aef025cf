// Package quota caps remediation attempts per calendar day.
//
// The tracker is the only writer of the persisted quota row during a run.
// TryConsume is guarded by a mutex so concurrent module workers see a single
// atomic check-and-increment; the store's transaction makes the same step
// atomic on disk. Day rollover is lazy: the first call on a new local
// calendar day starts from zero.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/db"
)

// DayLayout formats the calendar day key.
const DayLayout = "2006-01-02"

// Status is a read-only view of today's quota.
type Status struct {
	Day       string `json:"day"`
	Used      int    `json:"used"`
	Max       int    `json:"max"`
	Remaining int    `json:"remaining"`
}

// Tracker enforces the daily remediation ceiling.
type Tracker struct {
	mu    sync.Mutex
	store db.QuotaStore
	max   int
	now   func() time.Time
}

// NewTracker creates a tracker over store with the given daily ceiling.
func NewTracker(store db.QuotaStore, maxPerDay int) *Tracker {
	return &Tracker{
		store: store,
		max:   maxPerDay,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Max returns the daily ceiling.
func (t *Tracker) Max() int {
	return t.max
}

func (t *Tracker) today() string {
	return t.now().Local().Format(DayLayout)
}

// TryConsume takes one unit of today's quota. It returns false, without
// changing state, when the ceiling is reached. A store failure returns
// false with the error so callers treat it as a gate failure.
func (t *Tracker) TryConsume(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ok, _, err := t.store.ConsumeQuota(ctx, t.today(), t.max)
	if err != nil {
		return false, agenterr.Wrap(agenterr.KindPersistence, "quota.TryConsume", err, "quota state unavailable")
	}
	return ok, nil
}

// Status reports today's usage without consuming.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.today()
	st, err := t.store.LoadQuota(ctx)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindPersistence, "quota.Status", err, "quota state unavailable")
	}

	used := 0
	if st != nil && st.Day == day {
		used = st.Used
	}
	remaining := t.max - used
	if remaining < 0 {
		remaining = 0
	}
	return &Status{Day: day, Used: used, Max: t.max, Remaining: remaining}, nil
}

// ExceededMessage is the postponement reason recorded when the ceiling is hit.
func (t *Tracker) ExceededMessage() string {
	return fmt.Sprintf("daily remediation quota reached (%d per day)", t.max)
}
