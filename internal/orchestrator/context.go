package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/kubilitics/kubilitics-agent/internal/config"
	"go.uber.org/zap"
)

// Options are the invocation flags.
type Options struct {
	// Modules to run. Empty means allowedRemediationModules, or every
	// registered module when that list is empty too.
	Modules []string

	// TestOnly runs Detect and withholds Fix and Verify.
	TestOnly bool

	// Force skips the issue-presence check and the safety gate, never the quota.
	Force bool

	// Silent suppresses console output. Logs and reports are unaffected.
	Silent bool
}

// RunContext is created once per invocation and passed to every component.
// It is read-only after construction.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Config    *config.Config
	Options   Options
	Logger    *zap.Logger

	StageTimeout time.Duration
	RunTimeout   time.Duration
	VerifyDelay  time.Duration
}

// NewRunContext snapshots cfg for one run.
func NewRunContext(cfg *config.Config, opts Options, logger *zap.Logger) *RunContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	snapshot := cfg.Clone()
	opts.Modules = append([]string(nil), opts.Modules...)

	return &RunContext{
		RunID:        uuid.NewString(),
		StartedAt:    time.Now(),
		Config:       snapshot,
		Options:      opts,
		Logger:       logger,
		StageTimeout: snapshot.StageTimeout(),
		RunTimeout:   snapshot.RunTimeout(),
		VerifyDelay:  snapshot.VerifyDelay(),
	}
}
