package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/report"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventLogger records run lifecycle events to the audit log.
type EventLogger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Run lifecycle
	LogRunStarted(ctx context.Context, runID string, modules []string, testOnly, force bool) error
	LogRunCompleted(ctx context.Context, runID string, counts map[report.ResolutionStatus]int, duration time.Duration) error
	LogRunAborted(ctx context.Context, runID string, err error) error

	// Module lifecycle
	LogModuleReported(ctx context.Context, r *report.RunReport) error
	LogModuleSkipped(ctx context.Context, runID, module, reason string) error
	LogModuleDetected(ctx context.Context, runID, module string, issues int, duration time.Duration) error
	LogModuleRemediated(ctx context.Context, runID, module string, actions, errs []string, duration time.Duration) error
	LogModuleVerified(ctx context.Context, runID, module, status string, duration time.Duration) error
	LogModuleFailed(ctx context.Context, runID, module, stage string, err error) error

	// Gate outcomes
	LogGateDenied(ctx context.Context, runID, module string, reasons []string) error
	LogGateForced(ctx context.Context, runID, module string) error
	LogQuotaExhausted(ctx context.Context, runID, module, message string) error

	// Configuration
	LogConfigLoaded(ctx context.Context, runID, path string) error
	LogConfigDefaulted(ctx context.Context, runID string, err error) error

	// Sync flushes buffered events
	Sync() error

	// Close closes the audit log
	Close() error
}

// EventLogConfig configures the audit log file.
type EventLogConfig struct {
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

const flushThreshold = 100

type eventLogger struct {
	out         *zap.Logger
	rotator     *lumberjack.Logger
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewEventLogger opens the audit log.
func NewEventLogger(cfg EventLogConfig) (EventLogger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}

	encoderConfig := zapcore.EncoderConfig{
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	// Audit lines are always written, regardless of the execution log level.
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zapcore.InfoLevel)

	l := &eventLogger{
		out:         zap.New(core),
		rotator:     rotator,
		buffer:      make([]*Event, 0, flushThreshold),
		flushTicker: time.NewTicker(time.Second),
		stopCh:      make(chan struct{}),
	}
	go l.autoFlush()
	return l, nil
}

func (l *eventLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= flushThreshold {
		l.flushLocked()
	}
	return nil
}

// flushLocked writes the buffer (caller must hold lock)
func (l *eventLogger) flushLocked() {
	for _, event := range l.buffer {
		l.out.Info("", zap.Inline(event))
	}
	l.buffer = l.buffer[:0]
}

func (l *eventLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *eventLogger) LogRunStarted(ctx context.Context, runID string, modules []string, testOnly, force bool) error {
	event := NewEvent(EventRunStarted).
		WithCorrelationID(runID).
		WithResult(ResultSuccess).
		WithMetadata("modules", modules).
		WithMetadata("test_only", testOnly).
		WithMetadata("force", force).
		WithDescription(fmt.Sprintf("Run %s started for %s", runID, strings.Join(modules, ",")))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogRunCompleted(ctx context.Context, runID string, counts map[report.ResolutionStatus]int, duration time.Duration) error {
	event := NewEvent(EventRunCompleted).
		WithCorrelationID(runID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Run %s completed", runID))
	for status, n := range counts {
		event.WithMetadata(string(status), n)
	}
	if counts[report.StatusError] > 0 {
		event.WithResult(ResultFailure)
	}

	return l.Log(ctx, event)
}

func (l *eventLogger) LogRunAborted(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventRunAborted).
		WithCorrelationID(runID).
		WithError(err, "run_aborted").
		WithDescription(fmt.Sprintf("Run %s could not start", runID))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleReported(ctx context.Context, r *report.RunReport) error {
	result := ResultSuccess
	switch r.ResolutionStatus {
	case report.StatusError:
		result = ResultFailure
	case report.StatusFailed:
		if len(r.PostponementReasons) > 0 {
			result = ResultPostponed
		} else {
			result = ResultFailure
		}
	}

	event := NewEvent(EventModuleReported).
		WithCorrelationID(r.RunID).
		WithModule(r.Module).
		WithResult(result).
		WithDuration(time.Duration(r.DurationMs) * time.Millisecond).
		WithMetadata("resolution_status", string(r.ResolutionStatus)).
		WithMetadata("issues", r.IssueCount()).
		WithMetadata("actions", r.ActionCount()).
		WithDescription(fmt.Sprintf("Module %s resolved %s", r.Module, r.ResolutionStatus))
	if r.Error != "" {
		event.Error = r.Error
		event.ErrorCode = "module_error"
	}

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleSkipped(ctx context.Context, runID, module, reason string) error {
	event := NewEvent(EventModuleSkipped).
		WithCorrelationID(runID).
		WithModule(module).
		WithResult(ResultDenied).
		WithDescription(reason)

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleDetected(ctx context.Context, runID, module string, issues int, duration time.Duration) error {
	event := NewEvent(EventModuleDetected).
		WithCorrelationID(runID).
		WithModule(module).
		WithAction("detect").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("issues", issues).
		WithDescription(fmt.Sprintf("Module %s found %d issue(s)", module, issues))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleRemediated(ctx context.Context, runID, module string, actions, errs []string, duration time.Duration) error {
	result := ResultSuccess
	if len(errs) > 0 && len(actions) == 0 {
		result = ResultFailure
	}
	event := NewEvent(EventModuleRemediated).
		WithCorrelationID(runID).
		WithModule(module).
		WithAction("fix").
		WithResult(result).
		WithDuration(duration).
		WithMetadata("actions", actions).
		WithDescription(fmt.Sprintf("Module %s took %d action(s)", module, len(actions)))
	if len(errs) > 0 {
		event.WithMetadata("errors", errs)
	}

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleVerified(ctx context.Context, runID, module, status string, duration time.Duration) error {
	event := NewEvent(EventModuleVerified).
		WithCorrelationID(runID).
		WithModule(module).
		WithAction("verify").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("verification_status", status).
		WithDescription(fmt.Sprintf("Module %s verification %s", module, status))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogModuleFailed(ctx context.Context, runID, module, stage string, err error) error {
	event := NewEvent(EventModuleFailed).
		WithCorrelationID(runID).
		WithModule(module).
		WithAction(stage).
		WithError(err, "module_error").
		WithDescription(fmt.Sprintf("Module %s failed during %s", module, stage))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogGateDenied(ctx context.Context, runID, module string, reasons []string) error {
	event := NewEvent(EventSafetyGateDenied).
		WithCorrelationID(runID).
		WithModule(module).
		WithResult(ResultPostponed).
		WithMetadata("reasons", reasons).
		WithDescription(fmt.Sprintf("Remediation of %s postponed by safety gate", module))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogGateForced(ctx context.Context, runID, module string) error {
	event := NewEvent(EventSafetyGateForced).
		WithCorrelationID(runID).
		WithModule(module).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Safety gate bypassed for %s by force flag", module))

	return l.Log(ctx, event)
}

func (l *eventLogger) LogQuotaExhausted(ctx context.Context, runID, module, message string) error {
	event := NewEvent(EventQuotaExhausted).
		WithCorrelationID(runID).
		WithModule(module).
		WithResult(ResultPostponed).
		WithDescription(message)

	return l.Log(ctx, event)
}

func (l *eventLogger) LogConfigLoaded(ctx context.Context, runID, path string) error {
	event := NewEvent(EventConfigLoaded).
		WithCorrelationID(runID).
		WithResult(ResultSuccess).
		WithMetadata("path", path).
		WithDescription("Configuration loaded from " + path)

	return l.Log(ctx, event)
}

func (l *eventLogger) LogConfigDefaulted(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventConfigDefaulted).
		WithCorrelationID(runID).
		WithError(err, "config_error").
		WithDescription("Configuration unusable, built-in defaults applied")

	return l.Log(ctx, event)
}

func (l *eventLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flushLocked()
	return l.out.Sync()
}

func (l *eventLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
		if err = l.Sync(); err != nil {
			return
		}
		err = l.rotator.Close()
	})
	return err
}

// MarshalLogObject writes the event as a flat JSON line.
func (e *Event) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("correlation_id", e.CorrelationID)
	enc.AddString("event_type", string(e.EventType))
	enc.AddString("result", string(e.Result))
	if e.Module != "" {
		enc.AddString("module", e.Module)
	}
	if e.Action != "" {
		enc.AddString("action", e.Action)
	}
	if e.Description != "" {
		enc.AddString("description", e.Description)
	}
	if len(e.Metadata) > 0 {
		if err := enc.AddReflected("metadata", e.Metadata); err != nil {
			return err
		}
	}
	if e.Error != "" {
		enc.AddString("error", e.Error)
		enc.AddString("error_code", e.ErrorCode)
	}
	if e.DurationMs > 0 {
		enc.AddInt64("duration_ms", e.DurationMs)
	}
	return nil
}

// nopEventLogger discards events.
type nopEventLogger struct{}

// NewNopEventLogger returns an EventLogger that records nothing.
func NewNopEventLogger() EventLogger { return nopEventLogger{} }

func (nopEventLogger) Log(context.Context, *Event) error { return nil }
func (nopEventLogger) LogRunStarted(context.Context, string, []string, bool, bool) error {
	return nil
}
func (nopEventLogger) LogRunCompleted(context.Context, string, map[report.ResolutionStatus]int, time.Duration) error {
	return nil
}
func (nopEventLogger) LogRunAborted(context.Context, string, error) error              { return nil }
func (nopEventLogger) LogModuleReported(context.Context, *report.RunReport) error      { return nil }
func (nopEventLogger) LogModuleSkipped(context.Context, string, string, string) error  { return nil }
func (nopEventLogger) LogModuleDetected(context.Context, string, string, int, time.Duration) error {
	return nil
}
func (nopEventLogger) LogModuleRemediated(context.Context, string, string, []string, []string, time.Duration) error {
	return nil
}
func (nopEventLogger) LogModuleVerified(context.Context, string, string, string, time.Duration) error {
	return nil
}
func (nopEventLogger) LogModuleFailed(context.Context, string, string, string, error) error { return nil }
func (nopEventLogger) LogGateDenied(context.Context, string, string, []string) error   { return nil }
func (nopEventLogger) LogGateForced(context.Context, string, string) error             { return nil }
func (nopEventLogger) LogQuotaExhausted(context.Context, string, string, string) error { return nil }
func (nopEventLogger) LogConfigLoaded(context.Context, string, string) error { return nil }
func (nopEventLogger) LogConfigDefaulted(context.Context, string, error) error         { return nil }
func (nopEventLogger) Sync() error                                                     { return nil }
func (nopEventLogger) Close() error                                                    { return nil }
