package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Package audit records what the agent did.
//
// Three sinks:
//   - execution log: execution_YYYY-MM-DD.log, one line per event in the form
//     "timestamp | LEVEL | component | operation | message"
//   - audit log: audit.log, JSON lines of lifecycle events keyed by run ID
//   - reports: one JSON document per module per run, indexed in run history
//
// None of the sinks can fail a module. Write errors surface as warnings.

const (
	// DefaultComponent is used for log lines from the unnamed root logger.
	DefaultComponent = "Agent"

	// DefaultOperation is used when a line carries no operation field.
	DefaultOperation = "General"

	// OperationKey is the field lifted into the operation column.
	OperationKey = "operation"

	timeLayout = "2006-01-02 15:04:05.000"
)

// Config represents execution logger configuration
type Config struct {
	// LogDir is the preferred directory for execution and audit logs
	LogDir string

	// FallbackDir is used when LogDir is not writable
	FallbackDir string

	// Level is the minimum log level (debug, info, warn, error)
	Level string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// Silent drops the console sink
	Silent bool

	// Console receives log lines unless Silent. Defaults to stderr.
	Console io.Writer
}

// DefaultConfig returns default execution logger configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:      "/var/log/kubilitics-agent",
		FallbackDir: filepath.Join(home, ".kubilitics-agent", "logs"),
		Level:       "info",
		MaxSize:     50,
		MaxBackups:  10,
		MaxAge:      30,
		Compress:    true,
	}
}

// ExecutionLog is the run's logger and the file it writes.
type ExecutionLog struct {
	Logger *zap.Logger
	Path   string
	Dir    string

	rotator *lumberjack.Logger
}

// Close flushes and closes the log file.
func (l *ExecutionLog) Close() error {
	_ = l.Logger.Sync()
	return l.rotator.Close()
}

// ExecutionLogName returns the daily log file name for t.
func ExecutionLogName(t time.Time) string {
	return "execution_" + t.Format("2006-01-02") + ".log"
}

// NewExecutionLogger opens the daily execution log.
func NewExecutionLogger(cfg *Config, now time.Time) (*ExecutionLog, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	dir, fellBack, err := writableDir(cfg.LogDir, cfg.FallbackDir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ExecutionLogName(now))

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(NewLineEncoder(), zapcore.AddSync(rotator), level),
	}
	if !cfg.Silent {
		console := cfg.Console
		if console == nil {
			console = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(NewLineEncoder(), zapcore.AddSync(console), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	if fellBack {
		logger.Warn("log directory not writable, using fallback",
			zap.String(OperationKey, "OpenLog"),
			zap.String("preferred", cfg.LogDir),
			zap.String("dir", dir),
		)
	}

	return &ExecutionLog{Logger: logger, Path: path, Dir: dir, rotator: rotator}, nil
}

func writableDir(preferred, fallback string) (string, bool, error) {
	if err := probeDir(preferred); err == nil {
		return preferred, false, nil
	}
	if fallback == "" {
		return "", false, fmt.Errorf("log directory %s not writable and no fallback", preferred)
	}
	if err := probeDir(fallback); err != nil {
		return "", false, fmt.Errorf("log directories %s and %s not writable: %w", preferred, fallback, err)
	}
	return fallback, true, nil
}

func probeDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// lineEncoder is a console encoder that lifts the operation field into its
// own column between the component and the message.
type lineEncoder struct {
	zapcore.Encoder
	operation string
}

// NewLineEncoder returns the execution log encoder.
func NewLineEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "timestamp",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "message",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      paddedLevel,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       paddedName,
		ConsoleSeparator: " | ",
	}
	return &lineEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func paddedLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%-8s", l.CapitalString()))
}

func paddedName(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%-15s", name))
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone(), operation: e.operation}
}

func (e *lineEncoder) AddString(key, value string) {
	if key == OperationKey {
		e.operation = value
		return
	}
	e.Encoder.AddString(key, value)
}

func (e *lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	op := e.operation
	rest := fields[:0:0]
	for _, f := range fields {
		if f.Key == OperationKey && f.Type == zapcore.StringType {
			op = f.String
			continue
		}
		rest = append(rest, f)
	}
	if op == "" {
		op = DefaultOperation
	}
	if ent.LoggerName == "" {
		ent.LoggerName = DefaultComponent
	}
	ent.Message = fmt.Sprintf("%-20s | %s", op, ent.Message)
	return e.Encoder.EncodeEntry(ent, rest)
}
