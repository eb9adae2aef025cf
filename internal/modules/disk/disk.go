// Package disk detects low free space and reclaims it by removing aged
// temporary files and logs.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"go.uber.org/zap"
)

// Name is the registry key.
const Name = "disk"

// CheckFreeSpace is the only check this module runs.
const CheckFreeSpace = "free_space"

const gib = 1 << 30

// Config holds thresholds and cleanup locations.
type Config struct {
	WarningGB  float64
	CriticalGB float64
	// Mounts restricts detection; empty means every real filesystem.
	Mounts []string

	CleanupDirs    []string
	LogDirs        []string
	MaxFileAge     time.Duration
	MaxLogFileAge  time.Duration
	LogFilePattern []string
}

// Mount is a filesystem with its capacity.
type Mount struct {
	Path       string
	TotalBytes uint64
	FreeBytes  uint64
}

// FreeGB is the free space in GiB.
func (m Mount) FreeGB() float64 { return float64(m.FreeBytes) / gib }

// FreePercent is the share of the filesystem still free.
func (m Mount) FreePercent() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	return float64(m.FreeBytes) / float64(m.TotalBytes) * 100
}

// Module is the disk fault module.
type Module struct {
	cfg    Config
	logger *zap.Logger

	listMounts func() ([]string, error)
	usage      func(path string) (total, free uint64, err error)
	now        func() time.Time
}

// Option customizes a Module.
type Option func(*Module)

// WithMountLister replaces filesystem discovery.
func WithMountLister(fn func() ([]string, error)) Option {
	return func(m *Module) { m.listMounts = fn }
}

// WithUsage replaces the free-space probe.
func WithUsage(fn func(path string) (total, free uint64, err error)) Option {
	return func(m *Module) { m.usage = fn }
}

// WithClock replaces time.Now for file age checks.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates the disk module.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Module {
	if len(cfg.LogFilePattern) == 0 {
		cfg.LogFilePattern = []string{"*.log", "*.gz"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Module{
		cfg:        cfg,
		logger:     logger.Named("DiskModule"),
		listMounts: systemMounts,
		usage:      statfs,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultCleanupDirs are the temp and cache directories for goos.
func DefaultCleanupDirs(goos string) []string {
	home, _ := os.UserHomeDir()
	var dirs []string
	switch goos {
	case "windows":
		dirs = []string{os.TempDir(), `C:\Windows\Temp`}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "AppData", "Local", "Temp"))
		}
	case "darwin":
		dirs = []string{"/tmp", "/var/tmp"}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Caches"))
		}
	default:
		dirs = []string{"/tmp", "/var/tmp"}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".cache"))
		}
	}
	return dirs
}

// DefaultLogDirs are the system log directories for goos.
func DefaultLogDirs(goos string) []string {
	switch goos {
	case "windows":
		return []string{`C:\Windows\Logs`}
	case "darwin":
		home, _ := os.UserHomeDir()
		dirs := []string{"/var/log"}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Logs"))
		}
		return dirs
	default:
		return []string{"/var/log"}
	}
}

func (m *Module) Name() string { return Name }

// Detect reports filesystems below the warning or critical free-space level.
func (m *Module) Detect(ctx context.Context) (*module.DetectionResult, error) {
	paths := m.cfg.Mounts
	if len(paths) == 0 {
		var err error
		paths, err = m.listMounts()
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindDetection, "disk.Detect", err, "cannot list filesystems")
		}
	}

	var issues []module.Issue
	probed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		total, free, err := m.usage(path)
		if err != nil {
			m.logger.Warn("cannot read filesystem usage", zap.String("operation", "CheckDiskSpace"),
				zap.String("mount", path), zap.Error(err))
			continue
		}
		probed++

		mnt := Mount{Path: path, TotalBytes: total, FreeBytes: free}
		m.logger.Debug(fmt.Sprintf("%s: %.2fGB free (%.1f%%)", path, mnt.FreeGB(), mnt.FreePercent()),
			zap.String("operation", "CheckDiskSpace"))

		var severity module.Severity
		switch {
		case mnt.FreeGB() < m.cfg.CriticalGB:
			severity = module.SeverityCritical
		case mnt.FreeGB() < m.cfg.WarningGB:
			severity = module.SeverityWarning
		default:
			continue
		}
		desc := fmt.Sprintf("%s: %s has only %.2fGB free (%.1f%%)",
			strings.ToUpper(string(severity)), path, mnt.FreeGB(), mnt.FreePercent())
		m.logger.Warn(desc, zap.String("operation", "CheckDiskSpace"))
		issues = append(issues, module.NewIssue(Name, CheckFreeSpace, path, desc, severity).
			WithDetail("freeBytes", free).
			WithDetail("totalBytes", total))
	}

	if probed == 0 && len(paths) > 0 {
		return nil, agenterr.New(agenterr.KindDetection, "disk.Detect", "no filesystem could be measured")
	}
	return module.NewDetectionResult(issues), nil
}

// Fix removes aged temp files and logs. Cleanup is global; it does not
// depend on which filesystem reported the issue.
func (m *Module) Fix(ctx context.Context, issues []module.Issue) (*module.RemediationResult, error) {
	res := module.NewRemediationResult()
	if len(issues) == 0 {
		return res.Complete(), nil
	}

	now := m.now()
	var freed int64

	for _, dir := range m.cfg.CleanupDirs {
		n, bytes, err := m.removeOlder(ctx, dir, now.Add(-m.cfg.MaxFileAge), nil)
		freed += bytes
		m.record(res, "CleanTemp", dir, n, bytes, err)
	}
	for _, dir := range m.cfg.LogDirs {
		n, bytes, err := m.removeOlder(ctx, dir, now.Add(-m.cfg.MaxLogFileAge), m.cfg.LogFilePattern)
		freed += bytes
		m.record(res, "CleanLogs", dir, n, bytes, err)
	}

	m.logger.Info(fmt.Sprintf("disk cleanup completed. Space freed: %.2f MB", mb(freed)),
		zap.String("operation", "Fix"))
	return res.Complete(), nil
}

func (m *Module) record(res *module.RemediationResult, op, dir string, files int, bytes int64, err error) {
	log := m.logger.With(zap.String("operation", op), zap.String("dir", dir))
	switch {
	case err != nil:
		log.Warn("cleanup failed", zap.Error(err))
		res.AddError(fmt.Sprintf("clean %s: %v", dir, err))
	case files > 0:
		log.Info(fmt.Sprintf("removed %d file(s), %.2f MB freed", files, mb(bytes)))
		res.AddAction(fmt.Sprintf("removed %d file(s) from %s (%.2f MB freed)", files, dir, mb(bytes)))
	default:
		log.Debug("nothing to remove")
	}
}

// removeOlder deletes regular files directly inside dir modified before
// cutoff. Symlinks and subdirectories are left alone. A missing dir is not
// an error; per-file failures are skipped.
func (m *Module) removeOlder(ctx context.Context, dir string, cutoff time.Time, patterns []string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	var removed int
	var freed int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, freed, err
		}
		if !entry.Type().IsRegular() || !matches(entry.Name(), patterns) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.logger.Debug("cannot remove file", zap.String("operation", "Fix"), zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
		freed += info.Size()
	}
	return removed, freed, nil
}

func matches(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func mb(b int64) float64 { return float64(b) / (1 << 20) }

// Verify re-runs detection for the original issues.
func (m *Module) Verify(ctx context.Context, originalIssues []module.Issue) (*module.VerificationResult, error) {
	return module.VerifyByRedetect(ctx, m, originalIssues)
}
