//go:build !linux

package safety

import (
	"context"
	"errors"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
)

var errUnsupported = errors.New("signal not available on this platform")

// HostSignals reports every reading as unavailable, so the gate fails
// closed on platforms without a provider.
type HostSignals struct{}

// NewHostSignals creates the fallback provider.
func NewHostSignals(runner sysexec.Runner, sampleWindow time.Duration) *HostSignals {
	return &HostSignals{}
}

func (s *HostSignals) Now() time.Time { return time.Now() }

func (s *HostSignals) ActiveSessions(ctx context.Context) (int, error) { return 0, errUnsupported }

func (s *HostSignals) CPUPercent(ctx context.Context) (float64, error) { return 0, errUnsupported }

func (s *HostSignals) Uptime(ctx context.Context) (time.Duration, error) { return 0, errUnsupported }

func (s *HostSignals) PendingReboot(ctx context.Context) (bool, error) { return false, nil }
