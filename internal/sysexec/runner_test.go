package sysexec

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	r := NewExecRunner()

	out, err := r.Run(context.Background(), "sh", "-c", "echo inactive; exit 3")
	require.Error(t, err)
	assert.Equal(t, "inactive", out)

	out, err = r.Run(context.Background(), "sh", "-c", "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestExecRunnerTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	r := &ExecRunner{Timeout: 50 * time.Millisecond}

	_, err := r.Run(context.Background(), "sleep", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecRunnerNotFound(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFirstSuccess(t *testing.T) {
	f := NewFakeRunner().
		On("resolvectl flush-caches", "", errors.New("exit status 1")).
		On("systemd-resolve --flush-caches", "", nil)

	used, err := FirstSuccess(context.Background(), f,
		[]string{"resolvectl", "flush-caches"},
		[]string{"systemd-resolve", "--flush-caches"},
		[]string{"systemctl", "restart", "nscd"},
	)
	require.NoError(t, err)
	assert.Equal(t, "systemd-resolve --flush-caches", used)
	assert.False(t, f.Called("systemctl restart nscd"))
}

func TestFirstSuccessAllFail(t *testing.T) {
	f := NewFakeRunner()

	_, err := FirstSuccess(context.Background(), f, []string{"a"}, []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all alternatives failed")
	assert.Equal(t, []string{"a", "b"}, f.Calls())
}

func TestFakeRunnerThen(t *testing.T) {
	f := NewFakeRunner().
		On("systemctl is-active cups", "inactive", errors.New("exit status 3")).
		On("systemctl restart cups", "", nil).
		Then("systemctl restart cups", func(f *FakeRunner) {
			f.On("systemctl is-active cups", "active", nil)
		})
	ctx := context.Background()

	_, err := f.Run(ctx, "systemctl", "is-active", "cups")
	require.Error(t, err)

	_, err = f.Run(ctx, "systemctl", "restart", "cups")
	require.NoError(t, err)

	out, err := f.Run(ctx, "systemctl", "is-active", "cups")
	require.NoError(t, err)
	assert.Equal(t, "active", out)
}
