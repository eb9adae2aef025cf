package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "agent.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, lock.Path())
	assert.Equal(t, os.Getpid(), Holder(path))

	_, err = Acquire(path)
	require.Error(t, err)
	assert.True(t, agenterr.IsKind(err, agenterr.KindLocked))
	assert.Contains(t, err.Error(), "another agent run holds")

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	again, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestHolderMissing(t *testing.T) {
	assert.Zero(t, Holder(filepath.Join(t.TempDir(), "none.lock")))
}

func TestStaleFileDoesNotBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")
	// Left behind by a run that was killed.
	require.NoError(t, os.WriteFile(path, []byte("99999\n"), 0o644))

	lock, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), Holder(path))
	require.NoError(t, lock.Release())
}
