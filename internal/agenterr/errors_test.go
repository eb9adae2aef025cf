package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindTimeout},
			want: "timeout error",
		},
		{
			name: "op and message",
			err:  New(KindDetection, "disk.Detect", "statfs failed"),
			want: "disk.Detect: statfs failed",
		},
		{
			name: "wrapped cause",
			err:  &Error{Kind: KindPersistence, Op: "report.Write", Message: "rename", Err: errors.New("read-only file system")},
			want: "report.Write: rename: read-only file system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("stage: %w", New(KindTimeout, "network.Fix", "deadline exceeded"))

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrCanceled))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindConfig, "config.Load", nil, "read"))

	cause := errors.New("boom")
	err := Wrap(KindConfig, "config.Load", cause, "read")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestForModule(t *testing.T) {
	base := New(KindPanic, "Detect", "module panicked")
	scoped := base.ForModule("printer")

	assert.Equal(t, "printer", scoped.Module)
	assert.Empty(t, base.Module)
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "unknown", KindUnknown.String())
}
