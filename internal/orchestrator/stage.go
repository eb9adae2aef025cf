package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/agenterr"
)

// PanicError is a recovered panic from a module stage.
type PanicError struct {
	Value interface{}
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// runStage calls fn under the stage timeout. It returns when fn returns or
// the stage context ends, whichever comes first; a module that ignores its
// context is abandoned, not waited for.
func runStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	stageCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Value: r, Stack: string(debug.Stack())}}
			}
		}()
		v, err := fn(stageCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-stageCtx.Done():
		return zero, stageCtx.Err()
	}
}

// classify turns a stage error into a kind-tagged agent error. parent is the
// run context, used to tell a stage timeout from run cancellation.
func classify(parent context.Context, err error, kind agenterr.Kind, op, moduleName string, timeout time.Duration) error {
	var ae *agenterr.Error
	var pe *PanicError

	switch {
	case errors.As(err, &pe):
		ae = &agenterr.Error{Kind: agenterr.KindPanic, Op: op, Message: "module panicked", Err: err}
	case errors.Is(parent.Err(), context.Canceled):
		ae = &agenterr.Error{Kind: agenterr.KindCanceled, Op: op, Message: "run canceled", Err: err}
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		ae = &agenterr.Error{Kind: agenterr.KindTimeout, Op: op, Message: "run deadline exceeded", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		ae = &agenterr.Error{Kind: agenterr.KindTimeout, Op: op, Message: fmt.Sprintf("stage exceeded %s", timeout), Err: err}
	case errors.Is(err, context.Canceled):
		ae = &agenterr.Error{Kind: agenterr.KindCanceled, Op: op, Message: "stage canceled", Err: err}
	case errors.As(err, &ae):
		// already tagged by the module
	default:
		ae = &agenterr.Error{Kind: kind, Op: op, Err: err}
	}
	return ae.ForModule(moduleName)
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
