package sysexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Response is a canned command result for FakeRunner.
type Response struct {
	Output string
	Err    error
}

// FakeRunner returns canned responses keyed by the full command line.
// Unknown commands fail with exec.ErrNotFound semantics.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	effects   map[string]func(*FakeRunner)
	calls     []string
}

// NewFakeRunner creates an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]Response), effects: make(map[string]func(*FakeRunner))}
}

// On registers the response for a command line such as "systemctl is-active cups".
func (f *FakeRunner) On(cmdline string, output string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = Response{Output: output, Err: err}
	return f
}

// Then registers a state change applied after cmdline runs successfully,
// such as a restarted unit now reporting active.
func (f *FakeRunner) Then(cmdline string, effect func(*FakeRunner)) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effects[cmdline] = effect
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))

	f.mu.Lock()
	f.calls = append(f.calls, line)
	resp, ok := f.responses[line]
	effect := f.effects[line]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	if resp.Err == nil && effect != nil {
		effect(f)
	}
	return resp.Output, resp.Err
}

// Calls returns the command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Called reports whether cmdline was run.
func (f *FakeRunner) Called(cmdline string) bool {
	for _, c := range f.Calls() {
		if c == cmdline {
			return true
		}
	}
	return false
}
