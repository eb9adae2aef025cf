package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kubilitics/kubilitics-agent/internal/config"
	"github.com/kubilitics/kubilitics-agent/internal/module"
	"github.com/kubilitics/kubilitics-agent/internal/modules"
	"github.com/kubilitics/kubilitics-agent/internal/orchestrator"
	"github.com/kubilitics/kubilitics-agent/internal/safety"
	"github.com/kubilitics/kubilitics-agent/internal/sysexec"
	"github.com/kubilitics/kubilitics-agent/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configPath string
	modules    []string
	testOnly   bool
	force      bool
	silent     bool

	stdout io.Writer
	stderr io.Writer

	// Seams for tests; production uses the host implementations.
	runner   sysexec.Runner
	register func(reg *module.Registry, cfg *config.Config, runner sysexec.Runner, logger *zap.Logger) error
	signals  func(cfg *config.Config, runner sysexec.Runner) safety.Signals
}

// exitError carries a process exit code out of a cobra RunE. A nil err means
// the command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newApp(out, errOut io.Writer) *app {
	runner := sysexec.NewExecRunner()
	return &app{
		stdout:   out,
		stderr:   errOut,
		runner:   runner,
		register: modules.Register,
		signals:  hostSignals,
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubilitics-agent",
		Short: "Unattended endpoint remediation agent",
		Long: "kubilitics-agent detects common endpoint faults (network, disk, services, printing), " +
			"repairs them when the host is idle and the daily quota allows, and reports every run.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAgent(cmd.Context())
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "path to the config file (YAML or JSON)")
	addRunFlags(cmd, a)

	cmd.AddCommand(
		newRunCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	cmd.SetVersionTemplate(fmt.Sprintf("kubilitics-agent {{.Version}} (commit %s, built %s)\n", version.Commit, version.BuildDate))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kubilitics-agent %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
			return nil
		},
	}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	return execute(newApp(os.Stdout, os.Stderr), args)
}

func execute(a *app, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return orchestrator.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(a.stderr, "error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(a.stderr, "error:", err)
	return orchestrator.ExitNotStarted
}
