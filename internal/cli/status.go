package cli

import (
	"fmt"
	"strconv"

	"github.com/kubilitics/kubilitics-agent/internal/db"
	"github.com/kubilitics/kubilitics-agent/internal/quota"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's remediation quota without consuming it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := newPrinter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			cfg, cfgErr := a.loadConfig(cmd.Context())
			if cfgErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", cfgErr)
			}

			store, err := db.NewSQLiteStore(cfg.Paths.StateDB)
			if err != nil {
				return notStarted(fmt.Errorf("open state database: %w", err))
			}
			defer store.Close()

			st, err := quota.NewTracker(store, cfg.MaxRemediationsPerDay).Status(cmd.Context())
			if err != nil {
				return err
			}
			return p.table(
				[]string{"DAY", "USED", "MAX", "REMAINING"},
				[][]string{{st.Day, strconv.Itoa(st.Used), strconv.Itoa(st.Max), strconv.Itoa(st.Remaining)}},
				st,
			)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table|json")
	return cmd
}
