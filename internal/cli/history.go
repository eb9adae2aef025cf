package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kubilitics/kubilitics-agent/internal/db"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		moduleName string
		limit      int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent module outcomes, newest first",
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

			records, err := store.ListRunRecords(cmd.Context(), moduleName, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.RecordedAt.Local().Format(time.DateTime),
					r.Module,
					r.Status,
					strconv.Itoa(r.IssueCount),
					strconv.Itoa(r.ActionCount),
					flags(r),
					r.RunID,
				})
			}
			return p.table([]string{"TIME", "MODULE", "STATUS", "ISSUES", "ACTIONS", "FLAGS", "RUN"}, rows, records)
		},
	}
	cmd.Flags().StringVar(&moduleName, "module", "", "only show this module")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table|json")
	return cmd
}

func flags(r *db.RunRecord) string {
	switch {
	case r.TestOnly && r.Forced:
		return "test-only,force"
	case r.TestOnly:
		return "test-only"
	case r.Forced:
		return "force"
	default:
		return "-"
	}
}
