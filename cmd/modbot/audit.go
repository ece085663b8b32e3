package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modbot/internal/audit"
)

func auditCmd() *cobra.Command {
	var (
		limit   int
		summary bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent tool invocations or per-tool usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit is disabled (set audit.enabled to true)")
			}
			store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			var v any
			if summary {
				usage, err := store.Summary(ctx)
				if err != nil {
					return err
				}
				v = usage
				if !asJSON {
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TOOL\tCALLS\tFAILURES\tAVG MS")
					for _, u := range usage {
						fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", u.Tool, u.Calls, u.Failures, u.AvgMillis)
					}
					return tw.Flush()
				}
			} else {
				recs, err := store.Recent(ctx, limit)
				if err != nil {
					return err
				}
				v = recs
				if !asJSON {
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TIME\tTOOL\tSTATE\tREACHED\tMS\tERROR")
					for _, r := range recs {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
							r.CreatedAt.Format("2006-01-02 15:04:05"), r.Tool, r.State, r.Reached, r.DurationMs, r.ErrorKind)
					}
					return tw.Flush()
				}
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of recent invocations")
	cmd.Flags().BoolVar(&summary, "summary", false, "aggregate per tool")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
