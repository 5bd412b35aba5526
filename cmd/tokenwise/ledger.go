package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newLedgerCmd(flags *rootFlags) *cobra.Command {
	var (
		scope   string
		since   string
		records bool
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recorded spend by scope, provider and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime := time.Time{}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				sinceTime = t
			}

			return withApp(flags, func(ctx context.Context, a *app) error {
				tr, err := a.requireTracker()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				if records {
					recs, err := tr.QueryByScope(ctx, scope, sinceTime)
					if err != nil {
						return err
					}
					if len(recs) == 0 {
						fmt.Println("No usage recorded.")
						return nil
					}
					fmt.Fprintln(w, "TIME\tSCOPE\tPROVIDER\tMODEL\tIN\tOUT\tCOST\tFALLBACK")
					for _, r := range recs {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t$%.6f\t%t\n",
							r.CreatedAt.Local().Format(time.DateTime), defaultStr(r.Scope, "(none)"),
							r.Provider, r.Model, r.InputTokens, r.OutputTokens, r.Cost, r.Fallback)
					}
					return w.Flush()
				}

				rows, err := tr.Summary(ctx, scope)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("No usage recorded.")
					return nil
				}
				var total float64
				fmt.Fprintln(w, "SCOPE\tPROVIDER\tMODEL\tREQUESTS\tTOKENS\tFALLBACKS\tCOST")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t$%.6f\n",
						defaultStr(r.Scope, "(none)"), r.Provider, r.Model, r.RequestCount,
						humanize.Comma(r.InputTokens+r.OutputTokens), r.Fallbacks, r.TotalCost)
					total += r.TotalCost
				}
				fmt.Fprintf(w, "\t\t\t\t\tTOTAL\t$%.6f\n", total)
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "filter by scope")
	cmd.Flags().StringVar(&since, "since", "", "start date for --records (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&records, "records", false, "list individual calls of --scope instead of the summary")
	return cmd
}
