package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBudgetCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect spend budgets and policies",
	}

	var scope string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				if a.enforcer == nil {
					fmt.Println("Budget enforcement is disabled.")
					return nil
				}

				statuses, err := a.enforcer.Status(ctx, scope)
				if err != nil {
					return err
				}
				if len(statuses) == 0 {
					fmt.Println("No budget policies found for this scope.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SCOPE\tPROVIDER\tPERIOD\tMAX COST\tSPENT\tREMAINING")
				for _, s := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t$%.4f\t$%.4f\t$%.4f\n",
						s.Policy.Scope, defaultStr(s.Policy.Provider, "(any)"), s.Policy.Period,
						s.Policy.MaxCost, s.Spent, s.Remaining)
				}
				return w.Flush()
			})
		},
	}
	statusCmd.Flags().StringVar(&scope, "scope", "*", "scope to report")

	cmd.AddCommand(statusCmd)
	return cmd
}
