package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCompareCmd(flags *rootFlags) *cobra.Command {
	var tokens int

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the estimated cost of every model, cheapest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokens < 0 {
				return errors.New("--tokens must not be negative")
			}
			return withApp(flags, func(ctx context.Context, a *app) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tMODEL\tTOKENS\tEST. COST\tSTATUS")
				for _, c := range a.manager.CompareCosts(tokens) {
					fmt.Fprintf(w, "%s\t%s\t%d\t$%.6f\t%s\n", c.ProviderID, c.ModelID, c.Tokens, c.Cost, c.Status)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&tokens, "tokens", "t", 1000, "input and output tokens to price")
	return cmd
}
