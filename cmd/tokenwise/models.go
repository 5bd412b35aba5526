package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

func newModelsCmd(flags *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models with pricing and priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tMODEL\tPRIORITY\tMAX TOKENS\tIN $/1K\tOUT $/1K\tSTATUS")
				for _, name := range a.registry.Providers() {
					status := a.registry.StatusOf(name)
					if !all && status != models.StatusAvailable {
						continue
					}
					ms, err := a.registry.ModelsOf(name)
					if err != nil {
						return err
					}
					for _, m := range ms {
						fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.6f\t%.6f\t%s\n",
							name, m.ModelID, m.PriorityRank, m.MaxTokens,
							m.CostPerThousandInput, m.CostPerThousandOutput, status)
					}
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include providers without credentials")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider configuration state and routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tSTATUS\tDEFAULT MODEL")
				for _, name := range a.registry.Providers() {
					def, _ := a.registry.DefaultModelOf(name)
					fmt.Fprintf(w, "%s\t%s\t%s\n", name, a.registry.StatusOf(name), def)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				sel := a.cfg.Selector
				fmt.Printf("\nprimary:  %s\n", sel.Primary)
				if sel.Fallback.Provider != "" {
					fmt.Printf("fallback: %s/%s\n", sel.Fallback.Provider, defaultStr(sel.Fallback.Model, "(default)"))
				} else {
					fmt.Println("fallback: (none)")
				}
				fmt.Printf("rate limit: %d per %s\n", a.cfg.RateLimit.Limit, a.cfg.RateLimit.Window)
				return nil
			})
		},
	}
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
