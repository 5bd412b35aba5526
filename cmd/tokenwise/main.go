package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "tokenwise",
		Short:         "tokenwise: cost-aware LLM orchestration with caching, rate limits and fallback",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (defaults to built-in providers)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override log format (json, console)")

	root.AddCommand(
		newCompleteCmd(&flags),
		newModelsCmd(&flags),
		newStatusCmd(&flags),
		newCompareCmd(&flags),
		newLedgerCmd(&flags),
		newBudgetCmd(&flags),
		newMCPCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
