package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// completionFlags holds the per-request options of the complete command.
type completionFlags struct {
	opts        models.CompletionOptions
	complexity  string
	contextKV   []string
	temperature float64
	topP        float64
}

func (f *completionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.complexity, "complexity", "", "task complexity: simple, medium, complex, critical")
	cmd.Flags().StringVar(&f.opts.ForceProvider, "provider", "", "force a provider")
	cmd.Flags().StringVar(&f.opts.Model, "model", "", "model of the forced provider")
	cmd.Flags().IntVar(&f.opts.MaxRetries, "max-retries", 0, "primary attempts before the fallback (0 uses config)")
	cmd.Flags().StringVar(&f.opts.Scope, "scope", "", "tenant or agent scope")
	cmd.Flags().StringVar(&f.opts.Category, "category", "", "cache TTL category")
	cmd.Flags().StringArrayVar(&f.contextKV, "context", nil, "key=value context folded into the cache key (repeatable)")
	cmd.Flags().BoolVar(&f.opts.NoCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().IntVar(&f.opts.MaxTokens, "max-tokens", 0, "output token limit")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().Float64Var(&f.topP, "top-p", 0, "nucleus sampling probability mass")
}

// options resolves the parsed flags. Sampling parameters are only sent when
// set on the command line.
func (f *completionFlags) options(cmd *cobra.Command) (models.CompletionOptions, error) {
	opts := f.opts
	opts.Complexity = models.Complexity(f.complexity)
	kv, err := parseContext(f.contextKV)
	if err != nil {
		return opts, err
	}
	opts.Context = kv
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		opts.Temperature = &t
	}
	if cmd.Flags().Changed("top-p") {
		if f.topP <= 0 || f.topP > 1 {
			return opts, fmt.Errorf("--top-p must be in (0,1], got %v", f.topP)
		}
		p := f.topP
		opts.TopP = &p
	}
	return opts, nil
}

func newCompleteCmd(flags *rootFlags) *cobra.Command {
	var (
		req       completionFlags
		parallel  int
		asJSON    bool
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "complete PROMPT [PROMPT...]",
		Short: "Complete one or more prompts through the orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := req.options(cmd)
			if err != nil {
				return err
			}

			return withApp(flags, func(ctx context.Context, a *app) error {
				results := make([]models.CompletionResult, len(args))

				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(max(parallel, 1))
				for i, prompt := range args {
					g.Go(func() error {
						results[i] = a.manager.Complete(gctx, prompt, opts)
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}

				failed := 0
				for i, r := range results {
					if !r.Success {
						failed++
					}
					if asJSON {
						continue
					}
					if len(results) > 1 {
						fmt.Printf("== %s\n", args[i])
					}
					printResult(r)
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(results); err != nil {
						return err
					}
				}

				if showStats && !asJSON {
					printStats(a.manager.Stats())
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d completions failed", failed, len(results))
				}
				return nil
			})
		},
	}

	req.bind(cmd)
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "prompts completed concurrently")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&showStats, "stats", true, "print usage and cache stats afterwards")
	return cmd
}

func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.New("context must be key=value, got " + p)
		}
		out[k] = v
	}
	return out, nil
}

func printResult(r models.CompletionResult) {
	if !r.Success {
		fmt.Printf("FAILED after %d attempt(s): %v\n", r.AttemptCount, r.Err)
		for _, e := range r.Errors {
			fmt.Printf("  %s/%s: %s\n", e.ProviderID, e.ModelID, e.Message)
		}
		return
	}
	fmt.Println(r.Text)

	source := "provider"
	switch {
	case r.FromCache:
		source = "cache"
	case r.UsedFallback:
		source = "fallback"
	}
	fmt.Fprintf(os.Stderr, "[%s/%s via %s, attempts=%d, tokens=%d/%d, cost=$%.6f]\n",
		r.ProviderID, r.ModelID, source, r.AttemptCount, r.InputTokens, r.OutputTokens, r.Cost)
}

func printStats(s models.ManagerStats) {
	u, c := s.Usage, s.Cache
	fmt.Printf("\ncalls=%d ok=%d failed=%d provider_calls=%d fallbacks=%d cost=$%.6f\n",
		u.TotalCalls, u.Successes, u.Failures, u.ProviderCalls, u.FallbackCount, u.TotalCost)
	fmt.Printf("cache: entries=%d hits=%d misses=%d hit_rate=%s memory=%s evictions=%d savings=$%.4f\n",
		c.Entries, c.Hits, c.Misses, c.HitRate, c.MemoryUsage, c.Evictions, c.EstimatedSavings)
}
