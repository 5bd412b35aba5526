package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

func formatCompletion(r models.CompletionResult) string {
	var b strings.Builder
	b.WriteString(r.Text)
	b.WriteString("\n\n---\n")
	source := "provider"
	if r.FromCache {
		source = "cache"
	} else if r.UsedFallback {
		source = "fallback"
	}
	fmt.Fprintf(&b, "%s/%s via %s, %d attempt(s), %d in / %d out tokens, cost $%.6f\n",
		r.ProviderID, r.ModelID, source, r.AttemptCount, r.InputTokens, r.OutputTokens, r.Cost)
	return b.String()
}

func formatFailure(r models.CompletionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completion failed after %d attempt(s)", r.AttemptCount)
	if r.Err != nil {
		fmt.Fprintf(&b, ": %v", r.Err)
	}
	b.WriteString("\n")
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s/%s: %s\n", e.ProviderID, e.ModelID, e.Message)
	}
	return b.String()
}

// formatStats renders counters, cache metrics and rate windows.
func formatStats(s models.ManagerStats) string {
	var b strings.Builder
	u := s.Usage
	fmt.Fprintf(&b, "Usage (since %s)\n", u.Since.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Calls:          %d (%d ok, %d failed)\n", u.TotalCalls, u.Successes, u.Failures)
	fmt.Fprintf(&b, "  Provider calls: %d\n", u.ProviderCalls)
	fmt.Fprintf(&b, "  Fallbacks:      %d\n", u.FallbackCount)
	fmt.Fprintf(&b, "  Total cost:     $%.6f\n", u.TotalCost)

	c := s.Cache
	b.WriteString("Cache\n")
	fmt.Fprintf(&b, "  Entries:   %d (%s)\n", c.Entries, c.MemoryUsage)
	fmt.Fprintf(&b, "  Hits:      %d\n", c.Hits)
	fmt.Fprintf(&b, "  Misses:    %d\n", c.Misses)
	fmt.Fprintf(&b, "  Hit rate:  %s\n", c.HitRate)
	fmt.Fprintf(&b, "  Evictions: %d\n", c.Evictions)
	fmt.Fprintf(&b, "  Savings:   $%.4f\n", c.EstimatedSavings)

	if len(s.RateLimits) > 0 {
		b.WriteString("Rate limits\n")
		for _, name := range sortedKeys(s.RateLimits) {
			w := s.RateLimits[name]
			fmt.Fprintf(&b, "  %-12s %d/%d, resets %s\n", name, w.Count, w.Limit, w.ResetAt.Format("15:04:05"))
		}
	}
	return b.String()
}

// formatCostComparison formats cost comparisons as a text table.
func formatCostComparison(rows []models.CostComparison) string {
	if len(rows) == 0 {
		return "No models configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-28s %10s %12s  %s\n", "Provider", "Model", "Tokens", "Cost", "Status")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-28s %10s %12.6f  %s\n",
			r.ProviderID, r.ModelID, humanize.Comma(int64(r.Tokens)), r.Cost, r.Status)
	}
	return b.String()
}

func formatModels(byProvider map[string][]models.ProviderModel) string {
	if len(byProvider) == 0 {
		return "No providers configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-28s %10s %10s %10s\n", "Provider", "Model", "Max Tok", "$/1k in", "$/1k out")
	b.WriteString(strings.Repeat("-", 74) + "\n")
	for _, name := range sortedKeys(byProvider) {
		for _, m := range byProvider[name] {
			fmt.Fprintf(&b, "%-12s %-28s %10d %10.6f %10.6f\n",
				name, m.ModelID, m.MaxTokens, m.CostPerThousandInput, m.CostPerThousandOutput)
		}
	}
	return b.String()
}

func formatProviderStatus(status map[string]models.ProviderStatus) string {
	if len(status) == 0 {
		return "No providers defined."
	}
	var b strings.Builder
	for _, name := range sortedKeys(status) {
		fmt.Fprintf(&b, "%-12s %s\n", name, status[name])
	}
	return b.String()
}

// formatSummary formats ledger summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-10s %-26s %8s %12s %12s %12s\n",
		"Scope", "Provider", "Model", "Requests", "Input", "Output", "Cost")
	b.WriteString(strings.Repeat("-", 102) + "\n")
	for _, r := range rows {
		scope := r.Scope
		if scope == "" {
			scope = "-"
		}
		if len(scope) > 16 {
			scope = scope[:13] + "..."
		}
		fmt.Fprintf(&b, "%-16s %-10s %-26s %8d %12s %12s %12.6f\n",
			scope, r.Provider, r.Model, r.RequestCount,
			humanize.Comma(r.InputTokens), humanize.Comma(r.OutputTokens), r.TotalCost)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-10s %-8s %12s %12s %12s %6s\n",
		"Scope", "Provider", "Period", "Max Cost", "Spent", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 84) + "\n")
	for _, s := range statuses {
		provider := s.Policy.Provider
		if provider == "" {
			provider = "*"
		}
		pct := float64(0)
		if s.Policy.MaxCost > 0 {
			pct = s.Spent / s.Policy.MaxCost * 100
		}
		fmt.Fprintf(&b, "%-16s %-10s %-8s %12.4f %12.4f %12.4f %5.1f%%\n",
			s.Policy.Scope, provider, s.Policy.Period, s.Policy.MaxCost, s.Spent, s.Remaining, pct)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
