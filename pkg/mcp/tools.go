package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Tool argument structs.

type completeArgs struct {
	Prompt        string            `json:"prompt"`
	Complexity    string            `json:"complexity"`
	ForceProvider string            `json:"force_provider"`
	Model         string            `json:"model"`
	MaxRetries    int               `json:"max_retries"`
	Scope         string            `json:"scope"`
	Category      string            `json:"category"`
	Context       map[string]string `json:"context"`
	NoCache       bool              `json:"no_cache"`
	MaxTokens     int               `json:"max_tokens"`
	Temperature   *float64          `json:"temperature"`
	TopP          *float64          `json:"top_p"`
}

type scopeArgs struct {
	Scope string `json:"scope"`
}

type compareArgs struct {
	Tokens int `json:"tokens"`
}

const defaultCompareTokens = 1000

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"tokenwise_complete":        handleComplete,
	"tokenwise_stats":           handleStats,
	"tokenwise_clear_cache":     handleClearCache,
	"tokenwise_purge_cache":     handlePurgeCache,
	"tokenwise_reset_stats":     handleResetStats,
	"tokenwise_compare_costs":   handleCompareCosts,
	"tokenwise_models":          handleModels,
	"tokenwise_provider_status": handleProviderStatus,
	"tokenwise_ledger":          handleLedger,
	"tokenwise_budget":          handleBudget,
}

var emptySchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

var scopeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scope": map[string]any{
			"type":        "string",
			"description": "Tenant or agent scope (optional, omit for all scopes)",
		},
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "tokenwise_complete",
		Description: "Run a prompt through model selection, the response cache and the provider fallback chain.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"prompt"},
			"properties": map[string]any{
				"prompt": map[string]any{"type": "string", "description": "The prompt to complete"},
				"complexity": map[string]any{
					"type":        "string",
					"enum":        []string{"simple", "medium", "complex", "critical"},
					"description": "Task complexity; simple and medium pick the cheapest model, complex and critical the strongest",
				},
				"force_provider": map[string]any{"type": "string", "description": "Bypass selection and use this provider"},
				"model":          map[string]any{"type": "string", "description": "Model of the forced provider (optional)"},
				"max_retries":    map[string]any{"type": "integer", "description": "Primary attempts before the fallback"},
				"scope":          map[string]any{"type": "string", "description": "Tenant or agent scope for cache keys and budgets"},
				"category":       map[string]any{"type": "string", "description": "Cache TTL category"},
				"context":        map[string]any{"type": "object", "description": "Extra key/value context folded into the cache key"},
				"no_cache":       map[string]any{"type": "boolean", "description": "Skip the response cache"},
				"max_tokens":     map[string]any{"type": "integer", "description": "Output token limit"},
				"temperature":    map[string]any{"type": "number", "description": "Sampling temperature"},
				"top_p":          map[string]any{"type": "number", "description": "Nucleus sampling probability mass"},
			},
		},
	},
	{
		Name:        "tokenwise_stats",
		Description: "Show call counters, cache performance and rate limit windows.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_clear_cache",
		Description: "Drop every cached response.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_purge_cache",
		Description: "Drop expired cached responses and report how many were removed.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_reset_stats",
		Description: "Zero the in-memory usage counters.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_compare_costs",
		Description: "Price a call of the given size on every configured model, cheapest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tokens": map[string]any{
					"type":        "integer",
					"description": "Input and output token count (optional, defaults to 1000)",
				},
			},
		},
	},
	{
		Name:        "tokenwise_models",
		Description: "List the models of every configured provider.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_provider_status",
		Description: "Show whether each provider is available or not configured.",
		InputSchema: emptySchema,
	},
	{
		Name:        "tokenwise_ledger",
		Description: "Show recorded spend grouped by scope, provider and model.",
		InputSchema: scopeSchema,
	},
	{
		Name:        "tokenwise_budget",
		Description: "Show spend against budget policies, optionally for one scope.",
		InputSchema: scopeSchema,
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func handleComplete(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args completeArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Prompt == "" {
		return errorResult("prompt is required")
	}

	res := s.orch.Complete(ctx, args.Prompt, models.CompletionOptions{
		Complexity:    models.Complexity(args.Complexity),
		ForceProvider: args.ForceProvider,
		Model:         args.Model,
		MaxRetries:    args.MaxRetries,
		Scope:         args.Scope,
		Context:       args.Context,
		Category:      args.Category,
		NoCache:       args.NoCache,
		MaxTokens:     args.MaxTokens,
		Temperature:   args.Temperature,
		TopP:          args.TopP,
	})
	if !res.Success {
		return errorResult(formatFailure(res))
	}
	return textResult(formatCompletion(res))
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatStats(s.orch.Stats()))
}

func handleClearCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.orch.ClearCache()
	return textResult("Cache cleared.")
}

func handlePurgeCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	n := s.orch.PurgeCache()
	noun := "entries"
	if n == 1 {
		noun = "entry"
	}
	return textResult(fmt.Sprintf("Purged %d expired cache %s.", n, noun))
}

func handleResetStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.orch.ResetStats()
	return textResult("Usage counters reset.")
}

func handleCompareCosts(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args compareArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Tokens < 0 {
		return errorResult(fmt.Sprintf("tokens must not be negative, got %d", args.Tokens))
	}
	if args.Tokens == 0 {
		args.Tokens = defaultCompareTokens
	}
	return textResult(formatCostComparison(s.orch.CompareCosts(args.Tokens)))
}

func handleModels(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatModels(s.orch.AvailableModels()))
}

func handleProviderStatus(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatProviderStatus(s.orch.ProviderStatus()))
}

func handleLedger(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.ledger == nil {
		return textResult("Usage ledger is not configured.")
	}
	var args scopeArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	rows, err := s.ledger.Summary(ctx, args.Scope)
	if err != nil {
		return errorResult("Error fetching ledger: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleBudget(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.budget == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args scopeArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	statuses, err := s.budget.Status(ctx, args.Scope)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}
