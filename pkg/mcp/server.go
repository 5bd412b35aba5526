// Package mcp exposes the orchestrator as MCP tools over stdio JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/logging"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/tracker"
)

const protocolVersion = "2024-11-05"

// Orchestrator is the completion and introspection surface served as tools.
type Orchestrator interface {
	Complete(ctx context.Context, prompt string, opts models.CompletionOptions) models.CompletionResult
	Stats() models.ManagerStats
	ClearCache()
	PurgeCache() int
	ResetStats()
	CompareCosts(tokens int) []models.CostComparison
	AvailableModels() map[string][]models.ProviderModel
	ProviderStatus() map[string]models.ProviderStatus
}

// BudgetReporter reports spend against budget policies.
type BudgetReporter interface {
	Status(ctx context.Context, scope string) ([]models.BudgetStatus, error)
}

// Server reads one request per line and writes one response per line.
type Server struct {
	orch    Orchestrator
	ledger  tracker.Tracker
	budget  BudgetReporter
	logger  *zap.Logger
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables the ledger tool.
func WithLedger(t tracker.Tracker) Option {
	return func(s *Server) { s.ledger = t }
}

// WithBudget enables the budget tool.
func WithBudget(b BudgetReporter) Option {
	return func(s *Server) { s.budget = b }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// New creates a Server.
func New(orch Orchestrator, version string, opts ...Option) *Server {
	s := &Server{orch: orch, version: version, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, replyError(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return reply(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "tokenwise", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return reply(req.ID, map[string]any{})
	case "tools/list":
		return reply(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return replyError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return replyError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return reply(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return reply(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
