// Package mcp exposes search over the document corpus to MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askstream/askstream/internal/handler"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	handler   *handler.Handler
	retriever provider.Retriever
}

// Config contains server configuration.
type Config struct {
	Handler   *handler.Handler
	Retriever provider.Retriever
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	s := &Server{
		handler:   cfg.Handler,
		retriever: cfg.Retriever,
	}

	mcpServer := server.NewMCPServer(
		"askstream",
		"0.1.0",
		server.WithLogging(),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// ask - Rank corpus documents against a question
	mcpServer.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question with ranked documents from the corpus"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithString("site", mcp.Description("Restrict to a single site")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results (default 10)")),
		mcp.WithNumber("min_score", mcp.Description("Minimum relevance score, 0-100")),
	), s.handleAsk)

	// get_status - Get corpus status
	mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Get document corpus status and statistics"),
	), s.handleGetStatus)
}

// collectSink buffers streamed messages. An MCP tool call returns a single
// response, so early sends are collected rather than pushed.
type collectSink struct {
	mu       sync.Mutex
	messages []*types.Message
}

func (c *collectSink) Send(ctx context.Context, msg *types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	ask := &handler.AskRequest{
		Query:      query,
		Site:       req.GetString("site", ""),
		MaxResults: req.GetInt("max_results", 0),
		MinScore:   req.GetInt("min_score", 0),
	}

	sink := &collectSink{}
	rankReq, err := s.handler.Handle(ctx, ask, sink)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	final := rankReq.Final()
	payloads := make([]any, 0, len(final))
	for _, res := range final {
		payloads = append(payloads, res.Payload())
	}

	result := map[string]any{
		"query":   query,
		"results": payloads,
	}
	for _, msg := range sink.messages {
		switch msg.Kind {
		case types.MessageSummary, types.MessageLocationMap:
			result[msg.Kind] = msg.Content
		}
	}

	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.retriever.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	result := map[string]any{
		"documents": stats.Documents,
		"sites":     stats.Sites,
		"db_size":   formatBytes(stats.SizeBytes),
	}

	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
