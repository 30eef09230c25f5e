// Package mcp serves the conversation's function registry as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nidhogg/calcaro/internal/agent"
	"go.uber.org/zap"
)

const serverVersion = "1.0.0"

// Server exposes every function in a registry as an MCP tool.
type Server struct {
	srv    *server.MCPServer
	tools  *agent.Registry
	logger *zap.Logger
}

// NewServer registers one tool per function, advertising its JSON schema
// unchanged.
func NewServer(name string, tools *agent.Registry, logger *zap.Logger) *Server {
	s := &Server{
		srv: server.NewMCPServer(
			name,
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		tools:  tools,
		logger: logger,
	}
	for _, tool := range s.Tools() {
		s.srv.AddTool(tool, s.handler(tool.Name))
	}
	return s
}

// Tools returns the MCP tool definitions in registry order.
func (s *Server) Tools() []mcp.Tool {
	schemas := s.tools.Schemas()
	out := make([]mcp.Tool, 0, len(schemas))
	for _, fs := range schemas {
		raw, err := json.Marshal(fs.Parameters)
		if err != nil {
			s.logger.Warn("skipping tool with unencodable schema", zap.String("tool", fs.Name), zap.Error(err))
			continue
		}
		out = append(out, mcp.NewToolWithRawSchema(fs.Name, fs.Description, raw))
	}
	return out
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := req.GetArguments()
		if params == nil {
			params = map[string]any{}
		}
		args, err := json.Marshal(params)
		if err != nil {
			return toolError(fmt.Sprintf("encode arguments: %v", err)), nil
		}
		result, err := s.tools.Invoke(ctx, name, string(args))
		switch {
		case errors.Is(err, agent.ErrInvalidArguments):
			s.logger.Warn("invalid tool arguments", zap.String("tool", name), zap.Error(err))
			return toolError(err.Error()), nil
		case err != nil:
			s.logger.Error("tool failed", zap.String("tool", name), zap.Error(err))
			return toolError(err.Error()), nil
		}
		body, err := json.Marshal(result)
		if err != nil {
			return toolError(fmt.Sprintf("encode result: %v", err)), nil
		}
		s.logger.Debug("tool called", zap.String("tool", name))
		return toolText(string(body)), nil
	}
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
