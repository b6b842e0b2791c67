// Package mcp publishes the enabled tools as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, conn *session.Conn) plugin.ActionResponse
}

type ToolLister interface {
	Enabled(names []string) []llm.ToolDeclaration
}

type Options struct {
	Name      string
	Version   string
	Functions []string
	// Session is shared by every call on this server; an MCP client is a
	// single conversation.
	Session *session.Conn
	Logger  *slog.Logger
}

type Server struct {
	invoker   Invoker
	session   *session.Conn
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

func NewServer(invoker Invoker, tools ToolLister, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = "pluma"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session == nil {
		opts.Session = session.NewConn(session.NewID(), session.Options{DeviceID: "mcp"})
	}
	s := &Server{
		invoker:   invoker,
		session:   opts.Session,
		logger:    opts.Logger,
		mcpServer: server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false)),
	}
	for _, decl := range tools.Enabled(opts.Functions) {
		if err := s.addTool(decl); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) addTool(decl llm.ToolDeclaration) error {
	schema, err := json.Marshal(decl.Normalized().Parameters)
	if err != nil {
		return fmt.Errorf("encode %s schema: %w", decl.Name, err)
	}
	name := decl.Name
	tool := mcp.NewToolWithRawSchema(name, decl.Description, schema)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.invoker.Invoke(ctx, name, request.GetArguments(), s.session)
		return toResult(resp), nil
	})
	return nil
}

// toResult maps an action onto an MCP tool result. ERROR becomes an MCP
// error result; NONE is an empty text result.
func toResult(resp plugin.ActionResponse) *mcp.CallToolResult {
	switch resp.Action {
	case plugin.ActionError:
		return mcp.NewToolResultError(resp.Error)
	case plugin.ActionNone:
		return mcp.NewToolResultText("")
	}
	return mcp.NewToolResultText(resp.Result)
}

// MCPServer exposes the underlying server, mostly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp_serving", "transport", "stdio")
	return server.ServeStdio(s.mcpServer)
}
