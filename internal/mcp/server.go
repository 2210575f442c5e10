// Package mcp exposes the question gateway as Model Context Protocol tools
// over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/atmo-climate/atmo/internal/gateway"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the climate assistant.
type Server struct {
	gateway *gateway.Gateway
	mcp     *server.MCPServer
}

// NewServer creates a new MCP server over gw.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{gateway: gw}

	s.mcp = server.NewMCPServer(
		"atmo",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askClimateTool, s.handleAskClimate)
	s.mcp.AddTool(getSessionHistoryTool, s.handleGetSessionHistory)
	s.mcp.AddTool(listSessionsTool, s.handleListSessions)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
