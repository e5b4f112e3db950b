package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/monitor"
	"github.com/dshills/llmdiag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "llmdiag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config wires the server to an already constructed pipeline
type Config struct {
	Monitor  *monitor.Monitor
	Storage  storage.Storage
	Overlay  *document.Overlay // unsaved buffers pushed by the client
	Settings config.Provider
	Logger   *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	monitor  *monitor.Monitor
	storage  storage.Storage
	overlay  *document.Overlay
	settings config.Provider
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Monitor == nil:
		return nil, errors.New("mcp: monitor is required")
	case cfg.Storage == nil:
		return nil, errors.New("mcp: storage is required")
	case cfg.Overlay == nil:
		return nil, errors.New("mcp: overlay is required")
	case cfg.Settings == nil:
		return nil, errors.New("mcp: settings provider is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		monitor:  cfg.Monitor,
		storage:  cfg.Storage,
		overlay:  cfg.Overlay,
		settings: cfg.Settings,
		logger:   logger,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Pending analyses are cancelled and storage is closed on return.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.monitor.Close()
		s.monitor.Wait()
		_ = s.storage.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(documentSavedTool(), s.handleDocumentSaved)
	s.mcp.AddTool(documentOpenedTool(), s.handleDocumentOpened)
	s.mcp.AddTool(documentClosedTool(), s.handleDocumentClosed)
	s.mcp.AddTool(analyzeWorkspaceTool(), s.handleAnalyzeWorkspace)
	s.mcp.AddTool(getDiagnosticsTool(), s.handleGetDiagnostics)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
