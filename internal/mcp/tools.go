package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/monitor"
	"github.com/dshills/llmdiag/internal/workspace"
	"github.com/dshills/llmdiag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeDocumentNotFound = -32001 // Document could not be read
	ErrorCodeSweepInProgress  = -32002 // Another analyze_workspace call is running
	ErrorCodeAnalysisFailed   = -32003 // The analysis provider failed
	ErrorCodeShuttingDown     = -32004 // Server is closing
)

// handleDocumentSaved handles the document_saved tool invocation
func (s *Server) handleDocumentSaved(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ev, err := s.documentEvent(request)
	if err != nil {
		return nil, err
	}

	d, err := s.monitor.HandleSave(ctx, ev)
	if err != nil {
		return nil, monitorError(err)
	}

	response := map[string]interface{}{
		"path":      string(ev.DocumentID),
		"scheduled": d.Proceed,
		"reason":    string(d.Reason),
	}
	if !d.Fingerprint.IsZero() {
		response["fingerprint"] = string(d.Fingerprint)
	}
	if d.Proceed {
		response["delay_ms"] = s.settings.Settings().AnalysisInterval().Milliseconds()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDocumentOpened handles the document_opened tool invocation
func (s *Server) handleDocumentOpened(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ev, err := s.documentEvent(request)
	if err != nil {
		return nil, err
	}

	res, err := s.monitor.HandleOpen(ctx, ev)
	if err != nil {
		return nil, monitorError(err)
	}

	response := map[string]interface{}{
		"path":    string(ev.DocumentID),
		"outcome": string(res.Outcome),
	}
	if res.Reason != "" {
		response["reason"] = string(res.Reason)
	}
	if res.Outcome == monitor.OutcomePublished {
		response["fingerprint"] = string(res.Fingerprint)
		response["model"] = res.Model
		response["diagnostics"] = diagnostics.Render(res.Issues)
		response["dropped"] = res.Dropped
		response["duration_ms"] = res.Duration.Milliseconds()
		if res.Rejected != nil {
			response["rejected"] = res.Rejected.Error()
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDocumentClosed handles the document_closed tool invocation
func (s *Server) handleDocumentClosed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := documentPath(args)
	if err != nil {
		return nil, err
	}

	s.overlay.Remove(id)
	cancelled := s.monitor.Scheduler().Cancel(id)

	forget := getBoolDefault(args, "forget", false)
	if forget {
		if err := s.monitor.Forget(ctx, id); err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to forget document", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"path":      string(id),
		"cancelled": cancelled,
		"forgotten": forget,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAnalyzeWorkspace handles the analyze_workspace tool invocation
func (s *Server) handleAnalyzeWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	// Validate path exists and is accessible
	if err := validateDir(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	ws, err := workspace.New(path, s.monitor, &workspace.Config{
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
		Logger:        s.logger,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open workspace", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats, err := ws.Sweep(ctx)
	if err != nil {
		return nil, monitorError(err)
	}

	// Format response
	response := map[string]interface{}{
		"analyzed":           true,
		"documents_analyzed": stats.DocumentsAnalyzed,
		"documents_skipped":  stats.DocumentsSkipped,
		"documents_failed":   stats.DocumentsFailed,
		"issues_published":   stats.IssuesPublished,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDiagnostics handles the get_diagnostics tool invocation
func (s *Server) handleGetDiagnostics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := documentPath(args)
	if err != nil {
		return nil, err
	}

	issues, err := s.storage.ListIssues(ctx, id)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load diagnostics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"path":        string(id),
		"diagnostics": diagnostics.Render(issues),
	}
	if fp, err := s.storage.GetFingerprint(ctx, id); err == nil {
		response["fingerprint"] = string(fp)
	}
	if pending, ok := s.monitor.Scheduler().Pending(id); ok {
		response["pending"] = string(pending)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	settings := s.settings.Settings()
	lastAnalyzed := ""
	if !status.LastAnalyzedAt.IsZero() {
		lastAnalyzed = status.LastAnalyzedAt.Format(time.RFC3339)
	}

	// Format response
	response := map[string]interface{}{
		"settings": map[string]interface{}{
			"enabled":                  settings.Enabled,
			"provider":                 settings.Provider,
			"model":                    settings.Model,
			"analysis_interval_ms":     settings.AnalysisIntervalMS,
			"languages":                settings.Languages,
			"excluded_file_extensions": settings.ExcludedFileExtensions,
		},
		"pending_analyses": s.monitor.Scheduler().Len(),
		"statistics": map[string]interface{}{
			"documents_count":  status.DocumentsCount,
			"issues_count":     status.IssuesCount,
			"last_analyzed_at": lastAnalyzed,
		},
		"storage": map[string]interface{}{
			"driver":         status.Driver,
			"schema_version": status.SchemaVersion,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// documentEvent extracts a monitor event from a document tool request and
// stores any supplied buffer text in the overlay.
func (s *Server) documentEvent(request mcp.CallToolRequest) (monitor.Event, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return monitor.Event{}, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := documentPath(args)
	if err != nil {
		return monitor.Event{}, err
	}

	if text, ok := args["text"].(string); ok {
		s.overlay.Set(id, text)
	}

	lang := getStringDefault(args, "language_id", "")
	if lang == "" {
		lang, _ = workspace.LanguageID(string(id))
	}

	return monitor.Event{DocumentID: id, LanguageID: lang, FilePath: string(id)}, nil
}

// documentPath validates the path argument of a document tool
func documentPath(args map[string]interface{}) (types.DocumentID, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return types.DocumentID(filepath.Clean(path)), nil
}

// monitorError maps pipeline errors onto MCP error codes
func monitorError(err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, document.ErrNotFound):
		return newMCPError(ErrorCodeDocumentNotFound, "document not found", data)
	case errors.Is(err, monitor.ErrSweepInProgress):
		return newMCPError(ErrorCodeSweepInProgress, "analysis sweep already in progress", data)
	case errors.Is(err, monitor.ErrClosed):
		return newMCPError(ErrorCodeShuttingDown, "server is shutting down", data)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeInternalError, "request cancelled", data)
	default:
		return newMCPError(ErrorCodeAnalysisFailed, "analysis failed", data)
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateDir checks that a workspace path is an absolute, readable directory
func validateDir(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
