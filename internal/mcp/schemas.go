package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// documentProperties are shared by the document event tools
func documentProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path of the document",
		},
		"text": map[string]interface{}{
			"type":        "string",
			"description": "Current buffer contents. When omitted the file is read from disk",
		},
		"language_id": map[string]interface{}{
			"type":        "string",
			"description": "Editor language identifier (e.g. go, python, typescript). Inferred from the extension when omitted",
		},
	}
}

// documentSavedTool returns the tool definition for document_saved
func documentSavedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "document_saved",
		Description: "Report a saved document. Changed content is analyzed after the configured delay",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: documentProperties(),
			Required:   []string{"path"},
		},
	}
}

// documentOpenedTool returns the tool definition for document_opened
func documentOpenedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "document_opened",
		Description: "Report an opened document. It is analyzed immediately and the diagnostics are returned",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: documentProperties(),
			Required:   []string{"path"},
		},
	}
}

// documentClosedTool returns the tool definition for document_closed
func documentClosedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "document_closed",
		Description: "Report a closed document. Drops its buffer and any pending analysis",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the document",
				},
				"forget": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, also clear the published diagnostics and the recorded fingerprint",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// analyzeWorkspaceTool returns the tool definition for analyze_workspace
func analyzeWorkspaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_workspace",
		Description: "Analyze every source file under a directory once",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, analyze files under vendor/",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getDiagnosticsTool returns the tool definition for get_diagnostics
func getDiagnosticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_diagnostics",
		Description: "Return the diagnostics last published for a document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the document",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query analysis settings, pending work and stored state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
