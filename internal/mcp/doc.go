// Package mcp implements the Model Context Protocol (MCP) server for llmdiag.
//
// An editor integration or coding assistant reports document events through
// MCP tools and reads back the diagnostics the analysis pipeline published:
//   - document_saved: report a save; changed content is analyzed after the debounce delay
//   - document_opened: analyze a document right away and return its diagnostics
//   - document_closed: drop an unsaved buffer and any pending analysis
//   - analyze_workspace: analyze every source file under a directory
//   - get_diagnostics: read the diagnostics last published for a document
//   - get_status: settings, pending analyses and stored state
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Unsaved buffers
//
// The document tools accept an optional "text" argument. When present it is
// stored in an overlay and analyzed instead of the file on disk, so clients
// can report buffers that were never written.
//
// # Tool: document_saved
//
//	Request:
//	{
//	  "name": "document_saved",
//	  "arguments": {
//	    "path": "/work/app/main.go",
//	    "language_id": "go"
//	  }
//	}
//
//	Response:
//	{
//	  "path": "/work/app/main.go",
//	  "scheduled": true,
//	  "reason": "changed",
//	  "fingerprint": "9f86d08...",
//	  "delay_ms": 3000
//	}
//
// A save whose content matches the last analyzed fingerprint returns
// "scheduled": false with reason "unchanged". Filtered documents report
// "disabled", "language_not_allowed" or "extension_excluded".
//
// # Tool: get_diagnostics
//
//	Response:
//	{
//	  "path": "/work/app/main.go",
//	  "fingerprint": "9f86d08...",
//	  "diagnostics": [
//	    {
//	      "range": {"startLine": 11, "startCol": 4, "endLine": 11, "endCol": 9},
//	      "message": "[Code]: total / count\n[Issue]: division by zero when count is 0",
//	      "severity": "error",
//	      "source": "LLM Bug Detector"
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Tool errors are returned as MCPError values:
//
//	-32602: Invalid params (missing path, relative path)
//	-32603: Internal error (storage failure)
//	-32001: Document not found
//	-32002: Workspace sweep already in progress
//	-32003: Analysis failed (provider error after retries)
//	-32004: Server shutting down
package mcp
