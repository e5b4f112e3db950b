package workspace

import (
	"path/filepath"
	"strings"
)

// languageIDs maps file extensions to editor language identifiers
var languageIDs = map[string]string{
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".css":   "css",
	".dart":  "dart",
	".ex":    "elixir",
	".exs":   "elixir",
	".go":    "go",
	".html":  "html",
	".java":  "java",
	".js":    "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".jsx":   "javascriptreact",
	".json":  "json",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".lua":   "lua",
	".md":    "markdown",
	".php":   "php",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".scala": "scala",
	".sh":    "shellscript",
	".bash":  "shellscript",
	".sql":   "sql",
	".swift": "swift",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".vue":   "vue",
	".xml":   "xml",
	".yaml":  "yaml",
	".yml":   "yaml",
	".zig":   "zig",
}

// LanguageID returns the language identifier for path. Files with an
// unknown extension are not text the analyzer understands and report false.
func LanguageID(path string) (string, bool) {
	id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]
	return id, ok
}
