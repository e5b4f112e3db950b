// Package reconciler moves issue lines to where the reported code sits now.
//
// The model reports a line number and the text it believes is on that line.
// By the time the answer arrives the document may have been edited, so the
// reported text is looked up again: if the line still matches it is kept,
// otherwise the first line (top-down) with the same trimmed text wins. When
// nothing matches, or the issue cannot be checked, the reported line is kept.
package reconciler

import (
	"log/slog"
	"strings"

	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/pkg/types"
)

// Reconciler checks issues against document text
type Reconciler struct {
	logger *slog.Logger
}

// New creates a Reconciler. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// Reconcile checks issue against text using the default logger
func Reconcile(issue types.Issue, docID types.DocumentID, text string, lineCount int) types.ReconciledIssue {
	return New(nil).Reconcile(issue, docID, text, lineCount)
}

// Reconcile returns issue with its line confirmed or relocated. Only Line
// may change; Status records which rule applied.
func (r *Reconciler) Reconcile(issue types.Issue, docID types.DocumentID, text string, lineCount int) types.ReconciledIssue {
	out := types.ReconciledIssue{Issue: issue, OriginalLine: issue.Line}
	base := docID.BaseName()

	if issue.FileName != base {
		r.logger.Warn("issue names another file, keeping reported line",
			"document", base, "reported_file", issue.FileName, "line", issue.Line)
		out.Status = types.StatusAmbiguousFile
		return out
	}

	want := strings.TrimSpace(issue.LineContent)
	if want == "" {
		r.logger.Warn("issue has no line content, skipping verification", "document", base, "line", issue.Line)
		out.Status = types.StatusNoContent
		return out
	}

	if issue.Line < 1 || issue.Line > lineCount {
		r.logger.Warn("reported line out of bounds, keeping it",
			"document", base, "line", issue.Line, "line_count", lineCount)
		out.Status = types.StatusOutOfBounds
		return out
	}

	lines := document.Lines(text)
	if issue.Line <= len(lines) && strings.TrimSpace(lines[issue.Line-1]) == want {
		out.Status = types.StatusUnchanged
		return out
	}

	for i, l := range lines {
		if strings.TrimSpace(l) == want {
			out.Line = i + 1
			out.Status = types.StatusRelocated
			r.logger.Info("relocated issue", "document", base, "from", issue.Line, "to", out.Line)
			return out
		}
	}

	r.logger.Info("reported content not found, keeping reported line", "document", base, "line", issue.Line)
	out.Status = types.StatusNotFound
	return out
}

// ReconcileAll reconciles every issue against the same text, preserving order
func (r *Reconciler) ReconcileAll(issues []types.Issue, docID types.DocumentID, text string) []types.ReconciledIssue {
	lineCount := document.LineCount(text)
	out := make([]types.ReconciledIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, r.Reconcile(issue, docID, text, lineCount))
	}
	return out
}
