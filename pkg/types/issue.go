package types

import "strings"

// Issue is a finding reported by the analysis model after validation.
// Line, Column and Length are 1-based and always >= 1; Message is trimmed and
// non-empty. LineContent is kept exactly as reported.
type Issue struct {
	FileName    string `json:"fileName"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Length      int    `json:"length"`
	Message     string `json:"message"`
	LineContent string `json:"lineContent"`
}

// Validate checks the issue invariant
func (i *Issue) Validate() error {
	if i.Line < 1 {
		return ErrInvalidLine
	}
	if i.Column < 1 {
		return ErrInvalidColumn
	}
	if i.Length < 1 {
		return ErrInvalidLength
	}
	if strings.TrimSpace(i.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ReconcileStatus records which reconciliation branch produced the final line.
type ReconcileStatus string

const (
	StatusUnchanged     ReconcileStatus = "unchanged"
	StatusRelocated     ReconcileStatus = "relocated"
	StatusAmbiguousFile ReconcileStatus = "ambiguous_file"
	StatusNoContent     ReconcileStatus = "no_content"
	StatusOutOfBounds   ReconcileStatus = "out_of_bounds"
	StatusNotFound      ReconcileStatus = "not_found"
)

// ReconciledIssue is an Issue whose Line has been checked against the current
// document content. Everything except Line is unchanged from the validated issue.
type ReconciledIssue struct {
	Issue
	OriginalLine int             `json:"originalLine"`
	Status       ReconcileStatus `json:"status"`
}

// Moved reports whether reconciliation changed the line.
func (r *ReconciledIssue) Moved() bool {
	return r.Line != r.OriginalLine
}
