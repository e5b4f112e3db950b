package types

// Severity of a rendered diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DiagnosticSource is the source label attached to every diagnostic.
const DiagnosticSource = "LLM Bug Detector"

// Range is a 0-based, end-exclusive span within a single line.
type Range struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// Diagnostic is the editor-facing form of a reconciled issue.
type Diagnostic struct {
	Range    Range    `json:"range"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Source   string   `json:"source"`
}

// NewDiagnostic converts a reconciled issue into a diagnostic.
// When the issue carries line content, it is prefixed to the message.
func NewDiagnostic(r ReconciledIssue) Diagnostic {
	line := r.Line - 1
	col := r.Column - 1
	msg := r.Message
	if r.LineContent != "" {
		msg = "[Code]: " + r.LineContent + "\n[Issue]: " + r.Message
	}
	return Diagnostic{
		Range: Range{
			StartLine: line,
			StartCol:  col,
			EndLine:   line,
			EndCol:    col + r.Length,
		},
		Message:  msg,
		Severity: SeverityError,
		Source:   DiagnosticSource,
	}
}
