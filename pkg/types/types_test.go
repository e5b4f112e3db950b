package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueValidate(t *testing.T) {
	valid := Issue{FileName: "a.go", Line: 1, Column: 1, Length: 1, Message: "m"}

	tests := []struct {
		name    string
		mutate  func(*Issue)
		wantErr error
	}{
		{"valid", func(*Issue) {}, nil},
		{"zero line", func(i *Issue) { i.Line = 0 }, ErrInvalidLine},
		{"negative column", func(i *Issue) { i.Column = -2 }, ErrInvalidColumn},
		{"zero length", func(i *Issue) { i.Length = 0 }, ErrInvalidLength},
		{"blank message", func(i *Issue) { i.Message = "  \t" }, ErrEmptyMessage},
		{"empty line content is fine", func(i *Issue) { i.LineContent = "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := valid
			tt.mutate(&issue)
			err := issue.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestReconciledIssueMoved(t *testing.T) {
	r := ReconciledIssue{Issue: Issue{Line: 7}, OriginalLine: 3, Status: StatusRelocated}
	assert.True(t, r.Moved())

	r = ReconciledIssue{Issue: Issue{Line: 3}, OriginalLine: 3, Status: StatusUnchanged}
	assert.False(t, r.Moved())
}

func TestNewDiagnostic(t *testing.T) {
	t.Run("with line content", func(t *testing.T) {
		d := NewDiagnostic(ReconciledIssue{
			Issue: Issue{Line: 12, Column: 5, Length: 3, Message: "off by one", LineContent: "for i := 0; i <= n; i++ {"},
		})

		assert.Equal(t, Range{StartLine: 11, StartCol: 4, EndLine: 11, EndCol: 7}, d.Range)
		assert.Equal(t, "[Code]: for i := 0; i <= n; i++ {\n[Issue]: off by one", d.Message)
		assert.Equal(t, SeverityError, d.Severity)
		assert.Equal(t, DiagnosticSource, d.Source)
	})

	t.Run("without line content", func(t *testing.T) {
		d := NewDiagnostic(ReconciledIssue{Issue: Issue{Line: 1, Column: 1, Length: 1, Message: "plain"}})
		assert.Equal(t, "plain", d.Message)
		assert.Equal(t, Range{StartLine: 0, StartCol: 0, EndLine: 0, EndCol: 1}, d.Range)
	})
}

func TestDocumentIDBaseName(t *testing.T) {
	assert.Equal(t, "main.go", DocumentID("/work/app/main.go").BaseName())
	assert.Equal(t, "main.go", DocumentID("main.go").BaseName())
	assert.Equal(t, "file.py", DocumentID("mem://localhost/src/file.py").BaseName())
}

func TestFingerprint(t *testing.T) {
	var zero Fingerprint
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.Short())

	fp := Fingerprint("0123456789abcdef0123")
	assert.False(t, fp.IsZero())
	assert.Equal(t, "0123456789ab", fp.Short())
	assert.Equal(t, "abc", Fingerprint("abc").Short())
}

func TestChangeRecordValidate(t *testing.T) {
	assert.ErrorIs(t, ChangeRecord{}.Validate(), ErrEmptyDocumentID)
	assert.NoError(t, ChangeRecord{DocumentID: "/a.go", Fingerprint: "ff"}.Validate())
}
