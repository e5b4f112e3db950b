package types

import "path/filepath"

// DocumentID identifies a document by its file path. It is never interpreted
// beyond equality and base-name extraction.
type DocumentID string

// BaseName returns the last path element of the document ID.
func (id DocumentID) BaseName() string {
	return filepath.Base(string(id))
}

// Fingerprint is a hex-encoded SHA-256 digest of document text.
// The zero value means "no fingerprint recorded".
type Fingerprint string

// IsZero reports whether the fingerprint is absent.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// Short returns an abbreviated form for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ChangeRecord is created per save or change event and consumed by the gate.
type ChangeRecord struct {
	DocumentID  DocumentID
	Fingerprint Fingerprint
}

// Validate checks if the change record is usable
func (c ChangeRecord) Validate() error {
	if c.DocumentID == "" {
		return ErrEmptyDocumentID
	}
	return nil
}
