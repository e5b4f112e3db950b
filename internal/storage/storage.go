package storage

import (
	"context"
	"time"

	"github.com/dshills/llmdiag/pkg/types"
)

// Ledger maps a document to the fingerprint of its last successful analysis.
// Reads happen before the change gate; writes happen only after a complete cycle.
type Ledger interface {
	// GetFingerprint returns ErrNotFound when nothing was recorded for id
	GetFingerprint(ctx context.Context, id types.DocumentID) (types.Fingerprint, error)
	SetFingerprint(ctx context.Context, id types.DocumentID, fp types.Fingerprint) error
	// CompareAndSetFingerprint stores next only if the current value equals expected.
	// An empty expected matches a document with no recorded fingerprint.
	CompareAndSetFingerprint(ctx context.Context, id types.DocumentID, expected, next types.Fingerprint) (bool, error)
}

// IssueStore persists the published issues for each document.
type IssueStore interface {
	// ReplaceIssues drops every stored issue for id and stores issues in order
	ReplaceIssues(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error
	ListIssues(ctx context.Context, id types.DocumentID) ([]types.ReconciledIssue, error)
	DeleteIssues(ctx context.Context, id types.DocumentID) error
}

// Storage defines the interface for persisting analysis state
type Storage interface {
	Ledger
	IssueStore

	// Document operations
	GetDocument(ctx context.Context, id types.DocumentID) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id types.DocumentID) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Ledger
	IssueStore
}

// Document is a ledger row
type Document struct {
	ID          types.DocumentID
	Fingerprint types.Fingerprint
	AnalyzedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status contains statistics about the stored analysis state
type Status struct {
	DocumentsCount int
	IssuesCount    int
	LastAnalyzedAt time.Time
	Driver         string
	SchemaVersion  string
}
