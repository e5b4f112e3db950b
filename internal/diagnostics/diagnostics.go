// Package diagnostics publishes reconciled issues.
//
// Publishing replaces: the issues given for a document become its complete
// set, and anything published earlier for it is discarded.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/pkg/types"
)

// Publisher receives the issues of a finished analysis
type Publisher interface {
	// Publish replaces the issues shown for id
	Publish(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error
	// Clear removes every issue shown for id
	Clear(ctx context.Context, id types.DocumentID) error
}

// TxPublisher is a Publisher that can write into a transaction owned by the
// caller, so published issues commit or roll back with the ledger update.
type TxPublisher interface {
	Publisher
	PublishTx(ctx context.Context, tx storage.IssueStore, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error
}

// Render converts issues to editor diagnostics, preserving order
func Render(issues []types.ReconciledIssue) []types.Diagnostic {
	out := make([]types.Diagnostic, 0, len(issues))
	for _, issue := range issues {
		out = append(out, types.NewDiagnostic(issue))
	}
	return out
}

// StorePublisher persists issues so that other processes (and the MCP
// get_issues tool) can read them
type StorePublisher struct {
	store storage.IssueStore
}

// NewStorePublisher creates a publisher backed by store
func NewStorePublisher(store storage.IssueStore) *StorePublisher {
	return &StorePublisher{store: store}
}

// Publish implements Publisher
func (p *StorePublisher) Publish(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	if err := p.store.ReplaceIssues(ctx, id, fp, issues); err != nil {
		return fmt.Errorf("failed to publish issues for %s: %w", id, err)
	}
	return nil
}

// PublishTx implements TxPublisher
func (p *StorePublisher) PublishTx(ctx context.Context, tx storage.IssueStore, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	if err := tx.ReplaceIssues(ctx, id, fp, issues); err != nil {
		return fmt.Errorf("failed to publish issues for %s: %w", id, err)
	}
	return nil
}

// Clear implements Publisher
func (p *StorePublisher) Clear(ctx context.Context, id types.DocumentID) error {
	return p.store.DeleteIssues(ctx, id)
}

// Load returns the rendered diagnostics last published for id
func (p *StorePublisher) Load(ctx context.Context, id types.DocumentID) ([]types.Diagnostic, error) {
	issues, err := p.store.ListIssues(ctx, id)
	if err != nil {
		return nil, err
	}
	return Render(issues), nil
}

// Event is one line of WriterPublisher output
type Event struct {
	Document    types.DocumentID   `json:"document"`
	Fingerprint types.Fingerprint  `json:"fingerprint,omitempty"`
	Diagnostics []types.Diagnostic `json:"diagnostics"`
}

// WriterPublisher writes one JSON object per publish to w. A clear is
// written as an event with no diagnostics.
type WriterPublisher struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterPublisher creates a publisher writing JSON lines to w
func NewWriterPublisher(w io.Writer) *WriterPublisher {
	return &WriterPublisher{enc: json.NewEncoder(w)}
}

// Publish implements Publisher
func (p *WriterPublisher) Publish(_ context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	return p.write(Event{Document: id, Fingerprint: fp, Diagnostics: Render(issues)})
}

// Clear implements Publisher
func (p *WriterPublisher) Clear(_ context.Context, id types.DocumentID) error {
	return p.write(Event{Document: id, Diagnostics: []types.Diagnostic{}})
}

func (p *WriterPublisher) write(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(ev)
}

// Multi fans out to several publishers. Every publisher is called; the
// errors are joined.
type Multi []Publisher

// Publish implements Publisher
func (m Multi) Publish(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, id, fp, issues); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishTx implements TxPublisher. Members that cannot join tx publish
// directly, before the caller commits.
func (m Multi) PublishTx(ctx context.Context, tx storage.IssueStore, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	var errs []error
	for _, p := range m {
		var err error
		if tp, ok := p.(TxPublisher); ok {
			err = tp.PublishTx(ctx, tx, id, fp, issues)
		} else {
			err = p.Publish(ctx, id, fp, issues)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear implements Publisher
func (m Multi) Clear(ctx context.Context, id types.DocumentID) error {
	var errs []error
	for _, p := range m {
		if err := p.Clear(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
