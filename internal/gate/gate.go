// Package gate decides whether a document event deserves an analysis.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/fingerprint"
	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/pkg/types"
)

// Reason explains a Decision
type Reason string

const (
	ReasonDisabled           Reason = "disabled"
	ReasonLanguageNotAllowed Reason = "language_not_allowed"
	ReasonExtensionExcluded  Reason = "extension_excluded"
	ReasonUnchanged          Reason = "unchanged"
	ReasonChanged            Reason = "changed"
)

// Candidate is a document event offered to the gate
type Candidate struct {
	DocumentID types.DocumentID
	Text       string
	LanguageID string
	// FilePath defaults to DocumentID when empty
	FilePath string
}

func (c Candidate) path() string {
	if c.FilePath != "" {
		return c.FilePath
	}
	return string(c.DocumentID)
}

// Decision is the gate's verdict. Fingerprint is set once the filters pass,
// including for the unchanged case.
type Decision struct {
	Proceed     bool
	Fingerprint types.Fingerprint
	Reason      Reason
}

// FingerprintReader is the part of the ledger the gate needs
type FingerprintReader interface {
	GetFingerprint(ctx context.Context, id types.DocumentID) (types.Fingerprint, error)
}

// Gate filters document events before they reach the scheduler
type Gate struct {
	settings config.Provider
	ledger   FingerprintReader
	logger   *slog.Logger
}

// New creates a gate. A nil logger uses slog.Default.
func New(settings config.Provider, ledger FingerprintReader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{settings: settings, ledger: ledger, logger: logger}
}

// Filter applies the enabled, language and extension checks only.
// It returns an empty Reason when the candidate passes.
func Filter(s config.Settings, c Candidate) Reason {
	if !s.Enabled {
		return ReasonDisabled
	}
	if !s.LanguageAllowed(c.LanguageID) {
		return ReasonLanguageNotAllowed
	}
	if s.ExtensionExcluded(strings.ToLower(filepath.Ext(c.path()))) {
		return ReasonExtensionExcluded
	}
	return ""
}

// ShouldConsider runs the filters, fingerprints the text and compares it with
// the ledger. Errors are an empty document ID or a failed ledger read.
func (g *Gate) ShouldConsider(ctx context.Context, c Candidate) (Decision, error) {
	s := g.settings.Settings()

	if reason := Filter(s, c); reason != "" {
		g.logger.Debug("skipping document", "document", c.DocumentID, "reason", reason, "language", c.LanguageID)
		return Decision{Reason: reason}, nil
	}

	rec := types.ChangeRecord{DocumentID: c.DocumentID, Fingerprint: fingerprint.Compute(c.Text)}
	if err := rec.Validate(); err != nil {
		return Decision{}, err
	}

	prev, err := g.ledger.GetFingerprint(ctx, rec.DocumentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Decision{}, fmt.Errorf("failed to read ledger for %s: %w", rec.DocumentID, err)
	}

	if !prev.IsZero() && prev == rec.Fingerprint {
		g.logger.Info("content unchanged since last analysis", "document", rec.DocumentID, "fingerprint", rec.Fingerprint.Short())
		return Decision{Fingerprint: rec.Fingerprint, Reason: ReasonUnchanged}, nil
	}

	return Decision{Proceed: true, Fingerprint: rec.Fingerprint, Reason: ReasonChanged}, nil
}
