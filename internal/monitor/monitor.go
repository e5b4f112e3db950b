package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/llmdiag/internal/analyzer"
	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/fingerprint"
	"github.com/dshills/llmdiag/internal/gate"
	"github.com/dshills/llmdiag/internal/reconciler"
	"github.com/dshills/llmdiag/internal/scheduler"
	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/internal/validator"
	"github.com/dshills/llmdiag/pkg/types"
)

var (
	// ErrClosed is returned by calls made after Close
	ErrClosed = errors.New("monitor is closed")
	// ErrSweepInProgress is returned when AnalyzeAll is already running
	ErrSweepInProgress = errors.New("analysis sweep already in progress")
)

// modelListTTL bounds how long a provider's model list is reused
const modelListTTL = 5 * time.Minute

// Event describes a document the host saved or opened
type Event struct {
	DocumentID types.DocumentID
	LanguageID string
	// FilePath is used for the extension filter; defaults to DocumentID
	FilePath string
}

// Outcome says how a cycle ended
type Outcome string

const (
	// OutcomePublished means issues were published and the ledger advanced
	OutcomePublished Outcome = "published"
	// OutcomeStale means a later cycle, or Forget, superseded this one; nothing was published
	OutcomeStale Outcome = "stale"
	// OutcomeDisabled means analysis was switched off before the model was called
	OutcomeDisabled Outcome = "disabled"
	// OutcomeFiltered means the document did not pass the language or extension filters
	OutcomeFiltered Outcome = "filtered"
)

// CycleResult summarizes one analysis cycle
type CycleResult struct {
	DocumentID  types.DocumentID
	Fingerprint types.Fingerprint
	Outcome     Outcome
	Reason      gate.Reason // set for OutcomeDisabled and OutcomeFiltered
	Issues      []types.ReconciledIssue
	Dropped     int   // validator rejections, items or whole batch
	Rejected    error // whole-batch validation failure, if any
	Model       string
	Duration    time.Duration
}

// Statistics contains statistics about an AnalyzeAll sweep
type Statistics struct {
	DocumentsAnalyzed int
	DocumentsSkipped  int
	DocumentsFailed   int
	IssuesPublished   int
	Duration          time.Duration
	ErrorMessages     []string
}

// Config wires a Monitor to its collaborators
type Config struct {
	Settings  config.Provider
	Ledger    storage.Ledger
	Source    document.Source
	Analyzer  analyzer.Analyzer
	Publisher diagnostics.Publisher
	Logger    *slog.Logger
	Workers   int // Concurrent analyses in AnalyzeAll (default: runtime.NumCPU())
}

// Monitor runs the save → debounce → analyze → publish cycle
type Monitor struct {
	settings   config.Provider
	ledger     storage.Ledger
	source     document.Source
	analyzer   analyzer.Analyzer
	publisher  diagnostics.Publisher
	gate       *gate.Gate
	scheduler  *scheduler.Scheduler
	reconciler *reconciler.Reconciler
	logger     *slog.Logger
	workers    int

	flight singleflight.Group
	sweep  sweepLock

	// Cycles are numbered when they start. commitMu serializes commits and
	// guards committed (newest cycle that committed per document) and
	// barrier (cycles at or below it were started before a Forget).
	seq       atomic.Uint64
	commitMu  sync.Mutex
	committed map[types.DocumentID]uint64
	barrier   map[types.DocumentID]uint64

	modelsMu  sync.Mutex
	models    []string
	modelsAt  time.Time
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Monitor. Settings, Ledger, Source, Analyzer and Publisher are required.
func New(cfg Config) (*Monitor, error) {
	switch {
	case cfg.Settings == nil:
		return nil, errors.New("monitor: settings provider is required")
	case cfg.Ledger == nil:
		return nil, errors.New("monitor: ledger is required")
	case cfg.Source == nil:
		return nil, errors.New("monitor: document source is required")
	case cfg.Analyzer == nil:
		return nil, errors.New("monitor: analyzer is required")
	case cfg.Publisher == nil:
		return nil, errors.New("monitor: publisher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	m := &Monitor{
		settings:   cfg.Settings,
		ledger:     cfg.Ledger,
		source:     cfg.Source,
		analyzer:   cfg.Analyzer,
		publisher:  cfg.Publisher,
		gate:       gate.New(cfg.Settings, cfg.Ledger, logger),
		reconciler: reconciler.New(logger),
		logger:     logger,
		workers:    workers,
		closed:     make(chan struct{}),
		committed:  make(map[types.DocumentID]uint64),
		barrier:    make(map[types.DocumentID]uint64),
	}
	m.scheduler = scheduler.New(
		func() time.Duration { return m.settings.Settings().AnalysisInterval() },
		scheduler.WithLogger(logger),
	)
	return m, nil
}

// Scheduler exposes the debounce scheduler, mainly for status reporting
func (m *Monitor) Scheduler() *scheduler.Scheduler {
	return m.scheduler
}

func (m *Monitor) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// HandleSave offers a saved document to the gate and, if it changed since
// the last analysis, schedules a debounced cycle.
func (m *Monitor) HandleSave(ctx context.Context, ev Event) (gate.Decision, error) {
	if m.isClosed() {
		return gate.Decision{}, ErrClosed
	}

	text, err := m.source.Read(ctx, ev.DocumentID)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("failed to read %s: %w", ev.DocumentID, err)
	}

	d, err := m.gate.ShouldConsider(ctx, gate.Candidate{
		DocumentID: ev.DocumentID,
		Text:       text,
		LanguageID: ev.LanguageID,
		FilePath:   ev.FilePath,
	})
	if err != nil {
		return gate.Decision{}, err
	}
	if !d.Proceed {
		return d, nil
	}

	m.logger.Info("content changed, scheduling analysis",
		"document", ev.DocumentID, "fingerprint", d.Fingerprint.Short())
	m.scheduler.Notify(ev.DocumentID, d.Fingerprint, m.fire)
	return d, nil
}

// fire is the scheduler callback. Failures end here.
func (m *Monitor) fire(ctx context.Context, id types.DocumentID, fp types.Fingerprint) {
	res, err := m.RunCycle(ctx, id, fp)
	if err != nil {
		m.logger.Error("analysis failed", "document", id, "fingerprint", fp.Short(), "error", err)
		return
	}
	m.logger.Debug("analysis cycle finished", "document", id, "outcome", res.Outcome, "issues", len(res.Issues))
}

// HandleOpen analyzes a document right away, without the debounce delay and
// without comparing against the ledger. The enabled, language and extension
// filters still apply.
func (m *Monitor) HandleOpen(ctx context.Context, ev Event) (*CycleResult, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	text, err := m.source.Read(ctx, ev.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ev.DocumentID, err)
	}

	reason := gate.Filter(m.settings.Settings(), gate.Candidate{
		DocumentID: ev.DocumentID,
		Text:       text,
		LanguageID: ev.LanguageID,
		FilePath:   ev.FilePath,
	})
	if reason != "" {
		outcome := OutcomeFiltered
		if reason == gate.ReasonDisabled {
			outcome = OutcomeDisabled
		}
		m.logger.Debug("skipping opened document", "document", ev.DocumentID, "reason", reason)
		return &CycleResult{DocumentID: ev.DocumentID, Outcome: outcome, Reason: reason}, nil
	}

	return m.RunCycle(ctx, ev.DocumentID, fingerprint.Compute(text))
}

// RunCycle analyzes id and publishes the result, recording scheduledFP in
// the ledger. Concurrent calls for the same document and fingerprint share
// one analysis.
func (m *Monitor) RunCycle(ctx context.Context, id types.DocumentID, scheduledFP types.Fingerprint) (*CycleResult, error) {
	key := string(id) + "\x00" + string(scheduledFP)
	v, err, shared := m.flight.Do(key, func() (interface{}, error) {
		return m.runCycle(ctx, id, scheduledFP)
	})
	if shared {
		m.logger.Debug("joined in-flight analysis", "document", id, "fingerprint", scheduledFP.Short())
	}
	if err != nil {
		return nil, err
	}
	return v.(*CycleResult), nil
}

func (m *Monitor) runCycle(ctx context.Context, id types.DocumentID, scheduledFP types.Fingerprint) (*CycleResult, error) {
	start := time.Now()
	seq := m.seq.Add(1)
	res := &CycleResult{DocumentID: id, Fingerprint: scheduledFP}

	text, err := m.source.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}

	// Settings may have changed during the debounce delay
	s := m.settings.Settings()
	if !s.Enabled {
		m.logger.Info("analysis disabled, dropping scheduled cycle", "document", id)
		res.Outcome = OutcomeDisabled
		res.Reason = gate.ReasonDisabled
		return res, nil
	}

	res.Model = m.resolveModel(ctx, s.Model)
	raw, err := m.analyzer.Analyze(ctx, analyzer.Request{
		Text:     text,
		FileName: id.BaseName(),
		Model:    res.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", id, err)
	}

	// The document may have been edited while the model was thinking
	current, err := m.source.Read(ctx, id)
	upToDate := err == nil && fingerprint.Compute(current) == scheduledFP
	if err != nil {
		m.logger.Warn("failed to re-read document, reconciling against analyzed text", "document", id, "error", err)
		current = text
	}

	v := validator.Validate(raw, validator.WithLogger(m.logger), validator.WithSource(id.BaseName()))
	res.Dropped = len(v.Skipped)
	if !v.OK() {
		res.Rejected = v.Err
		res.Dropped++
	}
	res.Issues = m.reconciler.ReconcileAll(v.Issues, id, current)

	committed, err := m.commit(ctx, id, seq, scheduledFP, upToDate, res.Issues)
	if err != nil {
		return nil, err
	}
	if !committed {
		m.logger.Info("discarding stale analysis", "document", id, "fingerprint", scheduledFP.Short())
		res.Outcome = OutcomeStale
		res.Issues = nil
		res.Duration = time.Since(start)
		return res, nil
	}
	res.Outcome = OutcomePublished
	res.Duration = time.Since(start)
	m.logger.Info("published analysis", "document", id, "issues", len(res.Issues),
		"dropped", res.Dropped, "model", res.Model, "duration", res.Duration)
	return res, nil
}

// commit publishes issues and records fp for the cycle numbered seq.
// A cycle started before one that already committed is stale, unless the
// content it analyzed is still the document's content. No cycle started
// before a Forget commits.
func (m *Monitor) commit(ctx context.Context, id types.DocumentID, seq uint64, fp types.Fingerprint, upToDate bool, issues []types.ReconciledIssue) (bool, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if seq <= m.barrier[id] {
		return false, nil
	}
	if seq < m.committed[id] && !upToDate {
		return false, nil
	}

	ok, err := m.record(ctx, id, fp, issues)
	if err != nil || !ok {
		return false, err
	}
	if seq > m.committed[id] {
		m.committed[id] = seq
	}
	return true, nil
}

// txBeginner is implemented by ledgers that can share a transaction with
// the published issues
type txBeginner interface {
	BeginTx(ctx context.Context) (storage.Tx, error)
}

// record advances the ledger from its current value to fp and publishes
// issues. With a transactional ledger and publisher both happen in one
// transaction; otherwise issues are published before the ledger moves. It
// reports false when another writer moved the ledger in between.
func (m *Monitor) record(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) (bool, error) {
	txl, ok := m.ledger.(txBeginner)
	tp, tpOK := m.publisher.(diagnostics.TxPublisher)
	if !ok || !tpOK {
		prev, err := readLedger(ctx, m.ledger, id)
		if err != nil {
			return false, err
		}
		if err := m.publisher.Publish(ctx, id, fp, issues); err != nil {
			return false, err
		}
		swapped, err := m.ledger.CompareAndSetFingerprint(ctx, id, prev, fp)
		if err != nil {
			return false, fmt.Errorf("failed to record fingerprint for %s: %w", id, err)
		}
		return swapped, nil
	}

	tx, err := txl.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := readLedger(ctx, tx, id)
	if err != nil {
		return false, err
	}
	swapped, err := tx.CompareAndSetFingerprint(ctx, id, prev, fp)
	if err != nil {
		return false, fmt.Errorf("failed to record fingerprint for %s: %w", id, err)
	}
	if !swapped {
		return false, nil
	}
	if err := tp.PublishTx(ctx, tx, id, fp, issues); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit analysis for %s: %w", id, err)
	}
	return true, nil
}

func readLedger(ctx context.Context, ledger storage.Ledger, id types.DocumentID) (types.Fingerprint, error) {
	fp, err := ledger.GetFingerprint(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read ledger for %s: %w", id, err)
	}
	return fp, nil
}

// resolveModel returns the model to request. A configured model the
// provider does not offer is replaced by the first one it does.
func (m *Monitor) resolveModel(ctx context.Context, configured string) string {
	lister, ok := m.analyzer.(analyzer.ModelLister)
	if !ok || configured == "" {
		return configured
	}

	available, err := m.availableModels(ctx, lister)
	if err != nil {
		m.logger.Warn("failed to list models, using configured model", "model", configured, "error", err)
		return configured
	}

	model, fallback, err := analyzer.SelectModel(configured, available)
	if err != nil {
		m.logger.Warn("provider reported no models, using configured model", "model", configured)
		return configured
	}
	if fallback {
		m.logger.Warn("configured model not found, using first available", "configured", configured, "model", model)
	}
	return model
}

func (m *Monitor) availableModels(ctx context.Context, lister analyzer.ModelLister) ([]string, error) {
	m.modelsMu.Lock()
	defer m.modelsMu.Unlock()

	if m.models != nil && time.Since(m.modelsAt) < modelListTTL {
		return m.models, nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	m.models = models
	m.modelsAt = time.Now()
	return models, nil
}

// Forget cancels any pending analysis for id and clears its issues.
// Cycles already running for id will not publish. The ledger entry is
// removed when the ledger supports it.
func (m *Monitor) Forget(ctx context.Context, id types.DocumentID) error {
	m.scheduler.Cancel(id)

	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.barrier[id] = m.seq.Add(1)
	delete(m.committed, id)

	if err := m.publisher.Clear(ctx, id); err != nil {
		return err
	}
	if d, ok := m.ledger.(interface {
		DeleteDocument(ctx context.Context, id types.DocumentID) error
	}); ok {
		return d.DeleteDocument(ctx, id)
	}
	return nil
}

// Close stops all pending analyses and cancels running ones
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.scheduler.Dispose()
	})
	return nil
}

// Wait blocks until cycles started by the scheduler have returned
func (m *Monitor) Wait() {
	m.scheduler.Wait()
}
