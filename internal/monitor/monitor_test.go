package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmdiag/internal/analyzer"
	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/fingerprint"
	"github.com/dshills/llmdiag/internal/gate"
	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/pkg/types"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []analyzer.Request
	reply func(ctx context.Context, req analyzer.Request) (string, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return "[]", nil
	}
	return reply(ctx, req)
}

func (f *fakeAnalyzer) Calls() []analyzer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analyzer.Request(nil), f.calls...)
}

func (f *fakeAnalyzer) Provider() string { return "fake" }
func (f *fakeAnalyzer) Model() string    { return "fake-model" }
func (f *fakeAnalyzer) Close() error     { return nil }

type listingAnalyzer struct {
	fakeAnalyzer
	models []string
}

func (l *listingAnalyzer) ListModels(context.Context) ([]string, error) {
	return l.models, nil
}

type settingsBox struct {
	mu sync.Mutex
	s  config.Settings
}

func (b *settingsBox) Settings() config.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return config.Static(b.s).Settings()
}

func (b *settingsBox) update(fn func(*config.Settings)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.s)
}

type harness struct {
	m        *Monitor
	store    *storage.SQLStorage
	docs     *document.Overlay
	analyzer *fakeAnalyzer
	settings *settingsBox
}

func newHarness(t *testing.T, a analyzer.Analyzer, fa *fakeAnalyzer) *harness {
	t.Helper()
	return newHarnessWith(t, a, fa, nil)
}

// newHarnessWith lets a test wrap the store-backed publisher
func newHarnessWith(t *testing.T, a analyzer.Analyzer, fa *fakeAnalyzer, wrap func(*diagnostics.StorePublisher) diagnostics.Publisher) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s := config.Defaults()
	s.AnalysisIntervalMS = 20
	box := &settingsBox{s: s}
	docs := document.NewOverlay(nil)

	var pub diagnostics.Publisher = diagnostics.NewStorePublisher(store)
	if wrap != nil {
		pub = wrap(diagnostics.NewStorePublisher(store))
	}

	m, err := New(Config{
		Settings:  box,
		Ledger:    store,
		Source:    docs,
		Analyzer:  a,
		Publisher: pub,
		Workers:   2,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Close()
		m.Wait()
	})

	return &harness{m: m, store: store, docs: docs, analyzer: fa, settings: box}
}

func newDefaultHarness(t *testing.T) *harness {
	fa := &fakeAnalyzer{}
	return newHarness(t, fa, fa)
}

func (h *harness) ledger(t *testing.T, id types.DocumentID) types.Fingerprint {
	t.Helper()
	fp, err := h.store.GetFingerprint(context.Background(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	return fp
}

func issueJSON(file string, line int, content, msg string) string {
	return fmt.Sprintf(`{"fileName": %q, "line": %d, "column": 1, "length": 3, "message": %q, "lineContent": %q}`,
		file, line, msg, content)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandleSave_DebouncesBurst(t *testing.T) {
	h := newDefaultHarness(t)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")

	for i := 1; i <= 3; i++ {
		h.docs.Set(id, fmt.Sprintf("package main // v%d\n", i))
		d, err := h.m.HandleSave(ctx, Event{DocumentID: id, LanguageID: "go"})
		require.NoError(t, err)
		require.True(t, d.Proceed)
	}

	final := fingerprint.Compute("package main // v3\n")
	require.Eventually(t, func() bool { return h.ledger(t, id) == final }, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	calls := h.analyzer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "package main // v3\n", calls[0].Text)
	assert.Equal(t, "main.go", calls[0].FileName)
}

func TestHandleSave_UnchangedContentIsSkipped(t *testing.T) {
	h := newDefaultHarness(t)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "package main\n")

	_, err := h.m.HandleSave(ctx, Event{DocumentID: id})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.ledger(t, id) != "" }, time.Second, 5*time.Millisecond)

	d, err := h.m.HandleSave(ctx, Event{DocumentID: id})
	require.NoError(t, err)
	assert.False(t, d.Proceed)
	assert.Equal(t, gate.ReasonUnchanged, d.Reason)
	assert.Equal(t, 0, h.m.Scheduler().Len())
}

func TestHandleSave_FilteredEventsNeverSchedule(t *testing.T) {
	h := newDefaultHarness(t)
	ctx := context.Background()
	h.docs.Set("/notes/README.md", "# hi")

	d, err := h.m.HandleSave(ctx, Event{DocumentID: "/notes/README.md", LanguageID: "markdown"})
	require.NoError(t, err)
	assert.Equal(t, gate.ReasonExtensionExcluded, d.Reason)
	assert.Equal(t, 0, h.m.Scheduler().Len())
}

func TestHandleSave_MissingDocument(t *testing.T) {
	h := newDefaultHarness(t)
	_, err := h.m.HandleSave(context.Background(), Event{DocumentID: "/nope.go"})
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestRunCycle_ReconcilesAndPublishes(t *testing.T) {
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		return "```json\n[" +
			issueJSON("main.go", 1, "foo()", "moved call") + "," +
			issueJSON("main.go", 2, "bar()", "stays") + "," +
			`{"fileName": "main.go"}` +
			"]\n```", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	text := "package main\nbar()\nfoo()\n"
	h.docs.Set(id, text)
	fp := fingerprint.Compute(text)

	res, err := h.m.RunCycle(ctx, id, fp)
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, 3, res.Issues[0].Line)
	assert.Equal(t, types.StatusRelocated, res.Issues[0].Status)
	assert.Equal(t, 2, res.Issues[1].Line)

	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Issues, stored)
	assert.Equal(t, fp, h.ledger(t, id))
}

func TestRunCycle_ReconcilesAgainstTextAfterAnalysis(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	var h *harness
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		// The user inserts two lines while the model is busy
		h.docs.Set(id, "\n\nfoo()\n")
		return "[" + issueJSON("main.go", 1, "foo()", "m") + "]", nil
	}}
	h = newHarness(t, fa, fa)
	h.docs.Set(id, "foo()\n")

	res, err := h.m.RunCycle(context.Background(), id, fingerprint.Compute("foo()\n"))
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 3, res.Issues[0].Line)
}

func TestRunCycle_InvalidReplyPublishesNothing(t *testing.T) {
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		return "Sorry, I cannot help with that.", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")
	require.NoError(t, h.store.ReplaceIssues(ctx, id, "old", []types.ReconciledIssue{{
		Issue: types.Issue{FileName: "main.go", Line: 1, Column: 1, Length: 1, Message: "old"},
	}}))

	res, err := h.m.RunCycle(ctx, id, fingerprint.Compute("x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.Error(t, res.Rejected)
	assert.Empty(t, res.Issues)

	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRunCycle_AnalyzerErrorLeavesLedger(t *testing.T) {
	boom := errors.New("provider down")
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		return "", boom
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	_, err := h.m.RunCycle(ctx, id, fingerprint.Compute("x"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.ledger(t, id))

	// The same content is considered again on the next save
	d, err := h.m.HandleSave(ctx, Event{DocumentID: id})
	require.NoError(t, err)
	assert.True(t, d.Proceed)
}

func TestRunCycle_DisabledDuringDelay(t *testing.T) {
	h := newDefaultHarness(t)
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")
	h.settings.update(func(s *config.Settings) { s.Enabled = false })

	res, err := h.m.RunCycle(context.Background(), id, fingerprint.Compute("x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDisabled, res.Outcome)
	assert.Empty(t, h.analyzer.Calls())
	assert.Empty(t, h.ledger(t, id))
}

func TestRunCycle_StaleResultIsDropped(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	fa := &fakeAnalyzer{reply: func(_ context.Context, req analyzer.Request) (string, error) {
		if req.Text == "old" {
			started <- struct{}{}
			<-release
			return "[" + issueJSON("main.go", 1, "old", "from old") + "]", nil
		}
		return "[" + issueJSON("main.go", 1, "new", "from new") + "]", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()

	h.docs.Set(id, "old")
	oldFP := fingerprint.Compute("old")
	slow := make(chan *CycleResult, 1)
	go func() {
		res, err := h.m.RunCycle(ctx, id, oldFP)
		assert.NoError(t, err)
		slow <- res
	}()
	<-started

	// A newer cycle finishes first
	h.docs.Set(id, "new")
	newFP := fingerprint.Compute("new")
	res, err := h.m.RunCycle(ctx, id, newFP)
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, res.Outcome)

	close(release)
	old := <-slow
	assert.Equal(t, OutcomeStale, old.Outcome)

	assert.Equal(t, newFP, h.ledger(t, id))
	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "from new", stored[0].Message)
}

func TestRunCycle_LaterCycleCommitsAfterEarlierOne(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	releaseOld := make(chan struct{})
	releaseNew := make(chan struct{})
	started := make(chan string, 2)

	fa := &fakeAnalyzer{reply: func(_ context.Context, req analyzer.Request) (string, error) {
		started <- req.Text
		if req.Text == "old" {
			<-releaseOld
		} else {
			<-releaseNew
		}
		return "[" + issueJSON("main.go", 1, req.Text, "from "+req.Text) + "]", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()

	run := func(fp types.Fingerprint) <-chan *CycleResult {
		out := make(chan *CycleResult, 1)
		go func() {
			res, err := h.m.RunCycle(ctx, id, fp)
			assert.NoError(t, err)
			out <- res
		}()
		return out
	}

	h.docs.Set(id, "old")
	oldFP := fingerprint.Compute("old")
	oldDone := run(oldFP)
	require.Equal(t, "old", <-started)

	h.docs.Set(id, "new")
	newFP := fingerprint.Compute("new")
	newDone := run(newFP)
	require.Equal(t, "new", <-started)

	// The earlier cycle commits first
	close(releaseOld)
	assert.Equal(t, OutcomePublished, (<-oldDone).Outcome)
	assert.Equal(t, oldFP, h.ledger(t, id))

	close(releaseNew)
	assert.Equal(t, OutcomePublished, (<-newDone).Outcome)

	assert.Equal(t, newFP, h.ledger(t, id))
	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "from new", stored[0].Message)
}

func TestRunCycle_CurrentContentWinsOverStartOrder(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	fa := &fakeAnalyzer{reply: func(_ context.Context, req analyzer.Request) (string, error) {
		if req.Text == "new" {
			started <- struct{}{}
			<-release
		}
		return "[" + issueJSON("main.go", 1, req.Text, "from "+req.Text) + "]", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()

	h.docs.Set(id, "new")
	newFP := fingerprint.Compute("new")
	slow := make(chan *CycleResult, 1)
	go func() {
		res, err := h.m.RunCycle(ctx, id, newFP)
		assert.NoError(t, err)
		slow <- res
	}()
	<-started

	// A cycle started later commits content the document no longer has
	h.docs.Set(id, "old")
	res, err := h.m.RunCycle(ctx, id, fingerprint.Compute("old"))
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, res.Outcome)

	h.docs.Set(id, "new")
	close(release)
	assert.Equal(t, OutcomePublished, (<-slow).Outcome)

	assert.Equal(t, newFP, h.ledger(t, id))
	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "from new", stored[0].Message)
}

// holdingPublisher blocks Publish for one fingerprint until released. It
// hides PublishTx, so the monitor publishes outside a transaction.
type holdingPublisher struct {
	diagnostics.Publisher
	hold     types.Fingerprint
	entered  chan struct{}
	released chan struct{}
}

func (p *holdingPublisher) Publish(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	if fp == p.hold {
		close(p.entered)
		<-p.released
	}
	return p.Publisher.Publish(ctx, id, fp, issues)
}

func TestRunCycle_CommitsDoNotInterleave(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	newFP := fingerprint.Compute("new")
	releaseOld := make(chan struct{})
	started := make(chan struct{}, 1)
	hp := &holdingPublisher{hold: newFP, entered: make(chan struct{}), released: make(chan struct{})}

	fa := &fakeAnalyzer{reply: func(_ context.Context, req analyzer.Request) (string, error) {
		if req.Text == "old" {
			started <- struct{}{}
			<-releaseOld
		}
		return "[" + issueJSON("main.go", 1, req.Text, "from "+req.Text) + "]", nil
	}}
	h := newHarnessWith(t, fa, fa, func(sp *diagnostics.StorePublisher) diagnostics.Publisher {
		hp.Publisher = sp
		return hp
	})
	ctx := context.Background()

	h.docs.Set(id, "old")
	oldDone := make(chan *CycleResult, 1)
	go func() {
		res, err := h.m.RunCycle(ctx, id, fingerprint.Compute("old"))
		assert.NoError(t, err)
		oldDone <- res
	}()
	<-started

	h.docs.Set(id, "new")
	newDone := make(chan *CycleResult, 1)
	go func() {
		res, err := h.m.RunCycle(ctx, id, newFP)
		assert.NoError(t, err)
		newDone <- res
	}()
	<-hp.entered

	// The earlier cycle reaches its commit while the later one is publishing
	close(releaseOld)
	time.Sleep(20 * time.Millisecond)
	close(hp.released)

	assert.Equal(t, OutcomePublished, (<-newDone).Outcome)
	assert.Equal(t, OutcomeStale, (<-oldDone).Outcome)

	assert.Equal(t, newFP, h.ledger(t, id))
	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "from new", stored[0].Message)
}

type failingTxPublisher struct {
	*diagnostics.StorePublisher
}

func (failingTxPublisher) PublishTx(context.Context, storage.IssueStore, types.DocumentID, types.Fingerprint, []types.ReconciledIssue) error {
	return errors.New("publish failed")
}

func TestRunCycle_PublishFailureRollsBackLedger(t *testing.T) {
	fa := &fakeAnalyzer{}
	h := newHarnessWith(t, fa, fa, func(sp *diagnostics.StorePublisher) diagnostics.Publisher {
		return failingTxPublisher{sp}
	})
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	_, err := h.m.RunCycle(context.Background(), id, fingerprint.Compute("x"))
	require.Error(t, err)
	assert.Empty(t, h.ledger(t, id))
}

func TestForget_DiscardsRunningCycle(t *testing.T) {
	const id = types.DocumentID("/src/main.go")
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		started <- struct{}{}
		<-release
		return "[" + issueJSON("main.go", 1, "x", "late") + "]", nil
	}}
	h := newHarness(t, fa, fa)
	ctx := context.Background()
	h.docs.Set(id, "x")

	done := make(chan *CycleResult, 1)
	go func() {
		res, err := h.m.RunCycle(ctx, id, fingerprint.Compute("x"))
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	require.NoError(t, h.m.Forget(ctx, id))
	close(release)
	assert.Equal(t, OutcomeStale, (<-done).Outcome)

	assert.Empty(t, h.ledger(t, id))
	stored, err := h.store.ListIssues(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// A cycle started after Forget commits normally
	fa.mu.Lock()
	fa.reply = nil
	fa.mu.Unlock()
	res, err := h.m.RunCycle(ctx, id, fingerprint.Compute("x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, res.Outcome)
}

func TestRunCycle_CollapsesIdenticalRequests(t *testing.T) {
	release := make(chan struct{})
	fa := &fakeAnalyzer{reply: func(context.Context, analyzer.Request) (string, error) {
		<-release
		return "[]", nil
	}}
	h := newHarness(t, fa, fa)
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")
	fp := fingerprint.Compute("x")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.RunCycle(context.Background(), id, fp)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return len(fa.Calls()) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, fa.Calls(), 1)
}

func TestHandleOpen(t *testing.T) {
	h := newDefaultHarness(t)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	res, err := h.m.HandleOpen(ctx, Event{DocumentID: id, LanguageID: "go"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.Equal(t, fingerprint.Compute("x"), h.ledger(t, id))

	// A save of the content just analyzed on open is not scheduled
	d, err := h.m.HandleSave(ctx, Event{DocumentID: id, LanguageID: "go"})
	require.NoError(t, err)
	assert.False(t, d.Proceed)

	// Unchanged content is analyzed again on open
	res, err = h.m.HandleOpen(ctx, Event{DocumentID: id, LanguageID: "go"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.Len(t, h.analyzer.Calls(), 2)

	t.Run("filters still apply", func(t *testing.T) {
		h.docs.Set("/a.log", "x")
		res, err := h.m.HandleOpen(ctx, Event{DocumentID: "/a.log"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFiltered, res.Outcome)
		assert.Equal(t, gate.ReasonExtensionExcluded, res.Reason)
		assert.Len(t, h.analyzer.Calls(), 2)
	})
}

func TestResolveModel(t *testing.T) {
	la := &listingAnalyzer{models: []string{"alpha", "beta"}}
	h := newHarness(t, la, &la.fakeAnalyzer)
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	h.settings.update(func(s *config.Settings) { s.Model = "beta" })
	res, err := h.m.HandleOpen(context.Background(), Event{DocumentID: id})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Model)

	h.settings.update(func(s *config.Settings) { s.Model = "gamma" })
	res, err = h.m.HandleOpen(context.Background(), Event{DocumentID: id})
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.Model)

	calls := la.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "alpha", calls[1].Model)
}

func TestAnalyzeAll(t *testing.T) {
	h := newDefaultHarness(t)
	var events []Event
	for i := 0; i < 5; i++ {
		id := types.DocumentID(fmt.Sprintf("/src/f%d.go", i))
		h.docs.Set(id, fmt.Sprintf("package f%d", i))
		events = append(events, Event{DocumentID: id, LanguageID: "go"})
	}
	events = append(events,
		Event{DocumentID: "/src/missing.go"},
		Event{DocumentID: "/src/skip.txt"},
	)
	h.docs.Set("/src/skip.txt", "text")

	stats, err := h.m.AnalyzeAll(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.DocumentsAnalyzed)
	assert.Equal(t, 1, stats.DocumentsFailed)
	assert.Equal(t, 1, stats.DocumentsSkipped)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "missing.go")

	docs, err := h.store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 5)
}

func TestAnalyzeAll_RejectsOverlap(t *testing.T) {
	h := newDefaultHarness(t)
	require.True(t, h.m.sweep.TryAcquire())
	defer h.m.sweep.Release()

	_, err := h.m.AnalyzeAll(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSweepInProgress)
}

func TestForget(t *testing.T) {
	h := newDefaultHarness(t)
	ctx := context.Background()
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	_, err := h.m.HandleOpen(ctx, Event{DocumentID: id})
	require.NoError(t, err)
	require.NotEmpty(t, h.ledger(t, id))

	require.NoError(t, h.m.Forget(ctx, id))
	assert.Empty(t, h.ledger(t, id))
}

func TestClose(t *testing.T) {
	h := newDefaultHarness(t)
	const id = types.DocumentID("/src/main.go")
	h.docs.Set(id, "x")

	_, err := h.m.HandleSave(context.Background(), Event{DocumentID: id})
	require.NoError(t, err)
	require.NoError(t, h.m.Close())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, h.analyzer.Calls(), "pending analyses must not fire after Close")

	_, err = h.m.HandleSave(context.Background(), Event{DocumentID: id})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.m.AnalyzeAll(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)

	// Idempotent
	assert.NoError(t, h.m.Close())
}
