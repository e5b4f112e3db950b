// Package scheduler debounces analysis requests per document.
//
// Each document has at most one pending analysis. A new notification for the
// same document cancels the pending one and restarts the delay, so a burst of
// saves produces a single analysis carrying the fingerprint of the last save.
//
//	s := scheduler.New(func() time.Duration { return 3 * time.Second })
//	defer s.Dispose()
//
//	s.Notify(id, fp, func(ctx context.Context, id types.DocumentID, fp types.Fingerprint) {
//	    runAnalysis(ctx, id, fp)
//	})
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/llmdiag/pkg/types"
)

// DefaultDelay is used when the delay function is nil
const DefaultDelay = 3000 * time.Millisecond

// FireFunc runs once the quiet period for a document has elapsed.
// ctx is cancelled when the scheduler is disposed.
type FireFunc func(ctx context.Context, id types.DocumentID, fp types.Fingerprint)

// pending is the single scheduled analysis for a document
type pending struct {
	timer       *time.Timer
	fingerprint types.Fingerprint
	generation  uint64
}

// Scheduler owns the per-document timers
type Scheduler struct {
	delay  func() time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[types.DocumentID]*pending
	gen      uint64
	disposed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithContext sets the parent of the context handed to callbacks
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		s.ctx = ctx
	}
}

// New creates a scheduler. delay is consulted on every Notify so
// configuration changes apply to the next notification.
func New(delay func() time.Duration, opts ...Option) *Scheduler {
	if delay == nil {
		delay = func() time.Duration { return DefaultDelay }
	}
	s := &Scheduler{
		delay:   delay,
		logger:  slog.Default(),
		pending: make(map[types.DocumentID]*pending),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	return s
}

// Notify schedules fire for id after the configured delay, replacing any
// pending analysis for the same document. Calls after Dispose are ignored.
func (s *Scheduler) Notify(id types.DocumentID, fp types.Fingerprint, fire FireFunc) {
	if fire == nil {
		return
	}
	d := s.delay()
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}

	if prev, ok := s.pending[id]; ok {
		prev.timer.Stop()
		s.logger.Debug("superseding pending analysis", "document", id,
			"previous", prev.fingerprint.Short(), "next", fp.Short())
	}

	s.gen++
	p := &pending{fingerprint: fp, generation: s.gen}
	gen := s.gen
	p.timer = time.AfterFunc(d, func() { s.expire(id, gen, fire) })
	s.pending[id] = p
}

// expire runs on the timer goroutine. A timer whose Stop lost the race still
// lands here, so the generation check decides whether it may fire.
func (s *Scheduler) expire(id types.DocumentID, gen uint64, fire FireFunc) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.generation != gen || s.disposed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	fp := p.fingerprint
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	fire(ctx, id, fp)
}

// Cancel drops the pending analysis for id, reporting whether one existed.
func (s *Scheduler) Cancel(id types.DocumentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

// Pending returns the fingerprint scheduled for id, if any
func (s *Scheduler) Pending(id types.DocumentID) (types.Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return "", false
	}
	return p.fingerprint, true
}

// Len returns the number of documents with a pending analysis
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dispose stops every timer and cancels the callback context. No callback
// starts after Dispose returns. Callbacks already running are not waited for;
// use Wait for that.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.cancel()
}

// Wait blocks until every callback that has started returns
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
