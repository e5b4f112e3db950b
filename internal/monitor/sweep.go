package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// AnalyzeAll runs HandleOpen for every event with at most Workers analyses
// in flight. A failing document is counted and the sweep continues; only
// context cancellation aborts it.
func (m *Monitor) AnalyzeAll(ctx context.Context, events []Event) (*Statistics, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if !m.sweep.TryAcquire() {
		return nil, ErrSweepInProgress
	}
	defer m.sweep.Release()

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	// Create worker pool with semaphore
	semaphore := make(chan struct{}, m.workers)

	var (
		analyzed int32
		skipped  int32
		failed   int32
		issues   int32
		mu       sync.Mutex // Protect stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
dispatch:
	for _, ev := range events {
		select {
		case <-gctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
			// Acquire semaphore
		}

		g.Go(func() error {
			defer func() { <-semaphore }() // Release semaphore

			res, err := m.HandleOpen(gctx, ev)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", ev.DocumentID, err))
				mu.Unlock()
				// Continue with other documents
				return nil
			}

			switch res.Outcome {
			case OutcomePublished:
				atomic.AddInt32(&analyzed, 1)
				atomic.AddInt32(&issues, int32(len(res.Issues)))
			default:
				atomic.AddInt32(&skipped, 1)
			}
			return nil
		})
	}

	// Wait for all goroutines to complete
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.DocumentsAnalyzed = int(analyzed)
	stats.DocumentsSkipped = int(skipped)
	stats.DocumentsFailed = int(failed)
	stats.IssuesPublished = int(issues)
	stats.Duration = time.Since(startTime)

	m.logger.Info("analysis sweep finished",
		"analyzed", stats.DocumentsAnalyzed, "skipped", stats.DocumentsSkipped,
		"failed", stats.DocumentsFailed, "issues", stats.IssuesPublished, "duration", stats.Duration)
	return stats, nil
}
