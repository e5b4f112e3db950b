package monitor

import "sync/atomic"

// sweepLock guards AnalyzeAll so that two sweeps never overlap.
// Acquisition never blocks.
type sweepLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire reports whether the lock was taken
func (l *sweepLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock.
// Must only be called by the goroutine that successfully acquired it.
func (l *sweepLock) Release() {
	l.state.Store(0)
}
