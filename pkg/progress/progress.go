// Package progress reports completion of long running stages through an
// injected callback.
package progress

import "sync/atomic"

// Report is one progress notification.
type Report struct {
	Stage   string
	Percent int
}

// Func receives progress reports. It is called from worker goroutines and must be
// safe for concurrent use; it should return quickly.
type Func func(Report)

// Tracker counts completed units of a stage and calls its Func once per
// whole-percent increase. A nil Tracker is a no-op.
type Tracker struct {
	stage string
	total int64
	fn    Func
	done  atomic.Int64
	last  atomic.Int64
}

// NewTracker returns a tracker for total units, or nil when fn is nil.
func NewTracker(stage string, total int, fn Func) *Tracker {
	if fn == nil || total <= 0 {
		return nil
	}
	return &Tracker{stage: stage, total: int64(total), fn: fn}
}

// Add marks n more units complete.
func (t *Tracker) Add(n int) {
	if t == nil {
		return
	}
	pct := t.done.Add(int64(n)) * 100 / t.total
	for {
		last := t.last.Load()
		if pct <= last {
			return
		}
		if t.last.CompareAndSwap(last, pct) {
			t.fn(Report{Stage: t.stage, Percent: int(pct)})
			return
		}
	}
}
