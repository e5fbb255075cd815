package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Latch is a one-shot boolean signal. It starts unset; Set transitions it to
// set exactly once and the transition never reverts. Waiters observe the
// transition through Done. Safe for concurrent use.
type Latch struct {
	// once guards the single close of ch.
	once sync.Once
	// ch is closed when the latch fires.
	ch chan struct{}
}

// NewLatch returns an unset Latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set fires the latch. Subsequent calls are no-ops.
func (l *Latch) Set() {
	l.once.Do(func() { close(l.ch) })
}

// IsSet reports whether the latch has fired.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the latch fires.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

// ResultLatch is a Latch that carries a boolean outcome, used for the
// decontextualization signal: the latch firing means the check completed,
// and the payload reports whether decontextualization was required.
type ResultLatch struct {
	// latch marks completion.
	latch *Latch
	// result is the outcome, valid only after the latch fires.
	result atomic.Bool
}

// NewResultLatch returns an unresolved ResultLatch.
func NewResultLatch() *ResultLatch {
	return &ResultLatch{latch: NewLatch()}
}

// Resolve records the outcome and fires the latch. Only the first call wins.
func (r *ResultLatch) Resolve(outcome bool) {
	if !r.latch.IsSet() {
		r.result.Store(outcome)
		r.latch.Set()
	}
}

// Wait blocks until the latch fires, the timeout elapses, or ctx is
// cancelled. The boolean outcome is returned with ok=true only when the
// latch fired; a timeout or cancellation returns ok=false, which callers
// must treat as "undecided", not as a negative outcome.
func (r *ResultLatch) Wait(ctx context.Context, timeout time.Duration) (outcome bool, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.latch.Done():
		return r.result.Load(), true
	case <-timer.C:
		return false, false
	case <-ctx.Done():
		return false, false
	}
}

// Resolved reports whether the outcome is available.
func (r *ResultLatch) Resolved() bool { return r.latch.IsSet() }

// Signals is the full set of coordination signals for one query run.
// Each run owns an independent instance; signals are never shared across
// queries. All fields are monotonic: once a signal trips it stays tripped.
type Signals struct {
	// connectionLost trips when any transport write fails. The connection
	// starts alive and can only transition to lost.
	connectionLost *Latch

	// AbortFastTrack trips when decontextualization invalidates the fast
	// interpretation of the query. Checked before scoring and sending in
	// fast-track mode.
	AbortFastTrack *Latch

	// Decontextualization completes when the pre-check pipeline has decided
	// whether the query depends on prior conversational context.
	Decontextualization *ResultLatch

	// PreChecksDone trips when all correctness pre-checks have finished.
	// No results are sent to the client before this fires.
	PreChecksDone *Latch

	// RetrievalStarted trips when the fast track begins retrieval, so
	// collaborators know the fast path is in play.
	RetrievalStarted *Latch

	// queryDone records that the query has been fully answered elsewhere.
	queryDone atomic.Bool

	// fastTrackWorked records that the fast track successfully delivered
	// results, letting the regular path skip duplicate work.
	fastTrackWorked atomic.Bool
}

// NewSignals returns a fresh signal set for one query run. The connection
// starts alive; every other signal starts untripped.
func NewSignals() *Signals {
	return &Signals{
		connectionLost:      NewLatch(),
		AbortFastTrack:      NewLatch(),
		Decontextualization: NewResultLatch(),
		PreChecksDone:       NewLatch(),
		RetrievalStarted:    NewLatch(),
	}
}

// ConnectionAlive reports whether the client connection is still usable.
func (s *Signals) ConnectionAlive() bool { return !s.connectionLost.IsSet() }

// ConnectionLost marks the client connection as gone. Irreversible.
func (s *Signals) ConnectionLost() { s.connectionLost.Set() }

// MarkQueryDone records that the query has been fully answered.
func (s *Signals) MarkQueryDone() { s.queryDone.Store(true) }

// QueryDone reports whether the query has been fully answered.
func (s *Signals) QueryDone() bool { return s.queryDone.Load() }

// MarkFastTrackWorked records a successful fast-track result delivery.
func (s *Signals) MarkFastTrackWorked() { s.fastTrackWorked.Store(true) }

// FastTrackWorked reports whether the fast track delivered results.
func (s *Signals) FastTrackWorked() bool { return s.fastTrackWorked.Load() }
