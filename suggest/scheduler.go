// Package suggest implements the retrieval/suggestion orchestration layer:
// a debounced, cancellable scheduler driving three independent suggestion
// streams (search, tag suggestions, related notes) from rapidly-changing
// user input, with strict recency guarantees under arbitrary provider
// latency.
package suggest

import (
	"sync"
	"time"
)

// Clock abstracts timer creation so debouncing can be tested without real
// sleeps.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a stoppable pending timer.
type Timer interface {
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

// SystemClock is the wall-clock implementation of Clock.
var SystemClock Clock = realClock{}

// SettleFunc is called when a stream's input has been quiet for its
// configured period. token identifies this settle cycle; the consumer must
// pass it back to Resolve to publish the cycle's result.
type SettleFunc func(stream string, value string, token uint64)

// Scheduler turns a noisy, high-frequency sequence of input values into a
// low-frequency sequence of settled values, and guarantees that only the
// most recently settled value's asynchronous result is ever committed.
//
// Streams are fully independent: scheduling, cancelling, or resolving one
// stream never affects another.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	onSettle SettleFunc
	streams  map[string]*streamState
	closed   bool
}

type streamState struct {
	timer   Timer
	pending string
	// seq is the latest issued token. Bumping it invalidates every
	// in-flight resolve for the stream.
	seq uint64
	// latestValue is the value carried by token seq.
	latestValue string
	// lastCommitted is the value whose result was last published.
	lastCommitted string
	hasCommitted  bool
}

// NewScheduler creates a Scheduler. onSettle is invoked off the scheduler
// lock, on the timer goroutine.
func NewScheduler(clock Clock, onSettle SettleFunc) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{
		clock:    clock,
		onSettle: onSettle,
		streams:  make(map[string]*streamState),
	}
}

// Schedule records value as the latest pending value for stream and
// (re)starts its quiet-period timer. A value arriving before the timer
// elapses restarts it: a continuously-typing user never triggers a settle
// until they pause.
func (s *Scheduler) Schedule(stream, value string, quiet time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	st := s.stream(stream)
	if st.timer != nil {
		st.timer.Stop()
	}
	st.pending = value
	st.timer = s.clock.AfterFunc(quiet, func() {
		s.settle(stream)
	})
}

// Cancel marks the stream inactive: any pending timer is cleared and every
// in-flight resolve is invalidated. If commit is non-nil it runs atomically
// with the cancellation (used to publish the immediate empty result for
// cleared input). commit must not call back into the Scheduler.
func (s *Scheduler) Cancel(stream string, commit func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	st := s.stream(stream)
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.pending = ""
	st.seq++
	// The stream's output is being replaced, so an identical future input
	// must re-query.
	st.lastCommitted = ""
	st.hasCommitted = false

	if commit != nil {
		commit()
	}
}

// Resolve commits the result of the settle cycle identified by token. The
// commit callback runs only if token is still the latest issued for the
// stream; a superseded token is silently dropped and Resolve reports false.
// This is the central correctness property: stale in-flight results must
// never overwrite fresher state, even when they complete out of order.
//
// commit runs under the scheduler lock and must not call back into the
// Scheduler.
func (s *Scheduler) Resolve(stream string, token uint64, commit func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if s.closed || !ok || st.seq != token {
		return false
	}

	st.lastCommitted = st.latestValue
	st.hasCommitted = true
	if commit != nil {
		commit()
	}
	return true
}

// ResolveError commits a failure result for the settle cycle identified by
// token, under the same staleness gate as Resolve. An error commit clears
// the idempotence record: the published output is now a degraded snapshot,
// so future input must re-query even when the text has not changed.
//
// commit runs under the scheduler lock and must not call back into the
// Scheduler.
func (s *Scheduler) ResolveError(stream string, token uint64, commit func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if s.closed || !ok || st.seq != token {
		return false
	}

	st.lastCommitted = ""
	st.hasCommitted = false
	if commit != nil {
		commit()
	}
	return true
}

// IfLatest runs commit under the scheduler lock when token is still the
// latest issued for stream, without recording a commit. It gates
// intermediate publishes (the loading snapshot) the same way Resolve gates
// final ones: a superseded cycle must not publish anything, not even a
// loading flag. commit must not call back into the Scheduler.
func (s *Scheduler) IfLatest(stream string, token uint64, commit func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if s.closed || !ok || st.seq != token {
		return false
	}
	if commit != nil {
		commit()
	}
	return true
}

// LatestToken returns the latest token issued for stream. Zero means no
// settle has been issued yet.
func (s *Scheduler) LatestToken(stream string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[stream]; ok {
		return st.seq
	}
	return 0
}

// Close stops all pending timers. In-flight resolves are dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, st := range s.streams {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

func (s *Scheduler) stream(stream string) *streamState {
	st, ok := s.streams[stream]
	if !ok {
		st = &streamState{}
		s.streams[stream] = st
	}
	return st
}

func (s *Scheduler) settle(stream string) {
	s.mu.Lock()
	st, ok := s.streams[stream]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	value := st.pending

	// Re-settling text identical to the last committed result is a no-op:
	// the published output is already correct and a duplicate provider call
	// would be wasted work. (Cancel resets this, so cleared-then-retyped
	// input does re-query.)
	if st.hasCommitted && value == st.lastCommitted {
		s.mu.Unlock()
		return
	}

	st.seq++
	st.latestValue = value
	token := st.seq
	onSettle := s.onSettle
	s.mu.Unlock()

	if onSettle != nil {
		onSettle(stream, value, token)
	}
}
