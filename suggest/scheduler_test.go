package suggest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires due timers in deadline order.
// Callbacks run on the calling goroutine with no clock lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.deadline.After(c.now) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.mu.Unlock()
}

type settleRecord struct {
	stream string
	value  string
	token  uint64
}

type settleRecorder struct {
	mu      sync.Mutex
	settles []settleRecord
}

func (r *settleRecorder) settle(stream, value string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settles = append(r.settles, settleRecord{stream: stream, value: value, token: token})
}

func (r *settleRecorder) all() []settleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]settleRecord(nil), r.settles...)
}

func TestSchedulerDebouncesBurst(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 500 * time.Millisecond
	s.Schedule(StreamSearch, "a", quiet)
	clock.Advance(200 * time.Millisecond)
	s.Schedule(StreamSearch, "ab", quiet)
	clock.Advance(200 * time.Millisecond)
	s.Schedule(StreamSearch, "abc", quiet)

	clock.Advance(499 * time.Millisecond)
	assert.Empty(t, rec.all(), "quiet period not elapsed yet")

	clock.Advance(1 * time.Millisecond)
	settles := rec.all()
	require.Len(t, settles, 1)
	assert.Equal(t, "abc", settles[0].value)

	clock.Advance(10 * time.Second)
	assert.Len(t, rec.all(), 1, "a settle fires once per quiet period")
}

func TestSchedulerDropsStaleResolve(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "first", quiet)
	clock.Advance(quiet)
	s.Schedule(StreamSearch, "second", quiet)
	clock.Advance(quiet)

	settles := rec.all()
	require.Len(t, settles, 2)

	// The newer cycle's result arrives first; the older one completes after
	// and must be dropped.
	var published []string
	assert.True(t, s.Resolve(StreamSearch, settles[1].token, func() {
		published = append(published, "second")
	}))
	assert.False(t, s.Resolve(StreamSearch, settles[0].token, func() {
		published = append(published, "first")
	}))
	assert.Equal(t, []string{"second"}, published)
}

func TestSchedulerSkipsIdenticalResettle(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "kubernetes", quiet)
	clock.Advance(quiet)
	settles := rec.all()
	require.Len(t, settles, 1)
	require.True(t, s.Resolve(StreamSearch, settles[0].token, nil))

	// Same text settling again does not start a new cycle.
	s.Schedule(StreamSearch, "kubernetes", quiet)
	clock.Advance(quiet)
	assert.Len(t, rec.all(), 1)

	// Different text does.
	s.Schedule(StreamSearch, "kubernetes operator", quiet)
	clock.Advance(quiet)
	assert.Len(t, rec.all(), 2)
}

func TestSchedulerErrorCommitAllowsRetry(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	settles := rec.all()
	require.Len(t, settles, 1)
	require.True(t, s.ResolveError(StreamSearch, settles[0].token, nil))

	// The published output is a degraded snapshot, so retyping the exact
	// same text must query again.
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	settles = rec.all()
	require.Len(t, settles, 2)

	// A successful commit restores the identical-resettle skip.
	require.True(t, s.Resolve(StreamSearch, settles[1].token, nil))
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	assert.Len(t, rec.all(), 2)
}

func TestSchedulerErrorCommitInvalidatesPriorSuccess(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	settles := rec.all()
	require.Len(t, settles, 1)
	require.True(t, s.Resolve(StreamSearch, settles[0].token, nil))

	s.Schedule(StreamSearch, "golang channels", quiet)
	clock.Advance(quiet)
	settles = rec.all()
	require.Len(t, settles, 2)
	require.True(t, s.ResolveError(StreamSearch, settles[1].token, nil))

	// Returning to the previously committed text must re-query: the failed
	// cycle replaced its published results with an error snapshot.
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	assert.Len(t, rec.all(), 3)
}

func TestSchedulerIfLatestDropsSuperseded(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "first", quiet)
	clock.Advance(quiet)
	s.Schedule(StreamSearch, "second", quiet)
	clock.Advance(quiet)

	settles := rec.all()
	require.Len(t, settles, 2)

	// A superseded cycle must not publish anything, loading flag included.
	ran := false
	assert.False(t, s.IfLatest(StreamSearch, settles[0].token, func() { ran = true }))
	assert.False(t, ran)
	assert.True(t, s.IfLatest(StreamSearch, settles[1].token, func() { ran = true }))
	assert.True(t, ran)

	// IfLatest does not consume the cycle; Resolve still commits it.
	assert.True(t, s.Resolve(StreamSearch, settles[1].token, nil))

	s.Cancel(StreamSearch, nil)
	assert.False(t, s.IfLatest(StreamSearch, settles[1].token, nil),
		"cancel invalidates intermediate publishes too")
}

func TestSchedulerCancelInvalidatesInflight(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "draft", quiet)
	clock.Advance(quiet)
	settles := rec.all()
	require.Len(t, settles, 1)

	committed := false
	s.Cancel(StreamSearch, func() { committed = true })
	assert.True(t, committed, "cancel commit runs atomically with the cancellation")

	assert.False(t, s.Resolve(StreamSearch, settles[0].token, nil),
		"cancel invalidates results still in flight")
}

func TestSchedulerCancelResetsIdempotence(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 100 * time.Millisecond
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	settles := rec.all()
	require.Len(t, settles, 1)
	require.True(t, s.Resolve(StreamSearch, settles[0].token, nil))

	// Clearing the input replaces the published output, so retyping the
	// same text must query again.
	s.Cancel(StreamSearch, nil)
	s.Schedule(StreamSearch, "golang", quiet)
	clock.Advance(quiet)
	assert.Len(t, rec.all(), 2)
}

func TestSchedulerStreamsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	s.Schedule(StreamSearch, "query", 100*time.Millisecond)
	s.Schedule(StreamRelated, "a long draft body", 300*time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	settles := rec.all()
	require.Len(t, settles, 1)
	assert.Equal(t, StreamSearch, settles[0].stream)

	// Cancelling one stream leaves the other's pending timer alone.
	s.Cancel(StreamSearch, nil)
	clock.Advance(200 * time.Millisecond)
	settles = rec.all()
	require.Len(t, settles, 2)
	assert.Equal(t, StreamRelated, settles[1].stream)
	assert.Equal(t, "a long draft body", settles[1].value)
}

func TestSchedulerRestartResetsQuietPeriod(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)
	defer s.Close()

	quiet := 500 * time.Millisecond
	s.Schedule(StreamSearch, "a", quiet)
	clock.Advance(400 * time.Millisecond)
	s.Schedule(StreamSearch, "ab", quiet)
	clock.Advance(400 * time.Millisecond)
	assert.Empty(t, rec.all(), "each new value restarts the full quiet period")

	clock.Advance(100 * time.Millisecond)
	settles := rec.all()
	require.Len(t, settles, 1)
	assert.Equal(t, "ab", settles[0].value)
}

func TestSchedulerClose(t *testing.T) {
	clock := newFakeClock()
	rec := &settleRecorder{}
	s := NewScheduler(clock, rec.settle)

	s.Schedule(StreamSearch, "pending", 100*time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	settles := rec.all()
	token := s.LatestToken(StreamSearch)
	s.Close()

	clock.Advance(time.Second)
	assert.Equal(t, settles, rec.all(), "no settles after close")
	assert.False(t, s.Resolve(StreamSearch, token, nil))

	// Scheduling after close is a no-op.
	s.Schedule(StreamSearch, "late", 10*time.Millisecond)
	clock.Advance(time.Second)
	assert.Equal(t, settles, rec.all())
}
