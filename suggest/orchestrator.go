package suggest

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/ai/tags"
	"github.com/mindvault/mindvault/store"
	"github.com/mindvault/mindvault/suggest/metrics"
)

// draftSep joins a draft's title and content into one scheduler value so
// that edits to either field restart the same quiet period.
const draftSep = "\x1f"

// Orchestrator drives the three suggestion streams from user input events.
//
// Input arrives through the Observe methods on arbitrary goroutines; each
// stream debounces independently, calls its provider once the input
// settles, and publishes a Snapshot to its subscribers. Stale in-flight
// results are dropped, never published.
type Orchestrator struct {
	cfg        Config
	scheduler  *Scheduler
	similarity SimilarityService
	tagger     tags.Suggester
	exporter   *metrics.Exporter

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// mu guards everything below. Lock ordering: the scheduler lock may be
	// held when mu is acquired (commit callbacks), so no code path may call
	// into the Scheduler while holding mu.
	mu           sync.Mutex
	owners       map[string]string
	openNoteUID  string
	attachedTags map[string]bool
	inflight     map[string]context.CancelFunc

	search  streamOutput[*store.ScoredNote]
	tagged  streamOutput[tags.Suggestion]
	related streamOutput[*store.ScoredNote]
}

type streamOutput[T any] struct {
	results []T
	subs    []Subscriber[T]
}

func (o *streamOutput[T]) publish(snap Snapshot[T]) {
	o.results = snap.Results
	for _, sub := range o.subs {
		sub(snap)
	}
}

// NewOrchestrator creates an Orchestrator. clock may be nil for the system
// clock; exporter may be nil to disable metrics. tagger may be nil when the
// instance runs without an LLM, in which case the tag stream always
// publishes empty results with ErrProviderUnavailable.
func NewOrchestrator(cfg Config, similarity SimilarityService, tagger tags.Suggester, clock Clock, exporter *metrics.Exporter) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:          cfg,
		similarity:   similarity,
		tagger:       tagger,
		exporter:     exporter,
		baseCtx:      ctx,
		baseCancel:   cancel,
		owners:       make(map[string]string),
		attachedTags: make(map[string]bool),
		inflight:     make(map[string]context.CancelFunc),
	}
	o.scheduler = NewScheduler(clock, o.onSettle)
	return o
}

// ObserveSearchText feeds one search box edit. Empty input cancels the
// stream and publishes an empty snapshot immediately, with no provider
// call.
func (o *Orchestrator) ObserveSearchText(ownerID, text string) {
	o.setOwner(StreamSearch, ownerID)

	if strings.TrimSpace(text) == "" {
		o.scheduler.Cancel(StreamSearch, func() {
			o.publishSearch(Snapshot[*store.ScoredNote]{Results: []*store.ScoredNote{}})
		})
		return
	}
	o.scheduler.Schedule(StreamSearch, text, o.cfg.SearchQuiet)
}

// ObserveDraft feeds one note editor edit. It drives both the tag stream
// and the related-notes stream; each applies its own trigger gate and quiet
// period.
func (o *Orchestrator) ObserveDraft(ownerID, title, content string) {
	o.setOwner(StreamTags, ownerID)
	o.setOwner(StreamRelated, ownerID)

	value := title + draftSep + content

	if strings.TrimSpace(title) == "" && strings.TrimSpace(content) == "" {
		o.scheduler.Cancel(StreamTags, func() {
			o.publishTags(Snapshot[tags.Suggestion]{Results: []tags.Suggestion{}})
		})
	} else {
		o.scheduler.Schedule(StreamTags, value, o.cfg.TagQuiet)
	}

	// The gate counts characters, not bytes; multi-byte scripts would
	// otherwise trigger far too early.
	if utf8.RuneCountInString(strings.TrimSpace(CombineDraft(title, content))) < o.cfg.RelatedMinChars {
		o.scheduler.Cancel(StreamRelated, func() {
			o.publishRelated(Snapshot[*store.ScoredNote]{Results: []*store.ScoredNote{}})
		})
	} else {
		o.scheduler.Schedule(StreamRelated, value, o.cfg.RelatedQuiet)
	}
}

// SetOpenNote records the note currently open in the editor; it is excluded
// from related-notes results. Empty clears the exclusion.
func (o *Orchestrator) SetOpenNote(uid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openNoteUID = uid
}

// SetAttachedTags records the tags already attached to the open draft; they
// are excluded from tag suggestions.
func (o *Orchestrator) SetAttachedTags(attached []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attachedTags = make(map[string]bool, len(attached))
	for _, t := range attached {
		o.attachedTags[strings.ToLower(strings.TrimSpace(t))] = true
	}
}

// SubscribeSearch registers a subscriber for search stream snapshots.
func (o *Orchestrator) SubscribeSearch(sub Subscriber[*store.ScoredNote]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.search.subs = append(o.search.subs, sub)
}

// SubscribeTags registers a subscriber for tag stream snapshots.
func (o *Orchestrator) SubscribeTags(sub Subscriber[tags.Suggestion]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tagged.subs = append(o.tagged.subs, sub)
}

// SubscribeRelated registers a subscriber for related-notes snapshots.
func (o *Orchestrator) SubscribeRelated(sub Subscriber[*store.ScoredNote]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.related.subs = append(o.related.subs, sub)
}

// Close stops all pending timers and cancels in-flight provider calls.
func (o *Orchestrator) Close() {
	o.scheduler.Close()
	o.baseCancel()
}

func (o *Orchestrator) setOwner(stream, ownerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owners[stream] = ownerID
}

func (o *Orchestrator) streamOwner(stream string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owners[stream]
}

func (o *Orchestrator) publishSearch(snap Snapshot[*store.ScoredNote]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.search.publish(snap)
}

func (o *Orchestrator) publishTags(snap Snapshot[tags.Suggestion]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tagged.publish(snap)
}

func (o *Orchestrator) publishRelated(snap Snapshot[*store.ScoredNote]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.related.publish(snap)
}

// beginCall cancels the stream's previous in-flight provider call and
// returns a context for the new one. A superseded call's result would be
// dropped by Resolve anyway; cancelling it just stops wasted work.
func (o *Orchestrator) beginCall(stream string) (context.Context, context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.inflight[stream]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.inflight[stream] = cancel
	return ctx, cancel
}

func (o *Orchestrator) onSettle(stream, value string, token uint64) {
	o.exporter.RecordSettle(stream)
	start := time.Now()

	ctx, cancel := o.beginCall(stream)
	defer cancel()

	switch stream {
	case StreamSearch:
		o.settleSearch(ctx, value, token, start)
	case StreamTags:
		o.settleTags(ctx, value, token, start)
	case StreamRelated:
		o.settleRelated(ctx, value, token, start)
	}
}

func (o *Orchestrator) settleSearch(ctx context.Context, value string, token uint64, start time.Time) {
	o.scheduler.IfLatest(StreamSearch, token, o.publishSearchLoading)

	results, err := o.similarity.Search(ctx, &SimilarityRequest{
		OwnerID:  o.streamOwner(StreamSearch),
		Query:    value,
		MinScore: o.cfg.SearchMinScore,
		Limit:    o.cfg.SearchLimit,
	})
	o.resolveScored(StreamSearch, token, results, err, start, o.publishSearch)
}

func (o *Orchestrator) settleRelated(ctx context.Context, value string, token uint64, start time.Time) {
	o.scheduler.IfLatest(StreamRelated, token, o.publishRelatedLoading)

	title, content, _ := strings.Cut(value, draftSep)
	results, err := o.similarity.Search(ctx, &SimilarityRequest{
		OwnerID:  o.streamOwner(StreamRelated),
		Query:    CombineDraft(title, content),
		MinScore: o.cfg.RelatedMinScore,
		// Fetch one extra so excluding the open note still fills the list.
		Limit: o.cfg.RelatedLimit + 1,
	})
	if err == nil {
		results = o.excludeOpenNote(results)
		if len(results) > o.cfg.RelatedLimit {
			results = results[:o.cfg.RelatedLimit]
		}
	}
	o.resolveScored(StreamRelated, token, results, err, start, o.publishRelated)
}

func (o *Orchestrator) settleTags(ctx context.Context, value string, token uint64, start time.Time) {
	o.scheduler.IfLatest(StreamTags, token, o.publishTagsLoading)

	title, content, _ := strings.Cut(value, draftSep)

	var results []tags.Suggestion
	var err error
	if o.tagger == nil {
		err = ErrProviderUnavailable
	} else {
		results, err = o.tagger.Suggest(ctx, &tags.SuggestRequest{
			Title:   title,
			Content: content,
			MaxTags: o.cfg.TagLimit,
		})
	}
	if err == nil {
		results = o.excludeAttachedTags(results)
		if len(results) > o.cfg.TagLimit {
			results = results[:o.cfg.TagLimit]
		}
	}

	if err != nil {
		o.recordFailure(StreamTags, err)
		resolved := o.scheduler.ResolveError(StreamTags, token, func() {
			o.publishTags(Snapshot[tags.Suggestion]{
				Results: []tags.Suggestion{},
				Err:     errors.Wrapf(ErrProviderUnavailable, "tag suggestion failed: %v", err),
			})
		})
		if !resolved {
			o.exporter.RecordStaleDrop(StreamTags)
		}
		return
	}

	resolved := o.scheduler.Resolve(StreamTags, token, func() {
		o.publishTags(Snapshot[tags.Suggestion]{Results: results})
	})
	if resolved {
		o.exporter.RecordCycleLatency(StreamTags, time.Since(start))
	} else {
		o.exporter.RecordStaleDrop(StreamTags)
	}
}

// resolveScored is the shared commit path for the two similarity-backed
// streams.
func (o *Orchestrator) resolveScored(stream string, token uint64, results []*store.ScoredNote, err error, start time.Time, publish func(Snapshot[*store.ScoredNote])) {
	if err != nil {
		o.recordFailure(stream, err)
		resolved := o.scheduler.ResolveError(stream, token, func() {
			publish(Snapshot[*store.ScoredNote]{
				Results: []*store.ScoredNote{},
				Err:     errors.Wrapf(ErrProviderUnavailable, "%s failed: %v", stream, err),
			})
		})
		if !resolved {
			o.exporter.RecordStaleDrop(stream)
		}
		return
	}

	resolved := o.scheduler.Resolve(stream, token, func() {
		publish(Snapshot[*store.ScoredNote]{Results: results})
	})
	if resolved {
		o.exporter.RecordCycleLatency(stream, time.Since(start))
	} else {
		o.exporter.RecordStaleDrop(stream)
	}
}

func (o *Orchestrator) recordFailure(stream string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	o.exporter.RecordProviderError(stream)
	slog.Warn("suggestion provider call failed", "stream", stream, "error", err)
}

func (o *Orchestrator) publishSearchLoading() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.search.publish(Snapshot[*store.ScoredNote]{Results: o.search.results, Loading: true})
}

func (o *Orchestrator) publishTagsLoading() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tagged.publish(Snapshot[tags.Suggestion]{Results: o.tagged.results, Loading: true})
}

func (o *Orchestrator) publishRelatedLoading() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.related.publish(Snapshot[*store.ScoredNote]{Results: o.related.results, Loading: true})
}

func (o *Orchestrator) excludeOpenNote(results []*store.ScoredNote) []*store.ScoredNote {
	o.mu.Lock()
	uid := o.openNoteUID
	o.mu.Unlock()
	if uid == "" {
		return results
	}
	// The provider may hand the same slice to concurrent collapsed queries,
	// so filter into a fresh one instead of compacting in place.
	filtered := make([]*store.ScoredNote, 0, len(results))
	for _, r := range results {
		if r.Note.UID != uid {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func (o *Orchestrator) excludeAttachedTags(results []tags.Suggestion) []tags.Suggestion {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.attachedTags) == 0 {
		return results
	}
	filtered := make([]tags.Suggestion, 0, len(results))
	for _, r := range results {
		if !o.attachedTags[strings.ToLower(r.Tag)] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
