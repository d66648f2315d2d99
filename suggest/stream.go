package suggest

import (
	"time"

	"github.com/mindvault/mindvault/internal/profile"
)

// Stream keys. The three streams share input text but are gated, scored,
// and published independently.
const (
	StreamSearch  = "search"
	StreamTags    = "tags"
	StreamRelated = "related"
)

// Config holds the per-stream trigger, timing, and shaping rules.
//
// The similarity floors intentionally differ per stream (search permissive,
// related-notes strict); both are tunable policy, not constants.
type Config struct {
	SearchQuiet  time.Duration
	TagQuiet     time.Duration
	RelatedQuiet time.Duration

	SearchMinScore  float32
	RelatedMinScore float32

	SearchLimit  int
	TagLimit     int
	RelatedLimit int

	// RelatedMinChars is the minimum combined title+content length before
	// the related-notes stream issues any call.
	RelatedMinChars int
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		SearchQuiet:     500 * time.Millisecond,
		TagQuiet:        1000 * time.Millisecond,
		RelatedQuiet:    1500 * time.Millisecond,
		SearchMinScore:  0.5,
		RelatedMinScore: 0.7,
		SearchLimit:     10,
		TagLimit:        5,
		RelatedLimit:    5,
		RelatedMinChars: 20,
	}
}

// ConfigFromProfile builds stream configuration from the instance profile.
func ConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	if p.SearchQuietMs > 0 {
		cfg.SearchQuiet = time.Duration(p.SearchQuietMs) * time.Millisecond
	}
	if p.TagQuietMs > 0 {
		cfg.TagQuiet = time.Duration(p.TagQuietMs) * time.Millisecond
	}
	if p.RelatedQuietMs > 0 {
		cfg.RelatedQuiet = time.Duration(p.RelatedQuietMs) * time.Millisecond
	}
	if p.SearchMinScore > 0 {
		cfg.SearchMinScore = float32(p.SearchMinScore)
	}
	if p.RelatedMinScore > 0 {
		cfg.RelatedMinScore = float32(p.RelatedMinScore)
	}
	if p.SearchLimit > 0 {
		cfg.SearchLimit = p.SearchLimit
	}
	if p.TagLimit > 0 {
		cfg.TagLimit = p.TagLimit
	}
	if p.RelatedLimit > 0 {
		cfg.RelatedLimit = p.RelatedLimit
	}
	if p.RelatedMinChars > 0 {
		cfg.RelatedMinChars = p.RelatedMinChars
	}
	return cfg
}

// Snapshot is one stream's published state: the current results, whether a
// cycle is in flight, and the last error if the cycle degraded. Each settle
// cycle's snapshot fully replaces the previous one.
type Snapshot[T any] struct {
	Results []T
	Loading bool
	Err     error
}

// Subscriber receives a stream's snapshots. Callbacks run on scheduler
// goroutines and must not block or call back into the Orchestrator.
type Subscriber[T any] func(Snapshot[T])
