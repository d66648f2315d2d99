package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/mindvault/mindvault/ai"
	"github.com/mindvault/mindvault/plugin/markdown"
	"github.com/mindvault/mindvault/store"
)

// SimilarityService ranks stored notes against free text. It is a stateless
// request/response adapter over the embedding provider and the vector store.
type SimilarityService interface {
	// Search embeds query and returns the owner's notes above MinScore,
	// sorted descending by score, at most Limit entries. The returned slice
	// may be shared between concurrent identical queries; callers must not
	// mutate it.
	Search(ctx context.Context, req *SimilarityRequest) ([]*store.ScoredNote, error)
}

// SimilarityRequest is one similarity query. OwnerID is mandatory: results
// are scoped server-side, never by caller-side filtering alone.
type SimilarityRequest struct {
	OwnerID  string
	Query    string
	MinScore float32
	Limit    int
}

type similarityService struct {
	store     *store.Store
	embedding ai.EmbeddingService
	markdown  markdown.Service
	model     string

	// limiter caps the provider call rate across all streams; a burst of
	// settles beyond it queues rather than failing.
	limiter *rate.Limiter
	// group collapses concurrent identical queries into one provider call.
	group singleflight.Group
}

// NewSimilarityService creates a SimilarityService.
func NewSimilarityService(st *store.Store, embedding ai.EmbeddingService, md markdown.Service, model string) SimilarityService {
	return &similarityService{
		store:     st,
		embedding: embedding,
		markdown:  md,
		model:     model,
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (s *similarityService) Search(ctx context.Context, req *SimilarityRequest) ([]*store.ScoredNote, error) {
	if req.OwnerID == "" {
		return nil, ErrMissingOwner
	}

	query := s.markdown.PlainText(req.Query)
	if query == "" {
		return []*store.ScoredNote{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	key := fmt.Sprintf("%s\x1f%s\x1f%.2f\x1f%d", req.OwnerID, query, req.MinScore, limit)
	// The flight may outlive the caller that started it: later callers with
	// the same key join it, so it must not die with the first caller's
	// context. Each caller still honors its own cancellation via the select.
	ch := s.group.DoChan(key, func() (any, error) {
		return s.search(context.WithoutCancel(ctx), req.OwnerID, query, req.MinScore, limit)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*store.ScoredNote), nil
	}
}

func (s *similarityService) search(ctx context.Context, ownerID, query string, minScore float32, limit int) ([]*store.ScoredNote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.store.SearchNotesByVector(ctx, &store.VectorSearchOptions{
		OwnerID:  ownerID,
		Model:    s.model,
		Vector:   vector,
		Limit:    limit,
		MinScore: minScore,
	})
	if err != nil {
		return nil, err
	}

	shaped := shapeScoredNotes(results, ownerID, minScore, limit)
	slog.Debug("similarity search",
		"owner_id", ownerID,
		"query_len", len(query),
		"results", len(shaped),
		"latency_ms", time.Since(start).Milliseconds())
	return shaped, nil
}

// shapeScoredNotes re-applies the owner scope, the score floor, descending
// order, and the result cap. The store already applies floor and scope;
// re-applying here protects against provider semantics drifting.
func shapeScoredNotes(results []*store.ScoredNote, ownerID string, minScore float32, limit int) []*store.ScoredNote {
	shaped := make([]*store.ScoredNote, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Note == nil || seen[r.Note.UID] {
			continue
		}
		if r.Note.OwnerID != ownerID {
			// Contract violation by the backing store. Drop the row rather
			// than trust it.
			slog.Error("similarity result outside owner scope",
				"expected_owner", ownerID,
				"note_uid", r.Note.UID)
			continue
		}
		if r.Score < minScore {
			continue
		}
		seen[r.Note.UID] = true
		shaped = append(shaped, r)
	}

	sort.SliceStable(shaped, func(i, j int) bool {
		return shaped[i].Score > shaped[j].Score
	})
	if len(shaped) > limit {
		shaped = shaped[:limit]
	}
	return shaped
}

// CombineDraft joins a draft's title and content into one similarity query.
func CombineDraft(title, content string) string {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	switch {
	case title == "":
		return content
	case content == "":
		return title
	default:
		return title + "\n" + content
	}
}
