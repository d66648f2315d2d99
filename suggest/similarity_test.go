package suggest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindvault/mindvault/ai"
	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/plugin/markdown"
	"github.com/mindvault/mindvault/store"
)

func TestShapeScoredNotes(t *testing.T) {
	owner := "u1"

	t.Run("applies score floor", func(t *testing.T) {
		results := []*store.ScoredNote{
			scored("a", owner, 0.9),
			scored("b", owner, 0.72),
			scored("c", owner, 0.68),
			scored("d", owner, 0.5),
		}
		shaped := shapeScoredNotes(results, owner, 0.7, 10)
		require.Len(t, shaped, 2)
		assert.Equal(t, "a", shaped[0].Note.UID)
		assert.Equal(t, "b", shaped[1].Note.UID)
	})

	t.Run("keeps boundary score", func(t *testing.T) {
		results := []*store.ScoredNote{scored("a", owner, 0.7)}
		shaped := shapeScoredNotes(results, owner, 0.7, 10)
		assert.Len(t, shaped, 1)
	})

	t.Run("sorts descending and truncates", func(t *testing.T) {
		results := []*store.ScoredNote{
			scored("low", owner, 0.6),
			scored("high", owner, 0.9),
			scored("mid", owner, 0.75),
		}
		shaped := shapeScoredNotes(results, owner, 0.5, 2)
		require.Len(t, shaped, 2)
		assert.Equal(t, "high", shaped[0].Note.UID)
		assert.Equal(t, "mid", shaped[1].Note.UID)
	})

	t.Run("drops rows outside owner scope", func(t *testing.T) {
		results := []*store.ScoredNote{
			scored("mine", owner, 0.9),
			scored("theirs", "u2", 0.95),
		}
		shaped := shapeScoredNotes(results, owner, 0.5, 10)
		require.Len(t, shaped, 1)
		assert.Equal(t, "mine", shaped[0].Note.UID)
	})

	t.Run("dedupes by uid", func(t *testing.T) {
		results := []*store.ScoredNote{
			scored("a", owner, 0.9),
			scored("a", owner, 0.85),
		}
		shaped := shapeScoredNotes(results, owner, 0.5, 10)
		assert.Len(t, shaped, 1)
	})

	t.Run("empty input yields empty non-nil slice", func(t *testing.T) {
		shaped := shapeScoredNotes(nil, owner, 0.5, 10)
		assert.NotNil(t, shaped)
		assert.Empty(t, shaped)
	})
}

func TestCombineDraft(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		content  string
		expected string
	}{
		{"both", "Title", "Body", "Title\nBody"},
		{"title only", "Title", "  ", "Title"},
		{"content only", "", "Body", "Body"},
		{"neither", " ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CombineDraft(tt.title, tt.content))
		})
	}
}

// vectorDriver stubs the vector search path of store.Driver; everything else
// is unused by the similarity service.
type vectorDriver struct {
	store.Driver

	calls   []*store.VectorSearchOptions
	results []*store.ScoredNote
	err     error
}

func (d *vectorDriver) GetDB() *sql.DB { return nil }
func (d *vectorDriver) Close() error   { return nil }

func (d *vectorDriver) SearchNotesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredNote, error) {
	d.calls = append(d.calls, opts)
	return d.results, d.err
}

type fixedEmbedding struct {
	vector []float32
	texts  []string
	err    error
}

func (f *fixedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func (f *fixedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.vector
	}
	return vectors, f.err
}

func (f *fixedEmbedding) Dimensions() int { return len(f.vector) }

// gatedEmbedding blocks Embed until release is closed, signalling entry on
// started.
type gatedEmbedding struct {
	fixedEmbedding
	started chan struct{}
	release chan struct{}
}

func (g *gatedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fixedEmbedding.Embed(ctx, text)
}

func TestSimilarityServiceSearch(t *testing.T) {
	ctx := context.Background()
	owner := "u1"

	newService := func(driver *vectorDriver, embedding ai.EmbeddingService) SimilarityService {
		st := store.New(driver, &profile.Profile{})
		return NewSimilarityService(st, embedding, markdown.NewService(), "text-embedding-3-small")
	}

	t.Run("requires owner", func(t *testing.T) {
		svc := newService(&vectorDriver{}, &fixedEmbedding{vector: []float32{1, 0}})
		_, err := svc.Search(ctx, &SimilarityRequest{Query: "golang"})
		assert.ErrorIs(t, err, ErrMissingOwner)
	})

	t.Run("strips markdown before embedding", func(t *testing.T) {
		driver := &vectorDriver{}
		embedding := &fixedEmbedding{vector: []float32{1, 0}}
		svc := newService(driver, embedding)

		_, err := svc.Search(ctx, &SimilarityRequest{
			OwnerID: owner,
			Query:   "# Heading\n\nSome **bold** text",
			Limit:   5,
		})
		require.NoError(t, err)
		require.Len(t, embedding.texts, 1)
		assert.Equal(t, "Heading Some bold text", embedding.texts[0])
	})

	t.Run("markdown-only query short-circuits", func(t *testing.T) {
		driver := &vectorDriver{}
		embedding := &fixedEmbedding{vector: []float32{1, 0}}
		svc := newService(driver, embedding)

		results, err := svc.Search(ctx, &SimilarityRequest{OwnerID: owner, Query: "   \n\n   "})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Empty(t, embedding.texts, "no embedding call for effectively-empty text")
		assert.Empty(t, driver.calls)
	})

	t.Run("passes scope and floor to the store", func(t *testing.T) {
		driver := &vectorDriver{results: []*store.ScoredNote{scored("n1", owner, 0.8)}}
		embedding := &fixedEmbedding{vector: []float32{0.5, 0.5}}
		svc := newService(driver, embedding)

		results, err := svc.Search(ctx, &SimilarityRequest{
			OwnerID:  owner,
			Query:    "vector search",
			MinScore: 0.7,
			Limit:    3,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)

		require.Len(t, driver.calls, 1)
		call := driver.calls[0]
		assert.Equal(t, owner, call.OwnerID)
		assert.Equal(t, "text-embedding-3-small", call.Model)
		assert.Equal(t, float32(0.7), call.MinScore)
		assert.Equal(t, 3, call.Limit)
		assert.Equal(t, []float32{0.5, 0.5}, call.Vector)
	})

	t.Run("re-applies floor over store results", func(t *testing.T) {
		driver := &vectorDriver{results: []*store.ScoredNote{
			scored("keep", owner, 0.9),
			scored("drop", owner, 0.4),
		}}
		svc := newService(driver, &fixedEmbedding{vector: []float32{1, 0}})

		results, err := svc.Search(ctx, &SimilarityRequest{
			OwnerID:  owner,
			Query:    "floor",
			MinScore: 0.7,
			Limit:    10,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "keep", results[0].Note.UID)
	})

	t.Run("collapsed flight survives the first caller's cancellation", func(t *testing.T) {
		driver := &vectorDriver{results: []*store.ScoredNote{scored("n1", owner, 0.8)}}
		embedding := &gatedEmbedding{
			fixedEmbedding: fixedEmbedding{vector: []float32{1, 0}},
			started:        make(chan struct{}, 2),
			release:        make(chan struct{}),
		}
		svc := newService(driver, embedding)
		req := &SimilarityRequest{OwnerID: owner, Query: "shared flight", Limit: 5}

		firstCtx, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := svc.Search(firstCtx, req)
			firstErr <- err
		}()
		<-embedding.started

		// Cancel the caller that started the flight while it is still in
		// the provider. The caller returns; the flight keeps going.
		cancelFirst()
		require.ErrorIs(t, <-firstErr, context.Canceled)

		secondDone := make(chan struct{})
		var secondResults []*store.ScoredNote
		var secondErr error
		go func() {
			secondResults, secondErr = svc.Search(ctx, req)
			close(secondDone)
		}()

		close(embedding.release)
		<-secondDone
		require.NoError(t, secondErr, "a live caller must not inherit a dead caller's cancellation")
		require.Len(t, secondResults, 1)
		assert.Equal(t, "n1", secondResults[0].Note.UID)
	})

	t.Run("embedding failure surfaces", func(t *testing.T) {
		embedding := &fixedEmbedding{err: assert.AnError}
		svc := newService(&vectorDriver{}, embedding)

		_, err := svc.Search(ctx, &SimilarityRequest{OwnerID: owner, Query: "boom"})
		assert.Error(t, err)
	})
}
