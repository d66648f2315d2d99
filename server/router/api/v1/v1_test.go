package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindvault/mindvault/ai/tags"
	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/store"
	"github.com/mindvault/mindvault/store/db/sqlite"
	"github.com/mindvault/mindvault/suggest"
)

type stubSimilarity struct {
	results []*store.ScoredNote
	err     error
	last    *suggest.SimilarityRequest
}

func (s *stubSimilarity) Search(ctx context.Context, req *suggest.SimilarityRequest) ([]*store.ScoredNote, error) {
	s.last = req
	return s.results, s.err
}

type stubTagger struct {
	suggestions []tags.Suggestion
	err         error
}

func (s *stubTagger) Suggest(ctx context.Context, req *tags.SuggestRequest) ([]tags.Suggestion, error) {
	return s.suggestions, s.err
}

func newTestService(t *testing.T) (*APIV1Service, *echo.Echo) {
	t.Helper()

	p := &profile.Profile{
		Mode:           "dev",
		Driver:         "sqlite",
		DSN:            filepath.Join(t.TempDir(), "mindvault_test.db"),
		SearchMinScore: 0.5,
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = st.Close()
	})

	service := NewAPIV1Service(p, st)
	e := echo.New()
	service.Register(e)
	return service, e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateNoteEndpoint(t *testing.T) {
	_, e := newTestService(t)

	t.Run("creates note", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/notes",
			`{"owner_id": "u1", "title": "Hello", "content": "World", "tags": ["Go ", "go"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var note NoteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
		assert.NotEmpty(t, note.UID)
		assert.Equal(t, "u1", note.OwnerID)
		assert.Equal(t, []string{"go"}, note.Tags)
		assert.NotZero(t, note.CreatedTs)
	})

	t.Run("rejects empty note", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/notes",
			`{"owner_id": "u1", "title": " ", "content": ""}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/notes", `{"title": "orphan"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/notes", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListNotesEndpoint(t *testing.T) {
	service, e := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		_, err := service.Store.CreateNote(ctx, &store.Note{OwnerID: "u1", Title: title})
		require.NoError(t, err)
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/notes/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response ListNotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	assert.Len(t, response.Notes, 2)

	rec = doJSON(e, http.MethodGet, "/api/v1/notes/u1?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)

	rec = doJSON(e, http.MethodGet, "/api/v1/notes/u1?limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteNoteEndpoints(t *testing.T) {
	service, e := newTestService(t)
	ctx := context.Background()

	created, err := service.Store.CreateNote(ctx, &store.Note{OwnerID: "u1", Title: "Original"})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPatch, "/api/v1/notes/"+created.UID, `{"title": "Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var note NoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "Renamed", note.Title)

	rec = doJSON(e, http.MethodPatch, "/api/v1/notes/missing-uid", `{"title": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/notes/"+created.UID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	found, err := service.Store.GetNote(ctx, &store.FindNote{UID: &created.UID})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSearchEndpoint(t *testing.T) {
	t.Run("unavailable without AI", func(t *testing.T) {
		_, e := newTestService(t)
		rec := doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "golang"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("returns scored notes with timing", func(t *testing.T) {
		service, e := newTestService(t)
		stub := &stubSimilarity{results: []*store.ScoredNote{
			{Note: &store.Note{UID: "n1", OwnerID: "u1", Title: "match"}, Score: 0.9},
		}}
		service.Similarity = stub

		rec := doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "golang", "limit": 5}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var response SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, 1, response.Count)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "n1", response.Results[0].Note.UID)
		assert.InDelta(t, 0.9, float64(response.Results[0].Score), 1e-6)
		assert.GreaterOrEqual(t, response.SearchTimeMs, int64(0))

		assert.Equal(t, 5, stub.last.Limit)
		assert.Equal(t, float32(0.5), stub.last.MinScore)
	})

	t.Run("validates input", func(t *testing.T) {
		service, e := newTestService(t)
		service.Similarity = &stubSimilarity{}

		rec := doJSON(e, http.MethodPost, "/api/v1/search", `{"query": "golang"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "owner required")

		rec = doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "  "}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "query required")

		rec = doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "x", "limit": 51}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "limit clamp")

		rec = doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "x", "limit": -1}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("provider failure maps to bad gateway", func(t *testing.T) {
		service, e := newTestService(t)
		service.Similarity = &stubSimilarity{err: assert.AnError}

		rec := doJSON(e, http.MethodPost, "/api/v1/search", `{"owner_id": "u1", "query": "golang"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestSuggestTagsEndpoint(t *testing.T) {
	t.Run("unavailable without LLM", func(t *testing.T) {
		_, e := newTestService(t)
		rec := doJSON(e, http.MethodPost, "/api/v1/suggest-tags", `{"title": "t", "content": "c"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("returns suggestions", func(t *testing.T) {
		service, e := newTestService(t)
		service.Tagger = &stubTagger{suggestions: []tags.Suggestion{
			{Tag: "golang", Confidence: 0.95},
			{Tag: "testing", Confidence: 0.8},
		}}

		rec := doJSON(e, http.MethodPost, "/api/v1/suggest-tags", `{"title": "Table tests", "content": "testify"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var response SuggestTagsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, "golang", response.Suggestions[0].Tag)
	})

	t.Run("requires content", func(t *testing.T) {
		service, e := newTestService(t)
		service.Tagger = &stubTagger{}

		rec := doJSON(e, http.MethodPost, "/api/v1/suggest-tags", `{"title": " ", "content": ""}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("provider failure has no canned fallback", func(t *testing.T) {
		service, e := newTestService(t)
		service.Tagger = &stubTagger{err: assert.AnError}

		rec := doJSON(e, http.MethodPost, "/api/v1/suggest-tags", `{"title": "t", "content": "c"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
