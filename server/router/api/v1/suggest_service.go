package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mindvault/mindvault/ai/tags"
	"github.com/mindvault/mindvault/suggest"
)

type SuggestTagsRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	MaxTags int    `json:"max_tags"`
}

type SuggestTagsResponse struct {
	Suggestions []tags.Suggestion `json:"suggestions"`
	Count       int               `json:"count"`
}

type ReindexResponse struct {
	Enqueued int `json:"enqueued"`
}

func (s *APIV1Service) SuggestTags(c echo.Context) error {
	if s.Tagger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "tag suggestion requires LLM configuration")
	}

	request := &SuggestTagsRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if strings.TrimSpace(request.Title) == "" && strings.TrimSpace(request.Content) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "title or content is required")
	}

	suggestions, err := s.Tagger.Suggest(c.Request().Context(), &tags.SuggestRequest{
		Title:   request.Title,
		Content: request.Content,
		MaxTags: request.MaxTags,
	})
	if err != nil {
		// No canned fallback tags: the client shows the degraded state.
		s.Exporter.RecordProviderError(suggest.StreamTags)
		return echo.NewHTTPError(http.StatusBadGateway, "tag suggestion provider failed").SetInternal(err)
	}

	return c.JSON(http.StatusOK, &SuggestTagsResponse{
		Suggestions: suggestions,
		Count:       len(suggestions),
	})
}

// Reindex enqueues embedding generation for all notes missing one.
func (s *APIV1Service) Reindex(c echo.Context) error {
	if s.Indexer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reindex requires AI configuration")
	}

	enqueued, err := s.Indexer.Reindex(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reindex").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &ReindexResponse{Enqueued: enqueued})
}
