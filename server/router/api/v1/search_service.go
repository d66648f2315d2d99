package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/suggest"
)

const (
	minSearchLimit     = 1
	maxSearchLimit     = 50
	defaultSearchLimit = 10
)

type SearchRequest struct {
	OwnerID string `json:"owner_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}

type ScoredNoteResponse struct {
	Note  *NoteResponse `json:"note"`
	Score float32       `json:"score"`
}

type SearchResponse struct {
	Results      []*ScoredNoteResponse `json:"results"`
	Count        int                   `json:"count"`
	SearchTimeMs int64                 `json:"search_time_ms"`
}

func (s *APIV1Service) SearchNotes(c echo.Context) error {
	if s.Similarity == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "semantic search requires AI configuration")
	}

	request := &SearchRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if request.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner id is required")
	}
	if strings.TrimSpace(request.Query) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "query cannot be empty")
	}

	limit := request.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < minSearchLimit || limit > maxSearchLimit {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "limit must be between 1 and 50")
	}

	start := time.Now()
	results, err := s.Similarity.Search(c.Request().Context(), &suggest.SimilarityRequest{
		OwnerID:  request.OwnerID,
		Query:    request.Query,
		MinScore: s.Streams.SearchMinScore,
		Limit:    limit,
	})
	if err != nil {
		if errors.Is(err, suggest.ErrMissingOwner) {
			return echo.NewHTTPError(http.StatusBadRequest, "owner id is required")
		}
		s.Exporter.RecordProviderError(suggest.StreamSearch)
		return echo.NewHTTPError(http.StatusBadGateway, "search provider failed").SetInternal(err)
	}

	response := &SearchResponse{
		Results:      make([]*ScoredNoteResponse, 0, len(results)),
		Count:        len(results),
		SearchTimeMs: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		response.Results = append(response.Results, &ScoredNoteResponse{
			Note:  convertNote(r.Note),
			Score: r.Score,
		})
	}
	return c.JSON(http.StatusOK, response)
}
