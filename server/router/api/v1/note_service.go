package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mindvault/mindvault/store"
)

// defaultListLimit bounds unpaginated note listings.
const defaultListLimit = 50

type CreateNoteRequest struct {
	OwnerID string   `json:"owner_id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type UpdateNoteRequest struct {
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

type NoteResponse struct {
	UID       string   `json:"uid"`
	OwnerID   string   `json:"owner_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	CreatedTs int64    `json:"created_ts"`
	UpdatedTs int64    `json:"updated_ts"`
}

type ListNotesResponse struct {
	Notes []*NoteResponse `json:"notes"`
	Count int             `json:"count"`
}

func convertNote(note *store.Note) *NoteResponse {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	return &NoteResponse{
		UID:       note.UID,
		OwnerID:   note.OwnerID,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      tags,
		CreatedTs: note.CreatedTs,
		UpdatedTs: note.UpdatedTs,
	}
}

func (s *APIV1Service) CreateNote(c echo.Context) error {
	request := &CreateNoteRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	note := &store.Note{
		OwnerID: request.OwnerID,
		Title:   request.Title,
		Content: request.Content,
		Tags:    request.Tags,
	}
	// Validation failures are reported synchronously and distinctly from
	// storage failures.
	if err := note.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	created, err := s.Store.CreateNote(c.Request().Context(), note)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create note").SetInternal(err)
	}

	// Embedding indexing is out of band: creation never waits on the
	// embedding provider.
	if s.Indexer != nil {
		s.Indexer.EnqueueAsync(created)
	}

	return c.JSON(http.StatusCreated, convertNote(created))
}

func (s *APIV1Service) ListNotes(c echo.Context) error {
	ownerID := c.Param("ownerId")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner id is required")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	notes, err := s.Store.ListNotes(c.Request().Context(), &store.FindNote{
		OwnerID: &ownerID,
		Limit:   &limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list notes").SetInternal(err)
	}

	response := &ListNotesResponse{
		Notes: make([]*NoteResponse, 0, len(notes)),
		Count: len(notes),
	}
	for _, note := range notes {
		response.Notes = append(response.Notes, convertNote(note))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIV1Service) UpdateNote(c echo.Context) error {
	uid := c.Param("uid")
	request := &UpdateNoteRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	existing, err := s.Store.GetNote(c.Request().Context(), &store.FindNote{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to find note").SetInternal(err)
	}
	if existing == nil {
		return echo.NewHTTPError(http.StatusNotFound, "note not found")
	}

	updated, err := s.Store.UpdateNote(c.Request().Context(), &store.UpdateNote{
		UID:     uid,
		Title:   request.Title,
		Content: request.Content,
		Tags:    request.Tags,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update note").SetInternal(err)
	}

	// The stored embedding no longer matches the content.
	if s.Indexer != nil {
		s.Indexer.EnqueueAsync(updated)
	}

	return c.JSON(http.StatusOK, convertNote(updated))
}

func (s *APIV1Service) DeleteNote(c echo.Context) error {
	uid := c.Param("uid")
	if err := s.Store.DeleteNote(c.Request().Context(), &store.DeleteNote{UID: uid}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete note").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
