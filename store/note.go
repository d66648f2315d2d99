package store

import (
	"strings"

	"github.com/pkg/errors"
)

// Note is a user-authored unit of content.
type Note struct {
	// UID is the opaque public identifier, assigned on creation.
	UID     string
	OwnerID string
	Title   string
	Content string
	// Tags holds lowercase, trimmed, non-empty strings in insertion order.
	Tags      []string
	CreatedTs int64
	UpdatedTs int64
	// ID is the internal row identifier.
	ID int32
}

// ErrEmptyNote is returned when a note has neither title nor content.
var ErrEmptyNote = errors.New("note must have a title or content")

// Validate checks invariants that must hold before a note is persisted.
func (n *Note) Validate() error {
	if n.OwnerID == "" {
		return errors.New("note owner is required")
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
		return ErrEmptyNote
	}
	return nil
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates
// while preserving insertion order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return normalized
}

// FindNote is the find condition for notes.
type FindNote struct {
	ID      *int32
	UID     *string
	OwnerID *string
	Limit   *int
}

// UpdateNote is the update payload for a note. Nil fields are left unchanged.
type UpdateNote struct {
	UID       string
	Title     *string
	Content   *string
	Tags      []string
	UpdatedTs int64
}

// DeleteNote is the delete condition for a note.
type DeleteNote struct {
	UID string
}

// ScoredNote wraps a retrieved note with its similarity score.
// Within one result list, entries are sorted descending by score and no
// note appears twice.
type ScoredNote struct {
	Note *Note
	// Score is cosine similarity, expected in [0,1]; higher is more similar.
	Score float32
}

// NoteEmbedding is the vector embedding of a note. It is owned by the
// indexing path; nothing else mutates it.
type NoteEmbedding struct {
	ID        int32
	NoteUID   string
	Model     string
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

// FindNotesWithoutEmbedding is the find condition for notes pending indexing.
type FindNotesWithoutEmbedding struct {
	Model string
	Limit int
}

// VectorSearchOptions are the options for note vector search.
// Every search is scoped to a single owner; a missing owner is a contract
// violation, not an empty filter.
type VectorSearchOptions struct {
	OwnerID  string
	Model    string
	Vector   []float32
	Limit    int
	MinScore float32
}

// Validate validates the VectorSearchOptions and applies defaults.
func (o *VectorSearchOptions) Validate() error {
	if o.OwnerID == "" {
		return errors.New("owner id is required for vector search")
	}
	if len(o.Vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return errors.Errorf("min score out of range: %f", o.MinScore)
	}
	return nil
}
