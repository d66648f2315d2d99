package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for accessing the database.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Schema version bookkeeping, used to refuse downgrades.
	GetSchemaVersion(ctx context.Context) (string, error)
	UpsertSchemaVersion(ctx context.Context, version string) error

	// Note model related methods.
	CreateNote(ctx context.Context, create *Note) (*Note, error)
	ListNotes(ctx context.Context, find *FindNote) ([]*Note, error)
	UpdateNote(ctx context.Context, update *UpdateNote) (*Note, error)
	DeleteNote(ctx context.Context, delete *DeleteNote) error

	// NoteEmbedding model related methods.
	UpsertNoteEmbedding(ctx context.Context, embedding *NoteEmbedding) (*NoteEmbedding, error)
	DeleteNoteEmbedding(ctx context.Context, noteUID string) error
	ListNotesWithoutEmbedding(ctx context.Context, find *FindNotesWithoutEmbedding) ([]*Note, error)
	SearchNotesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*ScoredNote, error)
}
