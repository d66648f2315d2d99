package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/internal/version"
	"github.com/mindvault/mindvault/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Per-owner note list cache, invalidated on any note mutation.
	noteListCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:        driver,
		profile:       profile,
		cacheConfig:   cacheConfig,
		noteListCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate brings the schema up to date. It refuses to run against a
// database last written by a newer release: the schema may contain changes
// this build does not understand.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return err
	}

	current := version.GetCurrentVersion(s.profile.Mode)
	recorded, err := s.driver.GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if recorded != "" && !version.IsVersionGreaterOrEqualThan(current, recorded) {
		return errors.Errorf("database schema version %s is newer than server version %s, refusing to start", recorded, current)
	}
	if recorded == current {
		return nil
	}
	return s.driver.UpsertSchemaVersion(ctx, current)
}

func (s *Store) Close() error {
	s.noteListCache.Close()
	return s.driver.Close()
}

// CreateNote validates and persists a note, assigning its UID and timestamps.
// Validation failures are returned synchronously, before any other work.
// Embedding indexing is not performed here; the caller hands the created note
// to the indexer out of band so note creation never blocks on the embedding
// provider.
func (s *Store) CreateNote(ctx context.Context, create *Note) (*Note, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	create.UID = shortuuid.New()
	create.CreatedTs = now
	create.UpdatedTs = now
	create.Tags = NormalizeTags(create.Tags)

	note, err := s.driver.CreateNote(ctx, create)
	if err != nil {
		return nil, err
	}
	s.noteListCache.Delete(noteListCacheKey(note.OwnerID))
	return note, nil
}

// GetNote returns the single note matching find, or nil when absent.
func (s *Store) GetNote(ctx context.Context, find *FindNote) (*Note, error) {
	limit := 1
	find.Limit = &limit
	notes, err := s.driver.ListNotes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}
	return notes[0], nil
}

// ListNotes lists notes matching find. Plain per-owner listings are cached.
func (s *Store) ListNotes(ctx context.Context, find *FindNote) ([]*Note, error) {
	cacheable := find.OwnerID != nil && find.ID == nil && find.UID == nil && find.Limit == nil
	if cacheable {
		if cached, ok := s.noteListCache.Get(noteListCacheKey(*find.OwnerID)); ok {
			return cached.([]*Note), nil
		}
	}

	notes, err := s.driver.ListNotes(ctx, find)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.noteListCache.Set(noteListCacheKey(*find.OwnerID), notes, 0)
	}
	return notes, nil
}

func (s *Store) UpdateNote(ctx context.Context, update *UpdateNote) (*Note, error) {
	if update.Tags != nil {
		update.Tags = NormalizeTags(update.Tags)
	}
	update.UpdatedTs = time.Now().Unix()

	note, err := s.driver.UpdateNote(ctx, update)
	if err != nil {
		return nil, err
	}
	s.noteListCache.Delete(noteListCacheKey(note.OwnerID))
	return note, nil
}

func (s *Store) DeleteNote(ctx context.Context, delete *DeleteNote) error {
	note, err := s.GetNote(ctx, &FindNote{UID: &delete.UID})
	if err != nil {
		return err
	}
	if err := s.driver.DeleteNote(ctx, delete); err != nil {
		return err
	}
	if err := s.driver.DeleteNoteEmbedding(ctx, delete.UID); err != nil {
		return err
	}
	if note != nil {
		s.noteListCache.Delete(noteListCacheKey(note.OwnerID))
	}
	return nil
}

func (s *Store) UpsertNoteEmbedding(ctx context.Context, embedding *NoteEmbedding) (*NoteEmbedding, error) {
	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now
	return s.driver.UpsertNoteEmbedding(ctx, embedding)
}

func (s *Store) ListNotesWithoutEmbedding(ctx context.Context, find *FindNotesWithoutEmbedding) ([]*Note, error) {
	return s.driver.ListNotesWithoutEmbedding(ctx, find)
}

// SearchNotesByVector performs owner-scoped similarity search.
func (s *Store) SearchNotesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*ScoredNote, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.SearchNotesByVector(ctx, opts)
}

func noteListCacheKey(ownerID string) string {
	return "notes:" + ownerID
}
