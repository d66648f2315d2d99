package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/store"
)

func (d *DB) CreateNote(ctx context.Context, create *store.Note) (*store.Note, error) {
	tagsJSON, err := json.Marshal(create.Tags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tags")
	}

	stmt := `
		INSERT INTO note (uid, owner_id, title, content, tags, created_ts, updated_ts)
		VALUES (` + placeholders(7) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.OwnerID,
		create.Title,
		create.Content,
		string(tagsJSON),
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create note")
	}

	return create, nil
}

func (d *DB) ListNotes(ctx context.Context, find *store.FindNote) ([]*store.Note, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}

	query := `
		SELECT id, uid, owner_id, title, content, tags, created_ts, updated_ts
		FROM note
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notes")
	}
	defer rows.Close()

	list := []*store.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, note)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateNote(ctx context.Context, update *store.UpdateNote) (*store.Note, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.Tags != nil {
		tagsJSON, err := json.Marshal(update.Tags)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal tags")
		}
		set, args = append(set, "tags = "+placeholder(len(args)+1)), append(args, string(tagsJSON))
	}
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, update.UpdatedTs)

	stmt := `
		UPDATE note
		SET ` + strings.Join(set, ", ") + `
		WHERE uid = ` + placeholder(len(args)+1) + `
		RETURNING id, uid, owner_id, title, content, tags, created_ts, updated_ts
	`
	args = append(args, update.UID)

	note, err := scanNote(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update note")
	}
	return note, nil
}

func (d *DB) DeleteNote(ctx context.Context, delete *store.DeleteNote) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM note WHERE uid = `+placeholder(1), delete.UID)
	if err != nil {
		return errors.Wrap(err, "failed to delete note")
	}
	if _, err := result.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (d *DB) UpsertNoteEmbedding(ctx context.Context, embedding *store.NoteEmbedding) (*store.NoteEmbedding, error) {
	stmt := `
		INSERT INTO note_embedding (note_uid, model, embedding, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (note_uid, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	if err := d.db.QueryRowContext(ctx, stmt,
		embedding.NoteUID,
		embedding.Model,
		vector,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert note embedding")
	}

	return embedding, nil
}

func (d *DB) DeleteNoteEmbedding(ctx context.Context, noteUID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM note_embedding WHERE note_uid = `+placeholder(1), noteUID); err != nil {
		return errors.Wrap(err, "failed to delete note embedding")
	}
	return nil
}

func (d *DB) ListNotesWithoutEmbedding(ctx context.Context, find *store.FindNotesWithoutEmbedding) ([]*store.Note, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT n.id, n.uid, n.owner_id, n.title, n.content, n.tags, n.created_ts, n.updated_ts
		FROM note n
		LEFT JOIN note_embedding e ON n.uid = e.note_uid AND e.model = ` + placeholder(1) + `
		WHERE e.id IS NULL
		ORDER BY n.created_ts DESC
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notes without embedding")
	}
	defer rows.Close()

	list := []*store.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, note)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchNotesByVector performs vector similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by distance ASC yields most similar first.
func (d *DB) SearchNotesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredNote, error) {
	vector := pgvector.NewVector(opts.Vector)

	query := `
		SELECT
			n.id, n.uid, n.owner_id, n.title, n.content, n.tags, n.created_ts, n.updated_ts,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM note n
		INNER JOIN note_embedding e ON n.uid = e.note_uid
		WHERE n.owner_id = ` + placeholder(2) + `
			AND e.model = ` + placeholder(3) + `
			AND 1 - (e.embedding <=> ` + placeholder(4) + `) >= ` + placeholder(5) + `
		ORDER BY e.embedding <=> ` + placeholder(6) + `
		LIMIT ` + placeholder(7)

	rows, err := d.db.QueryContext(ctx, query,
		vector, opts.OwnerID, opts.Model, vector, opts.MinScore, vector, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search notes by vector")
	}
	defer rows.Close()

	results := []*store.ScoredNote{}
	for rows.Next() {
		var note store.Note
		var tagsJSON string
		var scored store.ScoredNote
		if err := rows.Scan(
			&note.ID,
			&note.UID,
			&note.OwnerID,
			&note.Title,
			&note.Content,
			&tagsJSON,
			&note.CreatedTs,
			&note.UpdatedTs,
			&scored.Score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		if err := json.Unmarshal([]byte(tagsJSON), &note.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal tags")
		}
		scored.Note = &note
		results = append(results, &scored)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*store.Note, error) {
	var note store.Note
	var tagsJSON string
	if err := row.Scan(
		&note.ID,
		&note.UID,
		&note.OwnerID,
		&note.Title,
		&note.Content,
		&tagsJSON,
		&note.CreatedTs,
		&note.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan note")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &note.Tags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tags")
	}
	return &note, nil
}
