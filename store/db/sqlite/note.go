package sqlite

import (
	"context"
	"encoding/json"
	"strings"

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
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = ?"), append(args, *find.OwnerID)
	}

	query := `
		SELECT id, uid, owner_id, title, content, tags, created_ts, updated_ts
		FROM note
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
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
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.Content != nil {
		set, args = append(set, "content = ?"), append(args, *update.Content)
	}
	if update.Tags != nil {
		tagsJSON, err := json.Marshal(update.Tags)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal tags")
		}
		set, args = append(set, "tags = ?"), append(args, string(tagsJSON))
	}
	set, args = append(set, "updated_ts = ?"), append(args, update.UpdatedTs)
	args = append(args, update.UID)

	stmt := `
		UPDATE note
		SET ` + strings.Join(set, ", ") + `
		WHERE uid = ?
		RETURNING id, uid, owner_id, title, content, tags, created_ts, updated_ts
	`
	note, err := scanNote(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update note")
	}
	return note, nil
}

func (d *DB) DeleteNote(ctx context.Context, delete *store.DeleteNote) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM note WHERE uid = ?`, delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete note")
	}
	return nil
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
