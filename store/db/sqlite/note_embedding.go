package sqlite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/store"
)

// Vectors are stored as little-endian float32 BLOBs; similarity is computed
// in the application layer. This trades ANN indexing for zero operational
// dependencies, which is the right call for single-user instances.

// float32SliceToBlob converts a []float32 to its BLOB representation.
func float32SliceToBlob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Slice is the inverse of float32SliceToBlob.
func blobToFloat32Slice(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length: %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

func (d *DB) UpsertNoteEmbedding(ctx context.Context, embedding *store.NoteEmbedding) (*store.NoteEmbedding, error) {
	stmt := `
		INSERT INTO note_embedding (note_uid, model, embedding, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (note_uid, model)
		DO UPDATE SET
			embedding = excluded.embedding,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		embedding.NoteUID,
		embedding.Model,
		float32SliceToBlob(embedding.Embedding),
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert note embedding")
	}

	return embedding, nil
}

func (d *DB) DeleteNoteEmbedding(ctx context.Context, noteUID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM note_embedding WHERE note_uid = ?`, noteUID); err != nil {
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
		LEFT JOIN note_embedding e ON n.uid = e.note_uid AND e.model = ?
		WHERE e.id IS NULL
		ORDER BY n.created_ts DESC
		LIMIT ?
	`
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

// SearchNotesByVector loads the owner's embeddings and ranks them by cosine
// similarity in Go.
func (d *DB) SearchNotesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredNote, error) {
	query := `
		SELECT n.id, n.uid, n.owner_id, n.title, n.content, n.tags, n.created_ts, n.updated_ts, e.embedding
		FROM note n
		INNER JOIN note_embedding e ON n.uid = e.note_uid
		WHERE n.owner_id = ? AND e.model = ?
	`
	rows, err := d.db.QueryContext(ctx, query, opts.OwnerID, opts.Model)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search notes by vector")
	}
	defer rows.Close()

	results := []*store.ScoredNote{}
	for rows.Next() {
		var note store.Note
		var tagsJSON string
		var blob []byte
		if err := rows.Scan(
			&note.ID,
			&note.UID,
			&note.OwnerID,
			&note.Title,
			&note.Content,
			&tagsJSON,
			&note.CreatedTs,
			&note.UpdatedTs,
			&blob,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search candidate")
		}
		if err := json.Unmarshal([]byte(tagsJSON), &note.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal tags")
		}

		embedding, err := blobToFloat32Slice(blob)
		if err != nil {
			return nil, err
		}
		score := cosineSimilarity(opts.Vector, embedding)
		if score < opts.MinScore {
			continue
		}
		results = append(results, &store.ScoredNote{Note: &note, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
