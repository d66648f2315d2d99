package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/store"
)

// DB is the PostgreSQL implementation of store.Driver. Vector search runs in
// the database through pgvector.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database using the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database with dsn: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. The pgvector extension must be installable by
// the connecting role; the embedding column dimension follows the configured
// embedding model.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS note (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_note_owner_id ON note (owner_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS note_embedding (
			id SERIAL PRIMARY KEY,
			note_uid TEXT NOT NULL REFERENCES note (uid) ON DELETE CASCADE,
			model TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE(note_uid, model)
		)`, d.profile.EmbeddingDimensions),
		`CREATE TABLE IF NOT EXISTS system_setting (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to execute migration")
		}
	}
	return nil
}

const schemaVersionSettingName = "schema_version"

func (d *DB) GetSchemaVersion(ctx context.Context) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		"SELECT value FROM system_setting WHERE name = $1",
		schemaVersionSettingName,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to get schema version")
	}
	return value, nil
}

func (d *DB) UpsertSchemaVersion(ctx context.Context, version string) error {
	stmt := `
		INSERT INTO system_setting (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := d.db.ExecContext(ctx, stmt, schemaVersionSettingName, version); err != nil {
		return errors.Wrap(err, "failed to upsert schema version")
	}
	return nil
}

// placeholder returns the positional parameter for index (1-based).
func placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
