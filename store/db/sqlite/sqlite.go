package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/store"
)

// SQLite is supported for development and single-user instances. Vector
// search is computed in the application layer (see note_embedding.go), which
// is fine at personal-notes scale but does not use an ANN index.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database at the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode prevents most reader/writer locking issues; the busy
	// timeout covers the rest.
	dsn := profile.DSN + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// A single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS note (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_note_owner_id ON note (owner_id)`,
		`CREATE TABLE IF NOT EXISTS note_embedding (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_uid TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE(note_uid, model)
		)`,
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
		"SELECT value FROM system_setting WHERE name = ?",
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
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`
	if _, err := d.db.ExecContext(ctx, stmt, schemaVersionSettingName, version); err != nil {
		return errors.Wrap(err, "failed to upsert schema version")
	}
	return nil
}
