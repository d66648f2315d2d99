// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/store"
	"github.com/mindvault/mindvault/store/db/postgres"
	"github.com/mindvault/mindvault/store/db/sqlite"
)

// NewDBDriver creates a new DB driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver: %s", profile.Driver)
	}
}
