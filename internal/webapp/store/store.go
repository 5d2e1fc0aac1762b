package store

import (
	"context"

	"github.com/aussiebroadwan/webauth/pkg/credcache"
)

// Store is the root data access interface. Drivers (sqlite) implement it
// and expose the repositories the services need.
type Store interface {
	Credentials() credcache.Repository

	ApplyMigrations() error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}
