// Package store defines the composite Store interface for all Herald persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so a single backend serves the catalog, the subscriptions
// and the delivery records.
package store

import (
	"context"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	subscription.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
