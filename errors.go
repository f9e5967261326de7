package herald

import (
	"errors"

	"github.com/xraph/herald/queue"
)

// Sentinel errors returned by Herald operations.
var (
	// ErrNoStore is returned when a Herald is created without a store.
	ErrNoStore = errors.New("herald: store is required")

	// ErrInvalidDispatch is returned when Dispatch is called without a user or event.
	ErrInvalidDispatch = errors.New("herald: user and event are required")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("herald: event type not found")

	// ErrEventTypeDeprecated is returned when dispatching an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("herald: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("herald: payload validation failed")

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = errors.New("herald: subscription not found")

	// ErrSubscriptionExists is returned when creating a subscription whose ID is taken.
	ErrSubscriptionExists = errors.New("herald: subscription already exists")

	// ErrRecordNotFound is returned when a delivery record cannot be found.
	ErrRecordNotFound = errors.New("herald: delivery record not found")

	// ErrRecordExists is returned when appending a record whose ID is taken.
	ErrRecordExists = errors.New("herald: delivery record already exists")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("herald: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("herald: migration failed")

	// ErrQueueClosed is returned by Dispatch once the dispatch queue is closed.
	ErrQueueClosed = queue.ErrClosed
)
