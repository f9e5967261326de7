package subscription

import (
	"context"
	"time"

	"github.com/xraph/herald/id"
)

// Store defines the persistence contract for webhook subscriptions.
type Store interface {
	// CreateSubscription persists a new subscription.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription replaces the configuration of an existing subscription.
	// Running counters are not written by this call.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes a subscription.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions owned by a user.
	ListSubscriptions(ctx context.Context, userID string, opts ListOpts) ([]*Subscription, error)

	// FindActiveByUserAndEvent returns the active subscriptions of userID whose
	// event set contains event. This is the dispatch hot path.
	FindActiveByUserAndEvent(ctx context.Context, userID, event string) ([]*Subscription, error)

	// IncrementDeliveryCounters records the outcome of one dispatch: it sets
	// the last-triggered time and status code, increments total deliveries
	// and, when success is false, failed deliveries.
	IncrementDeliveryCounters(ctx context.Context, subID id.ID, statusCode int, success bool, at time.Time) error

	// SetActive enables or disables a subscription without deleting it.
	SetActive(ctx context.Context, subID id.ID, active bool) error
}
