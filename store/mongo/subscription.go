package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/herald"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/subscription"
)

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return herald.ErrSubscriptionExists
		}

		return fmt.Errorf("herald/mongo: create subscription: %w", err)
	}

	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, herald.ErrSubscriptionNotFound
		}

		return nil, fmt.Errorf("herald/mongo: get subscription: %w", err)
	}

	return fromSubscriptionModel(&m)
}

// UpdateSubscription writes the configuration fields. Counters are left
// to IncrementDeliveryCounters.
func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)

	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("description", m.Description).
		Set("url", m.URL).
		Set("secret", m.Secret).
		Set("headers", m.Headers).
		Set("events", m.Events).
		Set("retry_count", m.RetryCount).
		Set("timeout_seconds", m.TimeoutSeconds).
		Set("active", m.Active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: update subscription: %w", err)
	}

	if res.MatchedCount() == 0 {
		return herald.ErrSubscriptionNotFound
	}

	return nil
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: delete subscription: %w", err)
	}

	if res.DeletedCount() == 0 {
		return herald.ErrSubscriptionNotFound
	}

	return nil
}

// ListSubscriptions returns a user's subscriptions, oldest first.
func (s *Store) ListSubscriptions(ctx context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"user_id": userID}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list subscriptions: %w", err)
	}

	return fromSubscriptionModels(models)
}

// FindActiveByUserAndEvent matches event against the events array; Mongo
// treats equality on an array field as membership.
func (s *Store) FindActiveByUserAndEvent(ctx context.Context, userID, event string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id": userID,
			"active":  true,
			"events":  event,
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: find active: %w", err)
	}

	return fromSubscriptionModels(models)
}

// IncrementDeliveryCounters applies the outcome with $inc so concurrent
// dispatches never lose updates.
func (s *Store) IncrementDeliveryCounters(ctx context.Context, subID id.ID, statusCode int, success bool, at time.Time) error {
	inc := bson.M{"total_deliveries": int64(1)}
	if !success {
		inc["failed_deliveries"] = int64(1)
	}

	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		SetUpdate(bson.M{
			"$inc": inc,
			"$set": bson.M{
				"last_status_code":  statusCode,
				"last_triggered_at": at.UTC(),
			},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: increment counters: %w", err)
	}

	if res.MatchedCount() == 0 {
		return herald.ErrSubscriptionNotFound
	}

	return nil
}

// SetActive enables or disables a subscription.
func (s *Store) SetActive(ctx context.Context, subID id.ID, active bool) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: set active: %w", err)
	}

	if res.MatchedCount() == 0 {
		return herald.ErrSubscriptionNotFound
	}

	return nil
}

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, 0, len(models))

	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, sub)
	}

	return result, nil
}
