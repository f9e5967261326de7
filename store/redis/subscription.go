package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

// subscriptionModel is the JSON representation stored in Redis. Counters
// are kept in the stats hash, not in the document.
type subscriptionModel struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Headers        map[string]string `json:"headers,omitempty"`
	Events         []string          `json:"events"`
	RetryCount     int               `json:"retry_count"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:             sub.ID.String(),
		UserID:         sub.UserID,
		Name:           sub.Name,
		Description:    sub.Description,
		URL:            sub.URL,
		Secret:         sub.Secret,
		Headers:        sub.Headers,
		Events:         sub.Events,
		RetryCount:     sub.RetryCount,
		TimeoutSeconds: sub.TimeoutSeconds,
		Active:         sub.Active,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel, stats map[string]string) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	sub := &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             subID,
		UserID:         m.UserID,
		Name:           m.Name,
		Description:    m.Description,
		URL:            m.URL,
		Secret:         m.Secret,
		Headers:        m.Headers,
		Events:         m.Events,
		RetryCount:     m.RetryCount,
		TimeoutSeconds: m.TimeoutSeconds,
		Active:         m.Active,
	}
	if err := applyStats(sub, stats); err != nil {
		return nil, fmt.Errorf("decode stats of %s: %w", m.ID, err)
	}
	return sub, nil
}

func applyStats(sub *subscription.Subscription, stats map[string]string) error {
	var err error
	if v, ok := stats[fieldTotal]; ok {
		if sub.TotalDeliveries, err = strconv.ParseInt(v, 10, 64); err != nil {
			return err
		}
	}
	if v, ok := stats[fieldFailed]; ok {
		if sub.FailedDeliveries, err = strconv.ParseInt(v, 10, 64); err != nil {
			return err
		}
	}
	if v, ok := stats[fieldLastStatus]; ok {
		if sub.LastStatusCode, err = strconv.Atoi(v); err != nil {
			return err
		}
	}
	if v, ok := stats[fieldLastTrigger]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return err
		}
		sub.LastTriggeredAt = &t
	}
	return nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	key := entityKey(prefixSubscription, m.ID)

	var existing subscriptionModel
	if err := s.getEntity(ctx, key, &existing); err == nil {
		return herald.ErrSubscriptionExists
	} else if !isNotFound(err) {
		return fmt.Errorf("herald/redis: create subscription lookup: %w", err)
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("herald/redis: create subscription: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zSubscriptionUs+m.UserID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("herald/redis: create subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	sub, err := s.loadSubscription(ctx, subID.String())
	if err != nil {
		if isNotFound(err) {
			return nil, herald.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("herald/redis: get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	key := entityKey(prefixSubscription, sub.ID.String())

	var existing subscriptionModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isNotFound(err) {
			return herald.ErrSubscriptionNotFound
		}
		return fmt.Errorf("herald/redis: update subscription get: %w", err)
	}

	m := toSubscriptionModel(sub)
	m.UserID = existing.UserID
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("herald/redis: update subscription: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	key := entityKey(prefixSubscription, subID.String())

	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return herald.ErrSubscriptionNotFound
		}
		return fmt.Errorf("herald/redis: delete subscription get: %w", err)
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("herald/redis: delete subscription: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zSubscriptionUs+m.UserID, m.ID)
	pipe.Del(ctx, statsKey(m.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: delete subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	subs, err := s.userSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(subs))
	for _, sub := range subs {
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		result = append(result, sub)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// FindActiveByUserAndEvent walks the user's index and filters in process.
// Users hold few subscriptions, so a per-event index is not maintained.
func (s *Store) FindActiveByUserAndEvent(ctx context.Context, userID, event string) ([]*subscription.Subscription, error) {
	subs, err := s.userSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: find active: %w", err)
	}

	var result []*subscription.Subscription
	for _, sub := range subs {
		if sub.Matches(userID, event) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (s *Store) IncrementDeliveryCounters(ctx context.Context, subID id.ID, statusCode int, success bool, at time.Time) error {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID.String()), &m); err != nil {
		if isNotFound(err) {
			return herald.ErrSubscriptionNotFound
		}
		return fmt.Errorf("herald/redis: increment counters get: %w", err)
	}

	key := statsKey(m.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldTotal, 1)
	if !success {
		pipe.HIncrBy(ctx, key, fieldFailed, 1)
	}
	pipe.HSet(ctx, key,
		fieldLastStatus, statusCode,
		fieldLastTrigger, at.UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: increment counters: %w", err)
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, subID id.ID, active bool) error {
	key := entityKey(prefixSubscription, subID.String())

	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return herald.ErrSubscriptionNotFound
		}
		return fmt.Errorf("herald/redis: set active get: %w", err)
	}

	m.Active = active
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("herald/redis: set active: %w", err)
	}
	return nil
}

func (s *Store) userSubscriptions(ctx context.Context, userID string) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriptionUs+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0, len(ids))
	for _, entryID := range ids {
		sub, err := s.loadSubscription(ctx, entryID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) loadSubscription(ctx context.Context, subID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
		return nil, err
	}
	stats, err := s.rdb.HGetAll(ctx, statsKey(subID)).Result()
	if err != nil {
		return nil, err
	}
	return fromSubscriptionModel(&m, stats)
}
