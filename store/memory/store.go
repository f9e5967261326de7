// Package memory provides an in-memory Store for tests and single-process use.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	heraldstore "github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// compile-time interface check.
var _ heraldstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Values are copied
// in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	eventTypes     map[string]*catalog.EventType         // keyed by name
	eventTypesByID map[string]*catalog.EventType         // keyed by ID string
	subscriptions  map[string]*subscription.Subscription // keyed by ID string
	records        map[string]*delivery.Record           // keyed by ID string
	recordsBySub   map[string][]*delivery.Record         // keyed by subscription ID, append order

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:     make(map[string]*catalog.EventType),
		eventTypesByID: make(map[string]*catalog.EventType),
		subscriptions:  make(map[string]*subscription.Subscription),
		records:        make(map[string]*delivery.Record),
		recordsBySub:   make(map[string][]*delivery.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return herald.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
// Re-registering a deprecated name revives it.
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.Metadata = maps.Clone(et.Metadata)
		existing.IsDeprecated = false
		existing.DeprecatedAt = nil
		existing.Touch()
		et.ID = existing.ID
		et.CreatedAt = existing.CreatedAt
		return nil
	}

	if et.ID.IsNil() {
		et.ID = id.NewEventTypeID()
	}
	if et.CreatedAt.IsZero() {
		et.Entity = entity.New()
	}

	cp := copyEventType(et)
	s.eventTypes[et.Definition.Name] = cp
	s.eventTypesByID[et.ID.String()] = cp
	return nil
}

// GetType returns an event type by name, including deprecated ones.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, herald.ErrEventTypeNotFound
	}
	return copyEventType(et), nil
}

// GetTypeByID returns an event type by its TypeID.
func (s *Store) GetTypeByID(_ context.Context, etID id.ID) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypesByID[etID.String()]
	if !ok {
		return nil, herald.ErrEventTypeNotFound
	}
	return copyEventType(et), nil
}

// ListTypes returns event types ordered by name.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*catalog.EventType
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, copyEventType(et))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteType deprecates an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return herald.ErrEventTypeNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sub.ID.String()
	if _, ok := s.subscriptions[key]; ok {
		return herald.ErrSubscriptionExists
	}
	s.subscriptions[key] = copySubscription(sub)
	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, herald.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

// UpdateSubscription replaces configuration fields, keeping the stored counters.
func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subscriptions[sub.ID.String()]
	if !ok {
		return herald.ErrSubscriptionNotFound
	}

	cp := copySubscription(sub)
	cp.CreatedAt = existing.CreatedAt
	cp.LastTriggeredAt = existing.LastTriggeredAt
	cp.LastStatusCode = existing.LastStatusCode
	cp.TotalDeliveries = existing.TotalDeliveries
	cp.FailedDeliveries = existing.FailedDeliveries
	s.subscriptions[sub.ID.String()] = cp
	return nil
}

// DeleteSubscription removes a subscription. Its records are kept.
func (s *Store) DeleteSubscription(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[subID.String()]; !ok {
		return herald.ErrSubscriptionNotFound
	}
	delete(s.subscriptions, subID.String())
	return nil
}

// ListSubscriptions returns a user's subscriptions, oldest first.
func (s *Store) ListSubscriptions(_ context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		result = append(result, copySubscription(sub))
	}

	sortSubscriptions(result)
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// FindActiveByUserAndEvent returns active subscriptions of userID containing event.
func (s *Store) FindActiveByUserAndEvent(_ context.Context, userID, event string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.Matches(userID, event) {
			result = append(result, copySubscription(sub))
		}
	}

	sortSubscriptions(result)
	return result, nil
}

// IncrementDeliveryCounters records one dispatch outcome.
func (s *Store) IncrementDeliveryCounters(_ context.Context, subID id.ID, statusCode int, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return herald.ErrSubscriptionNotFound
	}

	ts := at.UTC()
	sub.LastTriggeredAt = &ts
	sub.LastStatusCode = statusCode
	sub.TotalDeliveries++
	if !success {
		sub.FailedDeliveries++
	}
	return nil
}

// SetActive enables or disables a subscription.
func (s *Store) SetActive(_ context.Context, subID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return herald.ErrSubscriptionNotFound
	}
	sub.Active = active
	sub.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// AppendRecord persists a new delivery record.
func (s *Store) AppendRecord(_ context.Context, r *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return herald.ErrStoreClosed
	}
	key := r.ID.String()
	if _, ok := s.records[key]; ok {
		return herald.ErrRecordExists
	}

	cp := copyRecord(r)
	s.records[key] = cp
	subKey := r.SubscriptionID.String()
	s.recordsBySub[subKey] = append(s.recordsBySub[subKey], cp)
	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(_ context.Context, recID id.ID) (*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recID.String()]
	if !ok {
		return nil, herald.ErrRecordNotFound
	}
	return copyRecord(r), nil
}

// ListRecords returns a subscription's records, newest first.
func (s *Store) ListRecords(_ context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.recordsBySub[subID.String()]
	result := make([]*delivery.Record, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if opts.Success != nil && r.Success != *opts.Success {
			continue
		}
		result = append(result, copyRecord(r))
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

func copyEventType(et *catalog.EventType) *catalog.EventType {
	cp := *et
	cp.Metadata = maps.Clone(et.Metadata)
	return &cp
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	cp.Events = slices.Clone(sub.Events)
	cp.Headers = maps.Clone(sub.Headers)
	if sub.LastTriggeredAt != nil {
		ts := *sub.LastTriggeredAt
		cp.LastTriggeredAt = &ts
	}
	return &cp
}

func copyRecord(r *delivery.Record) *delivery.Record {
	cp := *r
	cp.Payload = slices.Clone(r.Payload)
	return &cp
}

func sortSubscriptions(subs []*subscription.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID.String() < subs[j].ID.String()
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
