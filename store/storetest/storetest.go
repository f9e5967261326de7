// Package storetest holds the behavioural contract every store.Store backend
// must satisfy. Backend packages call Run from their own tests.
//
// The suite only touches rows it creates itself, with user IDs and event
// names unique to the run, so it is safe against a shared database.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// Factory returns a migrated store ready for use. It is called once per
// subtest and should register any cleanup on t.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against the stores built by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Ping", testPing},
		{"CatalogCRUD", testCatalogCRUD},
		{"ListTypes", testListTypes},
		{"SubscriptionCRUD", testSubscriptionCRUD},
		{"UpdateKeepsCounters", testUpdateKeepsCounters},
		{"FindActiveByUserAndEvent", testFindActiveByUserAndEvent},
		{"ListSubscriptions", testListSubscriptions},
		{"IncrementDeliveryCounters", testIncrementDeliveryCounters},
		{"IncrementDeliveryCountersConcurrent", testIncrementDeliveryCountersConcurrent},
		{"Records", testRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func ctx() context.Context { return context.Background() }

// unique returns a run-scoped token usable in user IDs and event names.
func unique() string {
	s := id.NewSubscriptionID().String()
	return s[strings.LastIndexByte(s, '_')+1:]
}

// NewSubscription returns an active subscription fixture.
func NewSubscription(userID string, events ...string) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:         entity.New(),
		ID:             id.NewSubscriptionID(),
		UserID:         userID,
		URL:            "https://example.com/hook",
		Events:         events,
		RetryCount:     3,
		TimeoutSeconds: 10,
		Active:         true,
	}
}

// NewRecord returns a delivery record fixture for subID.
func NewRecord(subID id.ID, success bool) *delivery.Record {
	return &delivery.Record{
		Entity:         entity.New(),
		ID:             id.NewRecordID(),
		SubscriptionID: subID,
		UserID:         "u1",
		DeliveryID:     "5f0c8e8e-0000-4000-8000-000000000000",
		EventType:      "generation.completed",
		Payload:        json.RawMessage(`{"event":"generation.completed"}`),
		ResponseStatus: 200,
		Attempts:       1,
		Success:        success,
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
}

func testCatalogCRUD(t *testing.T, s store.Store) {
	group := "g" + unique()
	name := group + ".completed"

	et := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.WebhookDefinition{
			Name:        name,
			Description: "Generation completed",
			Group:       group,
			Version:     catalog.DefaultVersion,
			Schema:      json.RawMessage(`{"type":"object"}`),
		},
	}
	if err := s.RegisterType(ctx(), et); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetType(ctx(), name)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != et.ID.String() || got.Definition.Group != group {
		t.Fatalf("GetType = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not persisted")
	}

	byID, err := s.GetTypeByID(ctx(), et.ID)
	if err != nil || byID.Definition.Name != name {
		t.Fatalf("GetTypeByID: %v", err)
	}

	// Re-registering by name updates the definition in place.
	again := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.WebhookDefinition{Name: name, Description: "v2", Group: group},
	}
	if err := s.RegisterType(ctx(), again); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetType(ctx(), name)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != et.ID.String() {
		t.Fatalf("upsert replaced ID %s with %s", et.ID, got.ID)
	}
	if got.Definition.Description != "v2" {
		t.Fatalf("description = %q, want v2", got.Definition.Description)
	}

	if err := s.DeleteType(ctx(), name); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetType(ctx(), name)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeprecated || got.DeprecatedAt == nil {
		t.Fatal("expected deprecated")
	}

	if _, err := s.GetType(ctx(), group+".missing"); !errors.Is(err, herald.ErrEventTypeNotFound) {
		t.Fatalf("GetType missing: %v", err)
	}
	if err := s.DeleteType(ctx(), group+".missing"); !errors.Is(err, herald.ErrEventTypeNotFound) {
		t.Fatalf("DeleteType missing: %v", err)
	}
}

func testListTypes(t *testing.T, s store.Store) {
	group := "g" + unique()
	for _, suffix := range []string{"created", "started", "failed"} {
		et := &catalog.EventType{
			Entity:     entity.New(),
			ID:         id.NewEventTypeID(),
			Definition: catalog.WebhookDefinition{Name: group + "." + suffix, Group: group},
		}
		if err := s.RegisterType(ctx(), et); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteType(ctx(), group+".failed"); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListTypes(ctx(), catalog.ListOpts{Group: group, IncludeDeprecated: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].Definition.Name != group+".created" || all[1].Definition.Name != group+".failed" {
		t.Fatalf("expected name ordering, got %q, %q", all[0].Definition.Name, all[1].Definition.Name)
	}

	active, err := s.ListTypes(ctx(), catalog.ListOpts{Group: group})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("deprecated type listed: %d", len(active))
	}

	page, err := s.ListTypes(ctx(), catalog.ListOpts{Group: group, IncludeDeprecated: true, Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Definition.Name != group+".failed" {
		t.Fatalf("unexpected page %v", page)
	}
}

func testSubscriptionCRUD(t *testing.T, s store.Store) {
	sub := NewSubscription("u"+unique(), "generation.completed", "generation.failed")
	sub.Headers = map[string]string{"X-Team": "core"}

	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(ctx(), sub); !errors.Is(err, herald.ErrSubscriptionExists) {
		t.Fatalf("expected ErrSubscriptionExists, got %v", err)
	}

	got, err := s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != sub.UserID || len(got.Events) != 2 || got.Headers["X-Team"] != "core" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if !got.Active || got.RetryCount != 3 || got.TimeoutSeconds != 10 {
		t.Fatalf("round trip lost settings: %+v", got)
	}

	got.URL = "https://example.com/other"
	if err := s.UpdateSubscription(ctx(), got); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/other" {
		t.Fatal("update not applied")
	}

	if err := s.DeleteSubscription(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSubscription(ctx(), sub.ID); !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if err := s.UpdateSubscription(ctx(), sub); !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if err := s.SetActive(ctx(), sub.ID, true); !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("SetActive missing: %v", err)
	}
}

func testUpdateKeepsCounters(t *testing.T, s store.Store) {
	sub := NewSubscription("u"+unique(), "generation.completed")
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementDeliveryCounters(ctx(), sub.ID, 200, true, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	// sub still has zero counters; updating with it must not reset them.
	sub.Name = "renamed"
	if err := s.UpdateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalDeliveries != 1 || got.Name != "renamed" {
		t.Fatalf("counters lost on update: %+v", got)
	}
}

func testFindActiveByUserAndEvent(t *testing.T, s store.Store) {
	u1, u2 := "u"+unique(), "u"+unique()

	match := NewSubscription(u1, "generation.completed", "generation.failed")
	otherEvent := NewSubscription(u1, "testcase.created")
	otherUser := NewSubscription(u2, "generation.completed")
	inactive := NewSubscription(u1, "generation.completed")
	inactive.Active = false

	for _, sub := range []*subscription.Subscription{match, otherEvent, otherUser, inactive} {
		if err := s.CreateSubscription(ctx(), sub); err != nil {
			t.Fatal(err)
		}
	}

	found, err := s.FindActiveByUserAndEvent(ctx(), u1, "generation.completed")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID.String() != match.ID.String() {
		t.Fatalf("expected only the matching subscription, got %d", len(found))
	}

	// Exact membership, no prefix matching.
	found, err = s.FindActiveByUserAndEvent(ctx(), u1, "generation")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatal("partial event names must not match")
	}

	if err := s.SetActive(ctx(), inactive.ID, true); err != nil {
		t.Fatal(err)
	}
	found, err = s.FindActiveByUserAndEvent(ctx(), u1, "generation.completed")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected re-activated subscription, got %d", len(found))
	}
}

func testListSubscriptions(t *testing.T, s store.Store) {
	u1 := "u" + unique()
	for range 3 {
		if err := s.CreateSubscription(ctx(), NewSubscription(u1, "a.b")); err != nil {
			t.Fatal(err)
		}
	}
	off := NewSubscription(u1, "a.b")
	off.Active = false
	if err := s.CreateSubscription(ctx(), off); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(ctx(), NewSubscription("u"+unique(), "a.b")); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListSubscriptions(ctx(), u1, subscription.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4, got %d", len(all))
	}

	active := true
	onlyActive, err := s.ListSubscriptions(ctx(), u1, subscription.ListOpts{Active: &active})
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyActive) != 3 {
		t.Fatalf("expected 3 active, got %d", len(onlyActive))
	}

	page, err := s.ListSubscriptions(ctx(), u1, subscription.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}

func testIncrementDeliveryCounters(t *testing.T, s store.Store) {
	sub := NewSubscription("u"+unique(), "a.b")
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	steps := []struct {
		status  int
		success bool
		at      time.Time
	}{
		{200, true, at},
		{500, false, at.Add(time.Minute)},
		{0, false, at.Add(2 * time.Minute)},
	}
	for _, st := range steps {
		if err := s.IncrementDeliveryCounters(ctx(), sub.ID, st.status, st.success, st.at); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalDeliveries != 3 || got.FailedDeliveries != 2 {
		t.Fatalf("total=%d failed=%d", got.TotalDeliveries, got.FailedDeliveries)
	}
	if got.LastStatusCode != 0 || got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at.Add(2*time.Minute)) {
		t.Fatalf("unexpected last fields %+v", got)
	}

	if err := s.IncrementDeliveryCounters(ctx(), id.NewSubscriptionID(), 200, true, at); !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func testIncrementDeliveryCountersConcurrent(t *testing.T, s store.Store) {
	sub := NewSubscription("u"+unique(), "a.b")
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.IncrementDeliveryCounters(ctx(), sub.ID, 200, i%2 == 0, time.Now().UTC()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalDeliveries != 50 || got.FailedDeliveries != 25 {
		t.Fatalf("lost increments: total=%d failed=%d", got.TotalDeliveries, got.FailedDeliveries)
	}
}

func testRecords(t *testing.T, s store.Store) {
	subID := id.NewSubscriptionID()
	base := time.Now().UTC().Truncate(time.Second)

	first := NewRecord(subID, true)
	first.CreatedAt, first.UpdatedAt = base, base
	second := NewRecord(subID, false)
	second.CreatedAt, second.UpdatedAt = base.Add(time.Second), base.Add(time.Second)
	other := NewRecord(id.NewSubscriptionID(), true)

	for _, r := range []*delivery.Record{first, second, other} {
		if err := s.AppendRecord(ctx(), r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendRecord(ctx(), first); !errors.Is(err, herald.ErrRecordExists) {
		t.Fatalf("records are append-only, got %v", err)
	}

	got, err := s.GetRecord(ctx(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeliveryID != first.DeliveryID || got.ResponseStatus != 200 || !got.Success {
		t.Fatalf("GetRecord = %+v", got)
	}
	if _, err := s.GetRecord(ctx(), id.NewRecordID()); !errors.Is(err, herald.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	list, err := s.ListRecords(ctx(), subID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID.String() != second.ID.String() {
		t.Fatal("expected newest-first records for the subscription")
	}

	failed := false
	onlyFailed, err := s.ListRecords(ctx(), subID, delivery.ListOpts{Success: &failed})
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].Success {
		t.Fatal("success filter not applied")
	}
}
