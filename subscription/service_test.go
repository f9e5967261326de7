package subscription_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/herald"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/subscription"
)

func ctx() context.Context { return context.Background() }

var knownEvents = subscription.EventCheckerFunc(func(_ context.Context, name string) (bool, error) {
	switch name {
	case "generation.completed", "generation.failed", "testcase.created":
		return true, nil
	}
	return false, nil
})

func newService() *subscription.Service {
	return subscription.NewService(memory.New(), knownEvents, nil)
}

func validInput() subscription.Input {
	return subscription.Input{
		UserID: "user-1",
		URL:    "https://example.com/webhook",
		Events: []string{"generation.completed"},
	}
}

func TestServiceCreateDefaults(t *testing.T) {
	svc := newService()

	sub, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if sub.ID.Prefix() != id.PrefixSubscription {
		t.Fatalf("expected %s prefix, got %q", id.PrefixSubscription, sub.ID.Prefix())
	}
	if !sub.Active {
		t.Fatal("expected active by default")
	}
	if sub.RetryCount != subscription.DefaultRetryCount {
		t.Fatalf("expected default retry count, got %d", sub.RetryCount)
	}
	if sub.TimeoutSeconds != subscription.DefaultTimeoutSeconds {
		t.Fatalf("expected default timeout, got %d", sub.TimeoutSeconds)
	}
	if sub.HasSecret() {
		t.Fatal("expected no secret unless requested")
	}
	if sub.TotalDeliveries != 0 || sub.FailedDeliveries != 0 || sub.LastTriggeredAt != nil {
		t.Fatal("expected zeroed counters")
	}
}

func TestServiceCreateGeneratesSecret(t *testing.T) {
	svc := newService()

	in := validInput()
	in.GenerateSecret = true
	sub, err := svc.Create(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sub.Secret, "whsec_") {
		t.Fatalf("expected generated secret, got %q", sub.Secret)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*subscription.Input)
	}{
		{"missing user", "user_id", func(in *subscription.Input) { in.UserID = "" }},
		{"missing url", "url", func(in *subscription.Input) { in.URL = "" }},
		{"relative url", "url", func(in *subscription.Input) { in.URL = "/hooks" }},
		{"ftp url", "url", func(in *subscription.Input) { in.URL = "ftp://example.com/x" }},
		{"no events", "events", func(in *subscription.Input) { in.Events = nil }},
		{"unknown event", "events", func(in *subscription.Input) { in.Events = []string{"invoice.paid"} }},
		{"retry too high", "retry_count", func(in *subscription.Input) { in.RetryCount = 11 }},
		{"retry negative", "retry_count", func(in *subscription.Input) { in.RetryCount = -1 }},
		{"timeout too high", "timeout_seconds", func(in *subscription.Input) { in.TimeoutSeconds = 61 }},
		{"empty header name", "headers", func(in *subscription.Input) { in.Headers = map[string]string{" ": "x"} }},
	}

	svc := newService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)

			_, err := svc.Create(ctx(), in)
			var verr *subscription.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestServiceCreateDedupesEvents(t *testing.T) {
	svc := newService()

	in := validInput()
	in.Events = []string{"generation.completed", "generation.completed", "generation.failed"}
	sub, err := svc.Create(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Events) != 2 {
		t.Fatalf("expected 2 distinct events, got %v", sub.Events)
	}
}

func TestServiceGetUpdateDelete(t *testing.T) {
	svc := newService()

	sub, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/webhook" {
		t.Fatalf("got URL %q", got.URL)
	}

	desc := "Updated description"
	retries := 5
	updated, err := svc.Update(ctx(), sub.ID, subscription.UpdateInput{
		Description: &desc,
		RetryCount:  &retries,
		Events:      []string{"testcase.created"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != desc || updated.RetryCount != 5 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.Subscribed("testcase.created") || updated.Subscribed("generation.completed") {
		t.Fatalf("expected events replaced, got %v", updated.Events)
	}

	if err := svc.Delete(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Get(ctx(), sub.ID)
	if !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
}

func TestServiceUpdateRejectsInvalid(t *testing.T) {
	svc := newService()

	sub, _ := svc.Create(ctx(), validInput())

	bad := "not a url"
	_, err := svc.Update(ctx(), sub.ID, subscription.UpdateInput{URL: &bad})
	var verr *subscription.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got, _ := svc.Get(ctx(), sub.ID)
	if got.URL != "https://example.com/webhook" {
		t.Fatal("invalid update must not be persisted")
	}
}

func TestServiceList(t *testing.T) {
	svc := newService()

	for range 3 {
		_, _ = svc.Create(ctx(), validInput())
	}
	other := validInput()
	other.UserID = "user-2"
	_, _ = svc.Create(ctx(), other)

	list, err := svc.List(ctx(), "user-1", subscription.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
}

func TestServiceSetActive(t *testing.T) {
	svc := newService()

	sub, _ := svc.Create(ctx(), validInput())

	if err := svc.SetActive(ctx(), sub.ID, false); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx(), sub.ID)
	if got.Active {
		t.Fatal("expected inactive")
	}
}

func TestServiceRotateAndClearSecret(t *testing.T) {
	svc := newService()

	in := validInput()
	in.Secret = "whsec_original"
	sub, _ := svc.Create(ctx(), in)

	newSecret, err := svc.RotateSecret(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newSecret == "whsec_original" || !strings.HasPrefix(newSecret, "whsec_") {
		t.Fatalf("unexpected rotated secret %q", newSecret)
	}

	got, _ := svc.Get(ctx(), sub.ID)
	if got.Secret != newSecret {
		t.Fatal("secret not persisted after rotation")
	}

	if err := svc.ClearSecret(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.Get(ctx(), sub.ID)
	if got.HasSecret() {
		t.Fatal("expected secret cleared")
	}
}

func TestServiceRotateSecretNotFound(t *testing.T) {
	svc := newService()

	_, err := svc.RotateSecret(ctx(), id.NewSubscriptionID())
	if !errors.Is(err, herald.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestSubscriptionMatches(t *testing.T) {
	sub := &subscription.Subscription{
		UserID: "u1",
		Events: []string{"generation.completed"},
		Active: true,
	}

	if !sub.Matches("u1", "generation.completed") {
		t.Fatal("expected match")
	}
	if sub.Matches("u2", "generation.completed") {
		t.Fatal("other user must not match")
	}
	if sub.Matches("u1", "generation.failed") {
		t.Fatal("unsubscribed event must not match")
	}
	sub.Active = false
	if sub.Matches("u1", "generation.completed") {
		t.Fatal("inactive subscription must not match")
	}
}
