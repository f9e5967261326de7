package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/store/memory"
)

func ctx() context.Context { return context.Background() }

func newCatalog() *catalog.Catalog {
	s := memory.New()
	return catalog.NewCatalog(s, catalog.Config{CacheTTL: 30 * time.Second}, nil)
}

func TestCatalogRegisterAndGet(t *testing.T) {
	c := newCatalog()

	et, err := c.RegisterType(ctx(), catalog.WebhookDefinition{
		Name:        "generation.completed",
		Description: "Generation completed",
		Group:       "generation",
	})
	if err != nil {
		t.Fatal(err)
	}
	if et.ID.String() == "" {
		t.Fatal("expected non-empty ID")
	}

	got, err := c.GetType(ctx(), "generation.completed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Name != "generation.completed" {
		t.Fatalf("got %q", got.Definition.Name)
	}
}

func TestCatalogCacheHit(t *testing.T) {
	c := newCatalog()

	if _, err := c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "a.event"}); err != nil {
		t.Fatal(err)
	}

	got1, _ := c.GetType(ctx(), "a.event")
	got2, _ := c.GetType(ctx(), "a.event")

	if got1 != got2 {
		t.Fatal("expected cache hit (same pointer)")
	}
}

func TestCatalogCacheTTLExpiry(t *testing.T) {
	s := memory.New()
	c := catalog.NewCatalog(s, catalog.Config{CacheTTL: time.Millisecond}, nil)

	if _, err := c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "b.event", Description: "v1"}); err != nil {
		t.Fatal(err)
	}

	// Update behind the catalog's back.
	if err := s.RegisterType(ctx(), &catalog.EventType{
		Definition: catalog.WebhookDefinition{Name: "b.event", Description: "v2"},
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	got, err := c.GetType(ctx(), "b.event")
	if err != nil {
		t.Fatal("expected to re-read from store after TTL, got:", err)
	}
	if got.Definition.Description != "v2" {
		t.Fatalf("expected fresh read v2, got %q", got.Definition.Description)
	}
}

func TestCatalogGetNotFound(t *testing.T) {
	c := newCatalog()

	_, err := c.GetType(ctx(), "does.not.exist")
	if !errors.Is(err, herald.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestCatalogUpsert(t *testing.T) {
	c := newCatalog()

	if _, err := c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "testcase.created", Description: "v1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "testcase.created", Description: "v2"}); err != nil {
		t.Fatal(err)
	}

	got, _ := c.GetType(ctx(), "testcase.created")
	if got.Definition.Description != "v2" {
		t.Fatalf("expected v2, got %q", got.Definition.Description)
	}
}

func TestCatalogDeleteDeprecates(t *testing.T) {
	c := newCatalog()

	_, _ = c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "x.event"})

	if err := c.DeleteType(ctx(), "x.event"); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetType(ctx(), "x.event")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeprecated {
		t.Fatal("expected deprecated event type after delete")
	}

	list, err := c.ListTypes(ctx(), catalog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected deprecated type hidden from listing, got %d", len(list))
	}
}

func TestCatalogInvalidateCache(t *testing.T) {
	c := newCatalog()

	_, _ = c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "cached.event"})
	_, _ = c.GetType(ctx(), "cached.event")

	c.InvalidateCache()

	if _, err := c.GetType(ctx(), "cached.event"); err != nil {
		t.Fatal(err)
	}
}

func TestCatalogRegisterWithMetadata(t *testing.T) {
	c := newCatalog()

	et, err := c.RegisterType(ctx(), catalog.WebhookDefinition{Name: "meta.event"},
		catalog.WithMetadata(map[string]string{"key": "value"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if et.Metadata["key"] != "value" {
		t.Fatal("expected metadata")
	}
}

func TestCatalogRegisterDefaults(t *testing.T) {
	c := newCatalog()

	if err := c.RegisterDefaults(ctx()); err != nil {
		t.Fatal(err)
	}

	list, err := c.ListTypes(ctx(), catalog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != len(catalog.DefaultDefinitions()) {
		t.Fatalf("expected %d types, got %d", len(catalog.DefaultDefinitions()), len(list))
	}

	got, err := c.GetType(ctx(), catalog.EventGenerationCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Group != "generation" {
		t.Fatalf("expected group generation, got %q", got.Definition.Group)
	}
}

func TestCatalogWarmCache(t *testing.T) {
	s := memory.New()
	if err := s.RegisterType(ctx(), &catalog.EventType{
		Definition: catalog.WebhookDefinition{Name: "warm.event"},
	}); err != nil {
		t.Fatal(err)
	}

	c := catalog.NewCatalog(s, catalog.Config{}, nil)
	if err := c.WarmCache(ctx()); err != nil {
		t.Fatal(err)
	}

	got1, _ := c.GetType(ctx(), "warm.event")
	got2, _ := c.GetType(ctx(), "warm.event")
	if got1 == nil || got1 != got2 {
		t.Fatal("expected warmed entry to be served from cache")
	}
}
