package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Catalog is the cached service for managing webhook event types.
type Catalog struct {
	store    Store
	cache    map[string]cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
	logger   *slog.Logger
}

type cacheEntry struct {
	et       *EventType
	cachedAt time.Time
}

// Config configures the catalog service.
type Config struct {
	// CacheTTL bounds how long a cached entry is served. Zero caches forever.
	CacheTTL time.Duration
}

// NewCatalog creates a new Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    store,
		cache:    make(map[string]cacheEntry),
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

// RegisterType registers or updates an event type definition.
func (c *Catalog) RegisterType(ctx context.Context, def WebhookDefinition, opts ...RegisterOption) (*EventType, error) {
	ro := registerOptions{}
	for _, o := range opts {
		o(&ro)
	}

	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
		Metadata:   ro.metadata,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.put(et)
	c.logger.DebugContext(ctx, "event type registered", "event", def.Name)

	return et, nil
}

// RegisterOption configures RegisterType behavior.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	metadata map[string]string
}

// WithMetadata sets metadata on a registered event type.
func WithMetadata(m map[string]string) RegisterOption {
	return func(o *registerOptions) { o.metadata = m }
}

// GetType returns an event type by name, using the cache when the entry is fresh.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	entry, ok := c.cache[name]
	c.mu.RUnlock()
	if ok && !c.expired(entry) {
		return entry.et, nil
	}

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}

	c.put(et)
	return et, nil
}

// ListTypes returns registered event types.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// DeleteType deprecates an event type and evicts it from the cache.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	return nil
}

// InvalidateCache clears the cache, forcing fresh reads from the store.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// WarmCache preloads every non-deprecated type from the store.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{})
	if err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]cacheEntry, len(types))
	for _, et := range types {
		c.cache[et.Definition.Name] = cacheEntry{et: et, cachedAt: now}
	}
	return nil
}

func (c *Catalog) put(et *EventType) {
	c.mu.Lock()
	c.cache[et.Definition.Name] = cacheEntry{et: et, cachedAt: time.Now()}
	c.mu.Unlock()
}

func (c *Catalog) expired(e cacheEntry) bool {
	if c.cacheTTL == 0 {
		return false
	}
	return time.Since(e.cachedAt) > c.cacheTTL
}
