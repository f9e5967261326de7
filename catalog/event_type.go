package catalog

import (
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// EventType is the persisted form of a WebhookDefinition.
type EventType struct {
	entity.Entity

	ID           id.ID             `json:"id"`
	Definition   WebhookDefinition `json:"definition"`
	IsDeprecated bool              `json:"deprecated"`
	DeprecatedAt *time.Time        `json:"deprecated_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for event type listing.
type ListOpts struct {
	Offset            int
	Limit             int
	Group             string
	IncludeDeprecated bool
}
