package catalog

import "encoding/json"

// WebhookDefinition describes one event type that subscriptions may filter on.
// Definitions are persisted and can be registered at boot or via the admin API.
type WebhookDefinition struct {
	// Name is the dot-separated event type name, e.g. "generation.completed".
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description"`

	// Group is an optional category, usually the resource segment of Name.
	Group string `json:"group,omitempty"`

	// Schema is an optional JSON Schema describing the "data" member of the
	// envelope. When set, Dispatch validates event data against it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// SchemaVersion tracks changes to the Schema itself.
	SchemaVersion string `json:"schema_version,omitempty"`

	// Version is the API version of this event type, e.g. "2025-01-01".
	Version string `json:"version"`

	// Example is an optional example payload for documentation and testing.
	Example json.RawMessage `json:"example,omitempty"`
}
