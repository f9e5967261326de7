package catalog

import (
	"context"
	"encoding/json"
	"strings"
)

// Event names emitted by the test-generation product.
const (
	EventGenerationStarted   = "generation.started"
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
	EventTestCaseCreated     = "testcase.created"
	EventTestCaseUpdated     = "testcase.updated"
	EventTestCaseDeleted     = "testcase.deleted"
	EventTestCaseExported    = "testcase.exported"
	EventProjectCreated      = "project.created"
	EventProjectDeleted      = "project.deleted"
	EventIntegrationSynced   = "integration.synced"
	EventIntegrationFailed   = "integration.failed"

	// EventWebhookTest is sent by the "test subscription" operation.
	EventWebhookTest = "webhook.test"
)

// DefaultVersion is the API version stamped on the default taxonomy.
const DefaultVersion = "2025-01-01"

// DefaultDefinitions returns the built-in event taxonomy.
func DefaultDefinitions() []WebhookDefinition {
	defs := []WebhookDefinition{
		{Name: EventGenerationStarted, Description: "A test case generation job started."},
		{Name: EventGenerationCompleted, Description: "A test case generation job finished successfully.",
			Example: json.RawMessage(`{"generation_id":"gen_123","test_cases":12}`)},
		{Name: EventGenerationFailed, Description: "A test case generation job failed."},
		{Name: EventTestCaseCreated, Description: "A test case was created."},
		{Name: EventTestCaseUpdated, Description: "A test case was updated."},
		{Name: EventTestCaseDeleted, Description: "A test case was deleted."},
		{Name: EventTestCaseExported, Description: "Test cases were exported to an integration."},
		{Name: EventProjectCreated, Description: "A project was created."},
		{Name: EventProjectDeleted, Description: "A project was deleted."},
		{Name: EventIntegrationSynced, Description: "An integration finished syncing."},
		{Name: EventIntegrationFailed, Description: "An integration sync failed."},
		{Name: EventWebhookTest, Description: "A test delivery requested by the subscription owner.",
			Example: json.RawMessage(`{"message":"This is a test webhook"}`)},
	}
	for i := range defs {
		defs[i].Group = GroupOf(defs[i].Name)
		defs[i].Version = DefaultVersion
	}
	return defs
}

// RegisterDefaults registers every definition of DefaultDefinitions.
func (c *Catalog) RegisterDefaults(ctx context.Context) error {
	for _, def := range DefaultDefinitions() {
		if _, err := c.RegisterType(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// GroupOf returns the resource segment of an event name.
func GroupOf(name string) string {
	group, _, _ := strings.Cut(name, ".")
	return group
}
