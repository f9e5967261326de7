package delivery

import (
	"encoding/json"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Record is the append-only outcome of one dispatch to one subscription.
// Exactly one record is written per dispatch, never one per attempt.
type Record struct {
	entity.Entity

	ID             id.ID  `json:"id"`
	SubscriptionID id.ID  `json:"subscription_id"`
	UserID         string `json:"user_id"`

	// DeliveryID is the X-Herald-Delivery value shared by every attempt.
	DeliveryID string `json:"delivery_id"`

	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`

	// ResponseStatus is the status of the deciding attempt, 0 when no
	// attempt produced a response.
	ResponseStatus int    `json:"response_status,omitempty"`
	ResponseBody   string `json:"response_body,omitempty"`
	ResponseTimeMs int    `json:"response_time_ms"`

	Attempts     int    `json:"attempts"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ListOpts configures filtering and pagination for record listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Success *bool
}
