package subscription

import (
	"slices"
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Limits and defaults enforced at the creation boundary.
const (
	MinRetryCount     = 1
	MaxRetryCount     = 10
	DefaultRetryCount = 3

	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 60
	DefaultTimeoutSeconds = 30
)

// Subscription binds a target URL and an event filter for one user.
type Subscription struct {
	entity.Entity

	ID          id.ID  `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// URL receives the signed POST for every matching dispatch.
	URL string `json:"url"`

	// Secret signs payloads when non-empty. Never serialized.
	Secret string `json:"-"`

	// Headers are layered over the default delivery headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Events is the exact set of event names this subscription receives.
	Events []string `json:"events"`

	// RetryCount is the maximum number of delivery attempts per dispatch.
	RetryCount int `json:"retry_count"`

	// TimeoutSeconds bounds each delivery attempt.
	TimeoutSeconds int `json:"timeout_seconds"`

	Active bool `json:"active"`

	// Running counters, updated once per dispatch.
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	LastStatusCode   int        `json:"last_status_code,omitempty"`
	TotalDeliveries  int64      `json:"total_deliveries"`
	FailedDeliveries int64      `json:"failed_deliveries"`
}

// HasSecret reports whether deliveries are signed.
func (s *Subscription) HasSecret() bool { return s.Secret != "" }

// Subscribed reports whether event is a member of the subscription's event set.
func (s *Subscription) Subscribed(event string) bool {
	return slices.Contains(s.Events, event)
}

// Timeout returns the per-attempt deadline.
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Matches reports whether a dispatch of event for userID should reach s.
func (s *Subscription) Matches(userID, event string) bool {
	return s.Active && s.UserID == userID && s.Subscribed(event)
}
