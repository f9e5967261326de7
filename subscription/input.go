package subscription

// Input is the creation payload for subscriptions.
type Input struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`

	// Secret signs deliveries. Leave empty for unsigned deliveries, or set
	// GenerateSecret to have one created.
	Secret         string `json:"secret,omitempty"`
	GenerateSecret bool   `json:"generate_secret,omitempty"`

	Headers        map[string]string `json:"headers,omitempty"`
	Events         []string          `json:"events"`
	RetryCount     int               `json:"retry_count,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Name           *string           `json:"name,omitempty"`
	Description    *string           `json:"description,omitempty"`
	URL            *string           `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Events         []string          `json:"events,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	Active         *bool             `json:"active,omitempty"`
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
