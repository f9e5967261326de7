package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/signature"
)

// EventChecker reports whether an event name may be subscribed to.
type EventChecker interface {
	KnownEvent(ctx context.Context, name string) (bool, error)
}

// EventCheckerFunc adapts a function to EventChecker.
type EventCheckerFunc func(ctx context.Context, name string) (bool, error)

// KnownEvent calls f.
func (f EventCheckerFunc) KnownEvent(ctx context.Context, name string) (bool, error) {
	return f(ctx, name)
}

// Service provides subscription management operations. Configuration errors
// are rejected here so they never reach dispatch.
type Service struct {
	store  Store
	events EventChecker
	logger *slog.Logger
}

// NewService creates a new subscription service. A nil events checker
// accepts any event name.
func NewService(store Store, events EventChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		events: events,
		logger: logger,
	}
}

// Create validates and registers a new subscription. New subscriptions are active.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscription, error) {
	if in.UserID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	if err := svc.validateEvents(ctx, in.Events); err != nil {
		return nil, err
	}
	if err := validateHeaders(in.Headers); err != nil {
		return nil, err
	}

	retries := in.RetryCount
	if retries == 0 {
		retries = DefaultRetryCount
	}
	if err := validateRetryCount(retries); err != nil {
		return nil, err
	}

	timeout := in.TimeoutSeconds
	if timeout == 0 {
		timeout = DefaultTimeoutSeconds
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" && in.GenerateSecret {
		secret = signature.GenerateSecret()
	}

	sub := &Subscription{
		Entity:         entity.New(),
		ID:             id.NewSubscriptionID(),
		UserID:         in.UserID,
		Name:           in.Name,
		Description:    in.Description,
		URL:            in.URL,
		Secret:         secret,
		Headers:        in.Headers,
		Events:         dedupe(in.Events),
		RetryCount:     retries,
		TimeoutSeconds: timeout,
		Active:         true,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "subscription created",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"events", len(sub.Events),
	)

	return sub, nil
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// Update applies a partial update, validating every field it touches.
func (svc *Service) Update(ctx context.Context, subID id.ID, in UpdateInput) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		sub.URL = *in.URL
	}
	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.Description != nil {
		sub.Description = *in.Description
	}
	if in.Events != nil {
		if err := svc.validateEvents(ctx, in.Events); err != nil {
			return nil, err
		}
		sub.Events = dedupe(in.Events)
	}
	if in.Headers != nil {
		if err := validateHeaders(in.Headers); err != nil {
			return nil, err
		}
		sub.Headers = in.Headers
	}
	if in.RetryCount != nil {
		if err := validateRetryCount(*in.RetryCount); err != nil {
			return nil, err
		}
		sub.RetryCount = *in.RetryCount
	}
	if in.TimeoutSeconds != nil {
		if err := validateTimeout(*in.TimeoutSeconds); err != nil {
			return nil, err
		}
		sub.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}

	sub.Touch()
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// Delete removes a subscription.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	return svc.store.DeleteSubscription(ctx, subID)
}

// List returns subscriptions owned by a user.
func (svc *Service) List(ctx context.Context, userID string, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, userID, opts)
}

// SetActive enables or disables a subscription.
func (svc *Service) SetActive(ctx context.Context, subID id.ID, active bool) error {
	return svc.store.SetActive(ctx, subID, active)
}

// RotateSecret generates and stores a new signing secret.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID) (string, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return "", err
	}

	sub.Secret = signature.GenerateSecret()
	sub.Touch()
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}

	return sub.Secret, nil
}

// ClearSecret removes the signing secret; later deliveries are unsigned.
func (svc *Service) ClearSecret(ctx context.Context, subID id.ID) error {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	sub.Secret = ""
	sub.Touch()
	return svc.store.UpdateSubscription(ctx, sub)
}

func (svc *Service) validateEvents(ctx context.Context, events []string) error {
	if len(events) == 0 {
		return &ValidationError{Field: "events", Message: "at least one event required"}
	}
	for _, name := range events {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "events", Message: "event name must not be empty"}
		}
		if svc.events == nil {
			continue
		}
		known, err := svc.events.KnownEvent(ctx, name)
		if err != nil {
			return fmt.Errorf("check event %q: %w", name, err)
		}
		if !known {
			return &ValidationError{Field: "events", Message: "unknown event " + name}
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	return nil
}

func validateHeaders(h map[string]string) error {
	for name := range h {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "headers", Message: "header name must not be empty"}
		}
	}
	return nil
}

func validateRetryCount(n int) error {
	if n < MinRetryCount || n > MaxRetryCount {
		return &ValidationError{Field: "retry_count", Message: fmt.Sprintf("must be between %d and %d", MinRetryCount, MaxRetryCount)}
	}
	return nil
}

func validateTimeout(n int) error {
	if n < MinTimeoutSeconds || n > MaxTimeoutSeconds {
		return &ValidationError{Field: "timeout_seconds", Message: fmt.Sprintf("must be between %d and %d", MinTimeoutSeconds, MaxTimeoutSeconds)}
	}
	return nil
}

func dedupe(events []string) []string {
	out := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ValidationError indicates invalid subscription configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
