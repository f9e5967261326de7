package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

// --- Event Type models ---

type eventTypeModel struct {
	grove.BaseModel `grove:"table:herald_event_types"`

	ID            string            `grove:"id,pk"`
	Name          string            `grove:"name,unique"`
	Description   string            `grove:"description"`
	GroupName     string            `grove:"group_name"`
	Schema        json.RawMessage   `grove:"schema,type:jsonb"`
	SchemaVersion string            `grove:"schema_version"`
	Version       string            `grove:"version"`
	Example       json.RawMessage   `grove:"example,type:jsonb"`
	IsDeprecated  bool              `grove:"is_deprecated"`
	DeprecatedAt  *time.Time        `grove:"deprecated_at"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        et.Definition.Schema,
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       et.Definition.Example,
		IsDeprecated:  et.IsDeprecated,
		DeprecatedAt:  et.DeprecatedAt,
		Metadata:      et.Metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.WebhookDefinition{
			Name:          m.Name,
			Description:   m.Description,
			Group:         m.GroupName,
			Schema:        m.Schema,
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     m.Metadata,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:herald_subscriptions"`

	ID               string            `grove:"id,pk"`
	UserID           string            `grove:"user_id"`
	Name             string            `grove:"name"`
	Description      string            `grove:"description"`
	URL              string            `grove:"url"`
	Secret           string            `grove:"secret"`
	Headers          map[string]string `grove:"headers,type:jsonb"`
	Events           []string          `grove:"events,array"`
	RetryCount       int               `grove:"retry_count"`
	TimeoutSeconds   int               `grove:"timeout_seconds"`
	Active           bool              `grove:"active"`
	LastTriggeredAt  *time.Time        `grove:"last_triggered_at"`
	LastStatusCode   int               `grove:"last_status_code"`
	TotalDeliveries  int64             `grove:"total_deliveries"`
	FailedDeliveries int64             `grove:"failed_deliveries"`
	CreatedAt        time.Time         `grove:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	headers := sub.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return &subscriptionModel{
		ID:               sub.ID.String(),
		UserID:           sub.UserID,
		Name:             sub.Name,
		Description:      sub.Description,
		URL:              sub.URL,
		Secret:           sub.Secret,
		Headers:          headers,
		Events:           sub.Events,
		RetryCount:       sub.RetryCount,
		TimeoutSeconds:   sub.TimeoutSeconds,
		Active:           sub.Active,
		LastTriggeredAt:  sub.LastTriggeredAt,
		LastStatusCode:   sub.LastStatusCode,
		TotalDeliveries:  sub.TotalDeliveries,
		FailedDeliveries: sub.FailedDeliveries,
		CreatedAt:        sub.CreatedAt,
		UpdatedAt:        sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               subID,
		UserID:           m.UserID,
		Name:             m.Name,
		Description:      m.Description,
		URL:              m.URL,
		Secret:           m.Secret,
		Headers:          m.Headers,
		Events:           m.Events,
		RetryCount:       m.RetryCount,
		TimeoutSeconds:   m.TimeoutSeconds,
		Active:           m.Active,
		LastTriggeredAt:  m.LastTriggeredAt,
		LastStatusCode:   m.LastStatusCode,
		TotalDeliveries:  m.TotalDeliveries,
		FailedDeliveries: m.FailedDeliveries,
	}, nil
}

// --- Delivery record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:herald_delivery_records"`

	ID             string          `grove:"id,pk"`
	SubscriptionID string          `grove:"subscription_id"`
	UserID         string          `grove:"user_id"`
	DeliveryID     string          `grove:"delivery_id"`
	EventType      string          `grove:"event_type"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	ResponseStatus int             `grove:"response_status"`
	ResponseBody   string          `grove:"response_body"`
	ResponseTimeMs int             `grove:"response_time_ms"`
	Attempts       int             `grove:"attempts"`
	Success        bool            `grove:"success"`
	ErrorMessage   string          `grove:"error_message"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toRecordModel(r *delivery.Record) *recordModel {
	return &recordModel{
		ID:             r.ID.String(),
		SubscriptionID: r.SubscriptionID.String(),
		UserID:         r.UserID,
		DeliveryID:     r.DeliveryID,
		EventType:      r.EventType,
		Payload:        r.Payload,
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   r.ResponseBody,
		ResponseTimeMs: r.ResponseTimeMs,
		Attempts:       r.Attempts,
		Success:        r.Success,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) (*delivery.Record, error) {
	recID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse record ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &delivery.Record{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             recID,
		SubscriptionID: subID,
		UserID:         m.UserID,
		DeliveryID:     m.DeliveryID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		ResponseStatus: m.ResponseStatus,
		ResponseBody:   m.ResponseBody,
		ResponseTimeMs: m.ResponseTimeMs,
		Attempts:       m.Attempts,
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
	}, nil
}
