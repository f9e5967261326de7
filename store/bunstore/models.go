package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

type eventTypeModel struct {
	bun.BaseModel `bun:"table:herald_event_types"`

	ID            string            `bun:"id,pk"`
	Name          string            `bun:"name,unique,notnull"`
	Description   string            `bun:"description,notnull"`
	GroupName     string            `bun:"group_name,notnull"`
	Schema        json.RawMessage   `bun:"schema,type:jsonb"`
	SchemaVersion string            `bun:"schema_version,notnull"`
	Version       string            `bun:"version,notnull"`
	Example       json.RawMessage   `bun:"example,type:jsonb"`
	IsDeprecated  bool              `bun:"is_deprecated,notnull"`
	DeprecatedAt  *time.Time        `bun:"deprecated_at"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt     time.Time         `bun:"created_at,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`
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
		Entity: entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     etID,
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

type subscriptionModel struct {
	bun.BaseModel `bun:"table:herald_subscriptions"`

	ID               string            `bun:"id,pk"`
	UserID           string            `bun:"user_id,notnull"`
	Name             string            `bun:"name,notnull"`
	Description      string            `bun:"description,notnull"`
	URL              string            `bun:"url,notnull"`
	Secret           string            `bun:"secret,notnull"`
	Headers          map[string]string `bun:"headers,type:jsonb"`
	Events           []string          `bun:"events,array"`
	RetryCount       int               `bun:"retry_count,notnull"`
	TimeoutSeconds   int               `bun:"timeout_seconds,notnull"`
	Active           bool              `bun:"active,notnull"`
	LastTriggeredAt  *time.Time        `bun:"last_triggered_at"`
	LastStatusCode   int               `bun:"last_status_code,notnull"`
	TotalDeliveries  int64             `bun:"total_deliveries,notnull"`
	FailedDeliveries int64             `bun:"failed_deliveries,notnull"`
	CreatedAt        time.Time         `bun:"created_at,notnull"`
	UpdatedAt        time.Time         `bun:"updated_at,notnull"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:               sub.ID.String(),
		UserID:           sub.UserID,
		Name:             sub.Name,
		Description:      sub.Description,
		URL:              sub.URL,
		Secret:           sub.Secret,
		Headers:          sub.Headers,
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
		Entity:           entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
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

type recordModel struct {
	bun.BaseModel `bun:"table:herald_delivery_records"`

	ID             string          `bun:"id,pk"`
	SubscriptionID string          `bun:"subscription_id,notnull"`
	UserID         string          `bun:"user_id,notnull"`
	DeliveryID     string          `bun:"delivery_id,notnull"`
	EventType      string          `bun:"event_type,notnull"`
	Payload        json.RawMessage `bun:"payload,type:jsonb"`
	ResponseStatus int             `bun:"response_status,notnull"`
	ResponseBody   string          `bun:"response_body,notnull"`
	ResponseTimeMs int             `bun:"response_time_ms,notnull"`
	Attempts       int             `bun:"attempts,notnull"`
	Success        bool            `bun:"success,notnull"`
	ErrorMessage   string          `bun:"error_message,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
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
		Entity:         entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
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
