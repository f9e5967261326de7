package mongo

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

	ID            string            `grove:"id,pk"           bson:"_id"`
	Name          string            `grove:"name,unique"     bson:"name"`
	Description   string            `grove:"description"     bson:"description"`
	GroupName     string            `grove:"group_name"      bson:"group_name"`
	Schema        string            `grove:"schema"          bson:"schema,omitempty"`
	SchemaVersion string            `grove:"schema_version"  bson:"schema_version"`
	Version       string            `grove:"version"         bson:"version"`
	Example       string            `grove:"example"         bson:"example,omitempty"`
	IsDeprecated  bool              `grove:"is_deprecated"   bson:"is_deprecated"`
	DeprecatedAt  *time.Time        `grove:"deprecated_at"   bson:"deprecated_at,omitempty"`
	Metadata      map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        string(et.Definition.Schema),
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       string(et.Definition.Example),
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
			Schema:        rawOrNil(m.Schema),
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       rawOrNil(m.Example),
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     m.Metadata,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:herald_subscriptions"`

	ID               string            `grove:"id,pk"             bson:"_id"`
	UserID           string            `grove:"user_id"           bson:"user_id"`
	Name             string            `grove:"name"              bson:"name"`
	Description      string            `grove:"description"       bson:"description"`
	URL              string            `grove:"url"               bson:"url"`
	Secret           string            `grove:"secret"            bson:"secret"`
	Headers          map[string]string `grove:"headers"           bson:"headers,omitempty"`
	Events           []string          `grove:"events"            bson:"events"`
	RetryCount       int               `grove:"retry_count"       bson:"retry_count"`
	TimeoutSeconds   int               `grove:"timeout_seconds"   bson:"timeout_seconds"`
	Active           bool              `grove:"active"            bson:"active"`
	LastTriggeredAt  *time.Time        `grove:"last_triggered_at" bson:"last_triggered_at,omitempty"`
	LastStatusCode   int               `grove:"last_status_code"  bson:"last_status_code"`
	TotalDeliveries  int64             `grove:"total_deliveries"  bson:"total_deliveries"`
	FailedDeliveries int64             `grove:"failed_deliveries" bson:"failed_deliveries"`
	CreatedAt        time.Time         `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"        bson:"updated_at"`
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

	ID             string    `grove:"id,pk"            bson:"_id"`
	SubscriptionID string    `grove:"subscription_id"  bson:"subscription_id"`
	UserID         string    `grove:"user_id"          bson:"user_id"`
	DeliveryID     string    `grove:"delivery_id"      bson:"delivery_id"`
	EventType      string    `grove:"event_type"       bson:"event_type"`
	Payload        string    `grove:"payload"          bson:"payload"`
	ResponseStatus int       `grove:"response_status"  bson:"response_status"`
	ResponseBody   string    `grove:"response_body"    bson:"response_body,omitempty"`
	ResponseTimeMs int       `grove:"response_time_ms" bson:"response_time_ms"`
	Attempts       int       `grove:"attempts"         bson:"attempts"`
	Success        bool      `grove:"success"          bson:"success"`
	ErrorMessage   string    `grove:"error_message"    bson:"error_message,omitempty"`
	CreatedAt      time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toRecordModel(r *delivery.Record) *recordModel {
	return &recordModel{
		ID:             r.ID.String(),
		SubscriptionID: r.SubscriptionID.String(),
		UserID:         r.UserID,
		DeliveryID:     r.DeliveryID,
		EventType:      r.EventType,
		Payload:        string(r.Payload),
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
		Payload:        rawOrNil(m.Payload),
		ResponseStatus: m.ResponseStatus,
		ResponseBody:   m.ResponseBody,
		ResponseTimeMs: m.ResponseTimeMs,
		Attempts:       m.Attempts,
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
	}, nil
}

// Raw JSON is stored as a string so documents keep the exact bytes that
// were signed and sent.
func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
