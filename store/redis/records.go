package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// recordModel is the JSON representation stored in Redis.
type recordModel struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	UserID         string          `json:"user_id"`
	DeliveryID     string          `json:"delivery_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	ResponseStatus int             `json:"response_status"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ResponseTimeMs int             `json:"response_time_ms"`
	Attempts       int             `json:"attempts"`
	Success        bool            `json:"success"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
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

func (s *Store) AppendRecord(ctx context.Context, r *delivery.Record) error {
	m := toRecordModel(r)
	key := entityKey(prefixRecord, m.ID)

	var existing recordModel
	if err := s.getEntity(ctx, key, &existing); err == nil {
		return herald.ErrRecordExists
	} else if !isNotFound(err) {
		return fmt.Errorf("herald/redis: append record lookup: %w", err)
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("herald/redis: append record: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zRecordSub+m.SubscriptionID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("herald/redis: append record indexes: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, recID id.ID) (*delivery.Record, error) {
	var m recordModel
	if err := s.getEntity(ctx, entityKey(prefixRecord, recID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, herald.ErrRecordNotFound
		}
		return nil, fmt.Errorf("herald/redis: get record: %w", err)
	}
	return fromRecordModel(&m)
}

func (s *Store) ListRecords(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	ids, err := s.rdb.ZRevRange(ctx, zRecordSub+subID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list records: %w", err)
	}

	result := make([]*delivery.Record, 0, len(ids))
	for _, entryID := range ids {
		var m recordModel
		if err := s.getEntity(ctx, entityKey(prefixRecord, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Success != nil && m.Success != *opts.Success {
			continue
		}
		r, err := fromRecordModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
