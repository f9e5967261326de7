package delivery

import (
	"context"

	"github.com/xraph/herald/id"
)

// Store defines the persistence contract for delivery records.
type Store interface {
	// AppendRecord persists a new record. Records are never updated.
	AppendRecord(ctx context.Context, r *Record) error

	// GetRecord returns a record by ID.
	GetRecord(ctx context.Context, recID id.ID) (*Record, error)

	// ListRecords returns the delivery history of a subscription, newest first.
	ListRecords(ctx context.Context, subID id.ID, opts ListOpts) ([]*Record, error)
}
