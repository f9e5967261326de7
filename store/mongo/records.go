package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

// AppendRecord persists a new delivery record.
func (s *Store) AppendRecord(ctx context.Context, r *delivery.Record) error {
	_, err := s.mdb.NewInsert(toRecordModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return herald.ErrRecordExists
		}

		return fmt.Errorf("herald/mongo: append record: %w", err)
	}

	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(ctx context.Context, recID id.ID) (*delivery.Record, error) {
	var m recordModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": recID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, herald.ErrRecordNotFound
		}

		return nil, fmt.Errorf("herald/mongo: get record: %w", err)
	}

	return fromRecordModel(&m)
}

// ListRecords returns a subscription's records, newest first.
func (s *Store) ListRecords(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []recordModel

	filter := bson.M{"subscription_id": subID.String()}
	if opts.Success != nil {
		filter["success"] = *opts.Success
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list records: %w", err)
	}

	result := make([]*delivery.Record, 0, len(models))

	for i := range models {
		r, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, r)
	}

	return result, nil
}
