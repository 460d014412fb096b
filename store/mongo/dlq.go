package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
)

func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.dlq().InsertOne(ctx, toDLQModel(entry)); err != nil {
		return fmt.Errorf("formdispatch/mongo: push dlq: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	page := options.Find().
		SetSort(bson.D{{Key: "failed_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(max(opts.Offset, 0)))
	if opts.Limit > 0 {
		page.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.dlq().Find(ctx, dlqFilter(opts.FormID), page)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: list dlq: %w", err)
	}
	var models []dlqEntryModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: list dlq: %w", err)
	}

	out := make([]*dlq.Entry, len(models))
	for i := range models {
		if out[i], err = fromDLQModel(&models[i]); err != nil {
			return nil, fmt.Errorf("formdispatch/mongo: list dlq: %w", err)
		}
	}
	return out, nil
}

func dlqFilter(formID string) bson.D {
	if formID == "" {
		return bson.D{}
	}
	return bson.D{{Key: "form_id", Value: formID}}
}

func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	var m dlqEntryModel
	err := s.dlq().FindOne(ctx, bson.D{{Key: "_id", Value: entryID.String()}}).Decode(&m)
	switch {
	case isNoDocuments(err):
		return nil, formdispatch.ErrDLQNotFound
	case err != nil:
		return nil, fmt.Errorf("formdispatch/mongo: get dlq %s: %w", entryID, err)
	}
	return fromDLQModel(&m)
}

func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.dlq().UpdateByID(ctx, entryID.String(),
		bson.D{{Key: "$set", Value: bson.D{{Key: "replayed_at", Value: now()}}}})
	if err != nil {
		return fmt.Errorf("formdispatch/mongo: replay dlq %s: %w", entryID, err)
	}
	if res.MatchedCount == 0 {
		return formdispatch.ErrDLQNotFound
	}
	return nil
}

func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.dlq().DeleteMany(ctx,
		bson.D{{Key: "failed_at", Value: bson.D{{Key: "$lt", Value: before}}}})
	if err != nil {
		return 0, fmt.Errorf("formdispatch/mongo: purge dlq: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	n, err := s.dlq().CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("formdispatch/mongo: count dlq: %w", err)
	}
	return n, nil
}
