package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

// InsertResponse persists a new response.
func (s *Store) InsertResponse(ctx context.Context, r *response.Response) error {
	if _, err := s.responses().InsertOne(ctx, toResponseModel(r)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return formdispatch.ErrResponseAlreadyExists
		}
		return fmt.Errorf("formdispatch/mongo: insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID.
func (s *Store) GetResponse(ctx context.Context, responseID id.ID) (*response.Response, error) {
	var m responseModel
	err := s.responses().FindOne(ctx, bson.M{"_id": responseID.Int64()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, formdispatch.ErrResponseNotFound
		}
		return nil, fmt.Errorf("formdispatch/mongo: get response: %w", err)
	}
	return fromResponseModel(&m)
}

// FindUnprocessed returns up to limit unprocessed responses with
// lo <= _id <= hi in ascending order.
func (s *Store) FindUnprocessed(ctx context.Context, lo, hi id.ID, limit int) ([]*response.Response, error) {
	filter := bson.M{
		"processed": false,
		"_id":       bson.M{"$gte": lo.Int64(), "$lte": hi.Int64()},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	return s.findResponses(ctx, "find unprocessed", filter, findOpts)
}

// MarkProcessed flips processed to true. A response that is already
// processed reports true; a missing one reports false.
func (s *Store) MarkProcessed(ctx context.Context, responseID id.ID) (bool, error) {
	res, err := s.responses().UpdateOne(ctx,
		bson.M{"_id": responseID.Int64(), "processed": false},
		bson.M{"$set": bson.M{"processed": true}},
	)
	if err != nil {
		return false, fmt.Errorf("formdispatch/mongo: mark processed: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := s.responses().CountDocuments(ctx, bson.M{"_id": responseID.Int64()})
	if err != nil {
		return false, fmt.Errorf("formdispatch/mongo: mark processed lookup: %w", err)
	}
	return n > 0, nil
}

// MaxResponseID returns the greatest _id in [lo, hi].
func (s *Store) MaxResponseID(ctx context.Context, lo, hi id.ID) (id.ID, bool, error) {
	var m struct {
		ID int64 `bson:"_id"`
	}
	err := s.responses().FindOne(ctx,
		bson.M{"_id": bson.M{"$gte": lo.Int64(), "$lte": hi.Int64()}},
		options.FindOne().
			SetSort(bson.D{{Key: "_id", Value: -1}}).
			SetProjection(bson.M{"_id": 1}),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return id.Nil, false, nil
		}
		return id.Nil, false, fmt.Errorf("formdispatch/mongo: max response id: %w", err)
	}
	return id.ID(uint64(m.ID)), true, nil
}

// ListResponsesByForm returns a form's responses in ID order.
func (s *Store) ListResponsesByForm(ctx context.Context, formID string, opts response.ListOpts) ([]*response.Response, error) {
	return s.findResponses(ctx, "list responses by form", bson.M{"formId": formID}, listOptions(opts))
}

// ListResponsesByOwner returns an owner's responses in ID order.
func (s *Store) ListResponsesByOwner(ctx context.Context, owner string, opts response.ListOpts) ([]*response.Response, error) {
	return s.findResponses(ctx, "list responses by owner", bson.M{"owner": owner}, listOptions(opts))
}

func listOptions(opts response.ListOpts) *options.FindOptionsBuilder {
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	return findOpts
}

func (s *Store) findResponses(ctx context.Context, op string, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*response.Response, error) {
	cursor, err := s.responses().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: %s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var models []responseModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: %s decode: %w", op, err)
	}

	out := make([]*response.Response, 0, len(models))
	for i := range models {
		r, err := fromResponseModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
