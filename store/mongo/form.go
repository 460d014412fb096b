package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/form"
)

// GetForm retrieves a form by ID.
func (s *Store) GetForm(ctx context.Context, formID string) (*form.Form, error) {
	var m formModel
	if err := s.forms().FindOne(ctx, bson.M{"_id": formID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, formdispatch.ErrFormNotFound
		}
		return nil, fmt.Errorf("formdispatch/mongo: get form: %w", err)
	}
	return fromFormModel(&m)
}

// SaveForm creates or replaces a form.
func (s *Store) SaveForm(ctx context.Context, f *form.Form) error {
	m, err := toFormModel(f)
	if err != nil {
		return err
	}
	_, err = s.forms().ReplaceOne(ctx, bson.M{"_id": f.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("formdispatch/mongo: save form: %w", err)
	}
	return nil
}
