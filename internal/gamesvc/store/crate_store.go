package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

// CrateStore reads the case catalog from the crates collection.
type CrateStore struct {
	db *mongo.Database
}

func NewCrateStore(db *mongo.Database) *CrateStore {
	return &CrateStore{db: db}
}

func (s *CrateStore) GetCrate(ctx context.Context, crateID string) (*models.Case, error) {
	crate := &models.Case{}
	err := s.db.Collection("crates").FindOne(ctx, bson.M{
		"id":    crateID,
		"level": bson.M{"$exists": false},
	}).Decode(crate)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get crate %s: %w", crateID, err)
	}
	return crate, nil
}

func (s *CrateStore) GetCrates(ctx context.Context, crateIDs []string) ([]models.Case, error) {
	cursor, err := s.db.Collection("crates").Find(ctx, bson.M{
		"id":    bson.M{"$in": crateIDs},
		"level": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get crates: %w", err)
	}
	defer cursor.Close(ctx)

	var crates []models.Case
	if err := cursor.All(ctx, &crates); err != nil {
		return nil, err
	}
	return crates, nil
}

func (s *CrateStore) GetAllCrates(ctx context.Context) ([]models.Case, error) {
	cursor, err := s.db.Collection("crates").Find(ctx, bson.M{
		"level": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list crates: %w", err)
	}
	defer cursor.Close(ctx)

	var crates []models.Case
	if err := cursor.All(ctx, &crates); err != nil {
		return nil, err
	}
	return crates, nil
}
