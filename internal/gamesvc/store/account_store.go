package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

// AccountStore reads account profiles (display data and client seed) from
// the accounts collection.
type AccountStore struct {
	db *mongo.Database
}

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetAccount(ctx context.Context, userID string) (*models.AccountData, error) {
	var doc struct {
		ID             string `bson:"id"`
		DisplayName    string `bson:"displayName"`
		ProfilePicture string `bson:"profilePicture"`
		ClientSeed     string `bson:"clientSeed"`
	}
	err := s.db.Collection("accounts").FindOne(ctx, bson.M{"id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account %s: %w", userID, err)
	}
	return &models.AccountData{
		ID:             doc.ID,
		DisplayName:    doc.DisplayName,
		ProfilePicture: doc.ProfilePicture,
		ClientSeed:     doc.ClientSeed,
	}, nil
}

// AppendGameHistory records a finished game on every participant account.
func (s *AccountStore) AppendGameHistory(ctx context.Context, userIDs []string, game models.AnyGame) error {
	_, err := s.db.Collection("accounts").UpdateMany(ctx,
		bson.M{"id": bson.M{"$in": userIDs}},
		bson.M{"$push": bson.M{"gameHistory": game}},
	)
	if err != nil {
		return fmt.Errorf("failed to append game history: %w", err)
	}
	return nil
}
