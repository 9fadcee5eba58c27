package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSavedCartNotFound = errors.New("saved cart not found")

const savedCartTTL = 90 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("saved_carts"),
	}
}

func (m *MongoRepository) Save(ctx context.Context, snapshot *domain.CartSnapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now()
	}

	filter := keyFilter(domain.CartKey{CustomerID: snapshot.CustomerID, StoreID: snapshot.StoreID})
	update := bson.M{"$set": snapshot}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) Get(ctx context.Context, key domain.CartKey) (*domain.CartSnapshot, error) {
	var snapshot domain.CartSnapshot
	err := m.collection.FindOne(ctx, keyFilter(key)).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSavedCartNotFound
		}
		return nil, fmt.Errorf("failed to get saved cart: %w", err)
	}
	return &snapshot, nil
}

// ListByCustomer returns the customer's saved carts, most recent first.
func (m *MongoRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.CartSnapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := m.collection.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved carts: %w", err)
	}
	defer cursor.Close(ctx)

	carts := []domain.CartSnapshot{}
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, fmt.Errorf("failed to decode saved carts: %w", err)
	}
	return carts, nil
}

func (m *MongoRepository) Delete(ctx context.Context, key domain.CartKey) error {
	result, err := m.collection.DeleteOne(ctx, keyFilter(key))
	if err != nil {
		return fmt.Errorf("failed to delete saved cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrSavedCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "store_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(savedCartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func keyFilter(key domain.CartKey) bson.M {
	return bson.M{"customer_id": key.CustomerID, "store_id": key.StoreID}
}
