package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/storefront/internal/domain"
)

type CartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{
		collection: db.Collection("carts"),
	}
}

func (r *CartRepository) Create(ctx context.Context) (*domain.Cart, error) {
	now := time.Now().UTC()
	cart := &domain.Cart{
		ID:        primitive.NewObjectID().Hex(),
		Items:     []domain.CartItem{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.collection.InsertOne(ctx, cart); err != nil {
		return nil, fmt.Errorf("%w: failed to create cart: %w", domain.ErrPersistence, err)
	}
	return cart, nil
}

func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("%w: failed to get cart: %w", domain.ErrPersistence, err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return &cart, nil
}

func (r *CartRepository) List(ctx context.Context) ([]domain.Cart, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list carts: %w", domain.ErrPersistence, err)
	}
	carts := []domain.Cart{}
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, fmt.Errorf("%w: failed to decode carts: %w", domain.ErrPersistence, err)
	}
	return carts, nil
}

// Save replaces the cart's items if the stored version still equals
// cart.Version. On success cart.Version and cart.UpdatedAt are advanced to
// the stored values; a stale version yields ErrConflict.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	now := time.Now().UTC()

	filter := bson.M{"_id": cart.ID, "version": cart.Version}
	update := bson.M{
		"$set": bson.M{"products": items, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: failed to save cart: %w", domain.ErrPersistence, err)
	}
	if res.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": cart.ID}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("%w: failed to save cart: %w", domain.ErrPersistence, err)
		}
		if n == 0 {
			return domain.ErrCartNotFound
		}
		return domain.ErrConflict
	}

	cart.Items = items
	cart.Version++
	cart.UpdatedAt = now
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("%w: failed to delete cart: %w", domain.ErrPersistence, err)
	}
	return &cart, nil
}

func (r *CartRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "products.product", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}
