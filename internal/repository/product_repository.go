package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/stock"
)

type ProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{
		collection: db.Collection("products"),
	}
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID().Hex()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}

	if _, err := r.collection.InsertOne(ctx, p); err != nil {
		p.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, p.Code)
		}
		return fmt.Errorf("%w: failed to insert product: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("%w: failed to get product: %w", domain.ErrPersistence, err)
	}
	return &p, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query products: %w", domain.ErrPersistence, err)
	}
	var products []domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("%w: failed to decode products: %w", domain.ErrPersistence, err)
	}
	return products, nil
}

func (r *ProductRepository) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	filter := bson.M{"code": code}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: failed to check product code: %w", domain.ErrPersistence, err)
	}
	return n > 0, nil
}

func (r *ProductRepository) Paginate(ctx context.Context, q domain.ProductQuery) (*domain.ProductPage, error) {
	filter := productFilter(q.Filter)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count products: %w", domain.ErrPersistence, err)
	}
	if q.Skip() >= total {
		return &domain.ProductPage{Items: []domain.Product{}, Total: total}, nil
	}

	opts := options.Find().
		SetSort(productSort(q.Sort)).
		SetSkip(q.Skip()).
		SetLimit(int64(q.Limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query products: %w", domain.ErrPersistence, err)
	}
	items := []domain.Product{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("%w: failed to decode products: %w", domain.ErrPersistence, err)
	}

	return &domain.ProductPage{Items: items, Total: total}, nil
}

func (r *ProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	set := patchToSet(patch)
	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p domain.Product
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, fmt.Errorf("%w: failed to update product: %w", domain.ErrPersistence, err)
	}
	return &p, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("%w: failed to delete product: %w", domain.ErrPersistence, err)
	}
	return &p, nil
}

// DecrementStock is a single conditional update: the filter only matches
// while stock >= quantity, so concurrent reservations cannot oversell.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	filter := bson.M{
		"_id":   id,
		"stock": bson.M{"$gte": quantity},
	}
	update := bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p domain.Product
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, stock.ErrNoMatch
		}
		return nil, fmt.Errorf("%w: failed to decrement stock: %w", domain.ErrPersistence, err)
	}
	return &p, nil
}

func (r *ProductRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

// productFilter builds the Mongo filter. Text and category are matched as
// escaped case-insensitive regexes, so user input is literal.
func productFilter(f domain.ProductFilter) bson.M {
	filter := bson.M{}
	if f.Text != "" {
		rx := containsRegex(f.Text)
		filter["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"description": rx},
			bson.M{"category": rx},
		}
	}
	if f.Category != "" {
		filter["category"] = containsRegex(f.Category)
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	return filter
}

func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// productSort always ends on _id so ties and unsorted listings keep
// insertion order.
func productSort(order domain.SortOrder) bson.D {
	switch order {
	case domain.SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case domain.SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "_id", Value: 1}}
	}
}

func patchToSet(p domain.ProductPatch) bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Code != nil {
		set["code"] = *p.Code
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Stock != nil {
		set["stock"] = *p.Stock
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Thumbnails != nil {
		thumbs := *p.Thumbnails
		if thumbs == nil {
			thumbs = []string{}
		}
		set["thumbnails"] = thumbs
	}
	return set
}
