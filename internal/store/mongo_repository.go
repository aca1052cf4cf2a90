package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository over a single MongoDB collection
// of fetch_records documents.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository wraps the fetch_records collection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection("fetch_records")}
}

// EnsureIndexes creates the indexes the query patterns in §4.3 require.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}},
		{Keys: bson.D{{Key: "url", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "httpStatus", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "fetchedAt", Value: -1}}},
		{Keys: bson.D{{Key: "redirectChain", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create fetch_records indexes")
	}
	return err
}

func (r *MongoRepository) Create(ctx context.Context, fields Fields) (*FetchRecord, error) {
	now := time.Now().UTC()
	doc := bson.M{
		"_id":           primitive.NewObjectID().Hex(),
		"redirectChain": []string{},
		"retryCount":    0,
		"createdAt":     now,
		"updatedAt":     now,
	}
	for k, v := range fields {
		if v == Null {
			doc[k] = nil
			continue
		}
		doc[k] = v
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, doc["_id"].(string))
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*FetchRecord, error) {
	var rec FetchRecord
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) FindByURL(ctx context.Context, rawURL string) (*FetchRecord, error) {
	filter := bson.M{"url": bson.M{"$in": urlVariants(rawURL)}}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var rec FetchRecord
	err := r.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) FindLatestSuccessByURL(ctx context.Context, rawURL string) (*FetchRecord, error) {
	filter := bson.M{
		"url":    bson.M{"$in": urlVariants(rawURL)},
		"status": StatusSuccess,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "fetchedAt", Value: -1}})

	var rec FetchRecord
	err := r.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) FindAll(ctx context.Context, filter ListFilter, limit, offset int) ([]*FetchRecord, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.HTTPStatus != 0 {
		q["httpStatus"] = filter.HTTPStatus
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := r.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*FetchRecord
	for cur.Next(ctx) {
		var rec FetchRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, cur.Err()
}

func (r *MongoRepository) Update(ctx context.Context, id string, fields Fields) (*FetchRecord, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		if v == Null {
			set[k] = nil
			continue
		}
		set[k] = v
	}

	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *MongoRepository) GetRecentByURL(ctx context.Context, rawURL string, window time.Duration) (*FetchRecord, error) {
	cutoff := time.Now().UTC().Add(-window)
	variants := urlVariants(rawURL)

	filter := bson.M{
		"$or": []bson.M{
			{
				"url":       bson.M{"$in": variants},
				"status":    StatusSuccess,
				"fetchedAt": bson.M{"$gte": cutoff},
			},
			{
				"url":       bson.M{"$in": variants},
				"status":    bson.M{"$in": []Status{StatusPending, StatusProcessing}},
				"createdAt": bson.M{"$gte": cutoff},
			},
			{
				"redirectChain": bson.M{"$in": variants},
				"status":        StatusSuccess,
				"fetchedAt":     bson.M{"$gte": cutoff},
			},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var rec FetchRecord
	err := r.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) FindStalePending(ctx context.Context, timeout time.Duration) ([]*FetchRecord, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	filter := bson.M{
		"status":    StatusPending,
		"createdAt": bson.M{"$lt": cutoff},
	}

	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*FetchRecord
	for cur.Next(ctx) {
		var rec FetchRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, cur.Err()
}

func (r *MongoRepository) GetHistory(ctx context.Context, rawURL string) ([]*FetchRecord, error) {
	filter := bson.M{"url": bson.M{"$in": urlVariants(rawURL)}}
	opts := options.Find().SetSort(bson.D{{Key: "fetchedAt", Value: -1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*FetchRecord
	for cur.Next(ctx) {
		var rec FetchRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, cur.Err()
}

func (r *MongoRepository) HasActiveRecord(ctx context.Context, canonicalURL string, excludeID string) (bool, error) {
	filter := bson.M{
		"url":    canonicalURL,
		"status": bson.M{"$in": []Status{StatusPending, StatusProcessing}},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
