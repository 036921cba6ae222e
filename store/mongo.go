package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAdapter stores each collection as a Mongo collection with the
// derived primary key in _id. Increments ride on $inc, which is atomic
// per document; upserting increments combine $inc with $setOnInsert in a
// single FindOneAndUpdate so creation and increment cannot interleave.
// TTL indexes on the schema's TTL field handle physical purging.
type MongoAdapter struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoAdapter wraps an existing connected client.
func NewMongoAdapter(client *mongo.Client, dbName string) *MongoAdapter {
	return &MongoAdapter{client: client, db: client.Database(dbName)}
}

// Init pings the deployment and provisions TTL and unique indexes for
// every registered entity.
func (a *MongoAdapter) Init(ctx context.Context) error {
	if err := a.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, entity := range RegisteredEntities() {
		coll := a.db.Collection(entity.Name)
		var indexes []mongo.IndexModel
		if ttl := entity.Schema.TTLField; ttl != "" {
			indexes = append(indexes, mongo.IndexModel{
				Keys:    bson.D{{Key: ttl, Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
			})
		}
		for name, spec := range entity.Schema.Fields {
			if spec.Unique && name != "id" {
				indexes = append(indexes, mongo.IndexModel{
					Keys:    bson.D{{Key: name, Value: 1}},
					Options: options.Index().SetUnique(true),
				})
			}
		}
		if len(indexes) > 0 {
			if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("%w: index provisioning for %s: %v", ErrUnavailable, entity.Name, err)
			}
		}
	}
	return nil
}

// Close disconnects the client.
func (a *MongoAdapter) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// InsertOne upserts the document at its _id, replacing any leftover
// record under the same key.
func (a *MongoAdapter) InsertOne(ctx context.Context, collection string, doc Document) (Document, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: document has no id", ErrValidation)
	}
	_, err := a.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id},
		mongoEncode(doc),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return copyDoc(doc), nil
}

// InsertMany writes each document; partial failure surfaces as an error.
func (a *MongoAdapter) InsertMany(ctx context.Context, collection string, docs []Document) ([]Document, error) {
	for _, doc := range docs {
		if _, err := a.InsertOne(ctx, collection, doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// FindOne loads a document by _id.
func (a *MongoAdapter) FindOne(ctx context.Context, collection, id string) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	var raw bson.M
	err := a.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return mongoDecode(entity.Schema, raw), nil
}

// FindMany returns every document in the collection.
func (a *MongoAdapter) FindMany(ctx context.Context, collection string) ([]Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	cursor, err := a.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cursor.Close(ctx)

	var out []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, mongoDecode(entity.Schema, raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// FindOneAndUpdate applies a $set and returns the updated document.
func (a *MongoAdapter) FindOneAndUpdate(ctx context.Context, collection, id string, update Document) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	var raw bson.M
	err := a.db.Collection(collection).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": mongoEncode(update)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return mongoDecode(entity.Schema, raw), nil
}

// UpdateMany applies a $set to all documents matching the filter.
func (a *MongoAdapter) UpdateMany(ctx context.Context, collection string, filter, update Document) (int64, error) {
	res, err := a.db.Collection(collection).UpdateMany(ctx,
		mongoEncode(filter),
		bson.M{"$set": mongoEncode(update)},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.ModifiedCount, nil
}

// FindOneAndIncrement runs a single atomic $inc, optionally as an
// upsert where $setOnInsert carries the baseline for fields outside the
// deltas. Incremented fields start from Mongo's implicit zero, which is
// why baselines for them must be zero.
func (a *MongoAdapter) FindOneAndIncrement(ctx context.Context, collection, id string, deltas map[string]int64, opts IncrementOptions) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}

	inc := bson.M{}
	for field, delta := range deltas {
		inc[field] = delta
	}
	update := bson.M{"$inc": inc}
	findOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	if opts.Upsert {
		setOnInsert := bson.M{}
		for field, val := range mongoEncode(opts.Baseline) {
			if _, incremented := deltas[field]; incremented {
				continue
			}
			setOnInsert[field] = val
		}
		if len(setOnInsert) > 0 {
			update["$setOnInsert"] = setOnInsert
		}
		findOpts = findOpts.SetUpsert(true)
	}

	var raw bson.M
	err := a.db.Collection(collection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, findOpts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return mongoDecode(entity.Schema, raw), nil
}

// DeleteOne removes a document by _id.
func (a *MongoAdapter) DeleteOne(ctx context.Context, collection, id string) (int64, error) {
	res, err := a.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}

// DeleteMany removes every document in the collection.
func (a *MongoAdapter) DeleteMany(ctx context.Context, collection string) (int64, error) {
	res, err := a.db.Collection(collection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}

func mongoEncode(doc Document) bson.M {
	out := make(bson.M, len(doc))
	for name, val := range doc {
		if name == "id" {
			out["_id"] = val
			continue
		}
		out[name] = val
	}
	return out
}

func mongoDecode(schema Schema, raw bson.M) Document {
	out := make(Document, len(raw))
	for name, val := range raw {
		if name == "_id" {
			if s, ok := val.(string); ok {
				out["id"] = s
			}
			continue
		}
		if dt, ok := val.(primitive.DateTime); ok {
			val = dt.Time().UTC()
		}
		out[name] = val
	}
	normalized := schema.Normalize(out)
	if id, ok := out["id"]; ok {
		normalized["id"] = id
	}
	return normalized
}
