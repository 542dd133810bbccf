// ABOUTME: MongoDB document store backed by go.mongodb.org/mongo-driver
// ABOUTME: ObjectIDs surface as hex strings and BSON values are normalised to plain Go types

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoConnectTimeout = 10 * time.Second

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to uri and uses the named database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	logger := slog.Default().With("component", "docstore", "backend", "mongo")

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	logger.Info("MongoDB document store initialized", "database", database)
	return &MongoStore{client: client, db: client.Database(database), logger: logger}, nil
}

// Collection returns a handle on the named collection.
func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name), logger: s.logger}
}

// Ping checks the server connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

type mongoCollection struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func (c *mongoCollection) Get(ctx context.Context, id string, fields ...string) (*Snapshot, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Not an id this store could have assigned
		return nil, nil
	}

	opts := options.FindOne()
	if len(fields) > 0 {
		opts.SetProjection(mongoProjection(fields))
	}

	var raw bson.M
	err = c.coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return mongoSnapshot(raw), nil
}

func (c *mongoCollection) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	filter := mongoFilter(q.Filters)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if len(q.Fields) > 0 {
		opts.SetProjection(mongoProjection(q.Fields))
	}

	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []*Snapshot
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		result = append(result, mongoSnapshot(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return result, nil
}

func (c *mongoCollection) Insert(ctx context.Context, doc Document) (string, error) {
	body := bson.M{}
	for k, v := range normalizeDocument(doc) {
		if k == "_id" {
			continue
		}
		body[k] = v
	}

	res, err := c.coll.InsertOne(ctx, body)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}

	c.logger.Debug("inserted document", "collection", c.coll.Name(), "id", oid.Hex())
	return oid.Hex(), nil
}

func (c *mongoCollection) Update(ctx context.Context, id string, partial Document) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set := bson.M{}
	for k, v := range normalizeDocument(partial) {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		n, err := c.coll.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("checking document: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}

	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func mongoProjection(fields []string) bson.M {
	proj := bson.M{}
	for _, f := range fields {
		proj[f] = 1
	}
	return proj
}

func mongoFilter(filters []Filter) bson.M {
	filter := bson.M{}
	if len(filters) == 0 {
		return filter
	}
	var clauses []bson.M
	for _, f := range filters {
		v := normalize(f.Value)
		if f.Op == OpNotEqual {
			clauses = append(clauses, bson.M{f.Field: bson.M{"$ne": v}})
		} else {
			clauses = append(clauses, bson.M{f.Field: v})
		}
	}
	filter["$and"] = clauses
	return filter
}

// mongoSnapshot converts a raw BSON document into a Snapshot, lifting _id into the id.
func mongoSnapshot(raw bson.M) *Snapshot {
	snap := &Snapshot{Data: make(Document, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			snap.ID = mongoID(v)
			continue
		}
		snap.Data[k] = fromBSON(v)
	}
	return snap
}

func mongoID(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(v)
	}
}

// fromBSON normalises driver-decoded values to the types every backend returns.
func fromBSON(v any) any {
	switch tv := v.(type) {
	case primitive.DateTime:
		return tv.Time().UTC()
	case primitive.ObjectID:
		return tv.Hex()
	case int32:
		return int64(tv)
	case primitive.A:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = fromBSON(item)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(tv))
		for _, e := range tv {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	default:
		return v
	}
}
