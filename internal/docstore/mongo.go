package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tasksync/internal/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a Store backed by a MongoDB database. Document ids are stored as
// string _id values.
//
// Subscriptions follow a change stream on the collection and re-run the query
// on every change. Deployments without change streams (a standalone server)
// are polled every PollInterval instead.
type Mongo struct {
	client       *mongo.Client
	db           *mongo.Database
	pollInterval time.Duration
	log          *slog.Logger
}

func NewMongo(client *mongo.Client, database string, pollInterval time.Duration) *Mongo {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Mongo{
		client:       client,
		db:           client.Database(database),
		pollInterval: pollInterval,
		log:          logger.Component("docstore.mongo"),
	}
}

var changeOps = bson.A{"insert", "update", "replace", "delete"}

func (m *Mongo) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	coll := m.db.Collection(q.Collection)
	find := func(ctx context.Context) ([]Document, error) {
		return m.find(ctx, coll, q)
	}

	go func() {
		defer cancel()

		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: changeOps}}}}}},
		}
		// Open the stream before the first read so no write falls between them.
		stream, err := coll.Watch(subCtx, pipeline)
		if err != nil {
			if subCtx.Err() != nil {
				return
			}
			m.log.Info("change streams unavailable, polling", "query", q.String(), "error", err)
			poll(subCtx, m.log, m.pollInterval, q, find, fn)
			return
		}
		defer stream.Close(context.Background())

		if !deliver(subCtx, m.log, q, find, fn) {
			return
		}
		for stream.Next(subCtx) {
			// one snapshot per batch of changes
			for stream.RemainingBatchLength() > 0 && stream.Next(subCtx) {
			}
			if !deliver(subCtx, m.log, q, find, fn) {
				return
			}
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			m.log.Warn("change stream failed, polling", "query", q.String(), "error", err)
			poll(subCtx, m.log, m.pollInterval, q, find, fn)
		}
	}()

	return Unsubscribe(cancel), nil
}

func (m *Mongo) find(ctx context.Context, coll *mongo.Collection, q Query) ([]Document, error) {
	dir := 1
	if q.Descending {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})

	cursor, err := coll.Find(ctx, bson.M{q.Field: q.Equals}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, fromBSON(r))
	}
	return docs, nil
}

func (m *Mongo) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	set, _ := splitFields(data)
	doc := bson.M{}
	for k, v := range set {
		doc[k] = v
	}
	id := primitive.NewObjectID().Hex()
	doc["_id"] = id

	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (m *Mongo) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	coll := m.db.Collection(collection)
	update := mongoUpdate(fields)
	if len(update) == 0 {
		n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		if n == 0 {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		return nil
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// mongoUpdate turns an update into $set / $unset operators.
func mongoUpdate(fields map[string]any) bson.M {
	set, unset := splitFields(fields)
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(unset) > 0 {
		u := bson.M{}
		for _, k := range unset {
			u[k] = ""
		}
		update["$unset"] = u
	}
	return update
}

func fromBSON(r bson.M) Document {
	var id string
	switch v := r["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		id = v.Hex()
	default:
		id = fmt.Sprint(v)
	}

	data := make(map[string]any, len(r))
	for k, v := range r {
		if k == "_id" {
			continue
		}
		data[k] = v
	}
	return Document{ID: id, Data: data}
}
