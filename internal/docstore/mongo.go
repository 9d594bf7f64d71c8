package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Mongo implements Store on MongoDB. Watch is backed by change streams, so
// the deployment must be a replica set for change delivery; Batch commits in
// a multi-document transaction on such deployments and degrades to sequential
// writes elsewhere.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("Connected to MongoDB", "database", dbName)
	return &Mongo{client: client, db: client.Database(dbName), logger: logger}, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) coll(name string) *mongo.Collection {
	return m.db.Collection(name)
}

func toBSON(id string, fields Fields) bson.M {
	doc := bson.M{"_id": id}
	for k, v := range fields {
		doc[k] = v
	}
	return doc
}

func fromBSON(raw bson.M) Document {
	doc := Document{Fields: make(Fields, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = AsString(v)
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Get implements Store.
func (m *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := m.coll(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, wrapStoreErr("get "+collection, err)
	}
	return fromBSON(raw), nil
}

// Query implements Store.
func (m *Mongo) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = f.Value
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts = opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}

	cur, err := m.coll(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStoreErr("query "+collection, err)
	}
	defer cur.Close(ctx)

	docs := []Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, wrapStoreErr("decode "+collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, wrapStoreErr("iterate "+collection, err)
	}
	return docs, nil
}

// Insert implements Store.
func (m *Mongo) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	if err := m.Create(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Create implements Store. The unique _id index turns concurrent keyed
// creates into exactly one winner.
func (m *Mongo) Create(ctx context.Context, collection, id string, fields Fields) error {
	_, err := m.coll(collection).InsertOne(ctx, toBSON(id, fields))
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	if err != nil {
		return wrapStoreErr("create "+collection, err)
	}
	return nil
}

// Put implements Store.
func (m *Mongo) Put(ctx context.Context, collection, id string, fields Fields) error {
	_, err := m.coll(collection).ReplaceOne(ctx, bson.M{"_id": id}, toBSON(id, fields),
		options.Replace().SetUpsert(true))
	if err != nil {
		return wrapStoreErr("put "+collection, err)
	}
	return nil
}

// UpdateFields implements Store.
func (m *Mongo) UpdateFields(ctx context.Context, collection, id string, fields Fields) error {
	res, err := m.coll(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return wrapStoreErr("update "+collection, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Increment implements Store. $inc is atomic on a single document.
func (m *Mongo) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	res, err := m.coll(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return wrapStoreErr("increment "+collection, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store. Absent ids are not an error.
func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	_, err := m.coll(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapStoreErr("delete "+collection, err)
	}
	return nil
}

// Batch implements Store.
func (m *Mongo) Batch() Batch {
	return &mongoBatch{store: m}
}

type mongoBatch struct {
	store *Mongo
	ops   []stagedOp
}

func (b *mongoBatch) Update(collection, id string, fields Fields) {
	b.ops = append(b.ops, stagedOp{collection: collection, id: id, fields: fields})
}

func (b *mongoBatch) Delete(collection, id string) {
	b.ops = append(b.ops, stagedOp{del: true, collection: collection, id: id})
}

// Commit runs the staged ops in a multi-document transaction. Deployments
// without transaction support (standalone servers) fall back to sequential
// best-effort writes; a partial failure there is surfaced to the caller,
// which is expected to dead-letter it.
func (b *mongoBatch) Commit(ctx context.Context) error {
	sess, err := b.store.client.StartSession()
	if err != nil {
		return wrapStoreErr("start session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, b.apply(ctx)
	})
	if err == nil {
		return nil
	}
	if !txnUnsupported(err) {
		return fmt.Errorf("batch commit: %w", err)
	}

	b.store.logger.Warn("transactions unsupported, committing batch sequentially",
		"ops", len(b.ops))
	if err := b.apply(ctx); err != nil {
		return fmt.Errorf("sequential batch: %w", err)
	}
	return nil
}

func (b *mongoBatch) apply(ctx context.Context) error {
	for _, op := range b.ops {
		coll := b.store.coll(op.collection)
		if op.del {
			if _, err := coll.DeleteOne(ctx, bson.M{"_id": op.id}); err != nil {
				return err
			}
			continue
		}
		res, err := coll.UpdateOne(ctx, bson.M{"_id": op.id}, bson.M{"$set": bson.M(op.fields)})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("batch update %s/%s: %w", op.collection, op.id, ErrNotFound)
		}
	}
	return nil
}

func txnUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers are only allowed") ||
		strings.Contains(msg, "IllegalOperation")
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

// Watch implements Store using change streams. Before-images require the
// collection to have changeStreamPreAndPostImages enabled; without them the
// Before fields of update/delete events are empty and handlers fall back to
// re-reading state, which every handler here tolerates.
func (m *Mongo) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	cs, err := m.coll(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, wrapStoreErr("watch "+collection, err)
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		defer cs.Close(context.Background())

		for cs.Next(ctx) {
			var ce changeEvent
			if err := cs.Decode(&ce); err != nil {
				m.logger.Error("decode change event", "collection", collection, "error", err)
				continue
			}
			ev, ok := m.toEvent(collection, ce)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			m.logger.Error("change stream closed", "collection", collection, "error", err)
		}
	}()
	return out, nil
}

func (m *Mongo) toEvent(collection string, ce changeEvent) (Event, bool) {
	ev := Event{
		ID:         uuid.NewString(),
		Collection: collection,
		DocID:      ce.DocumentKey.ID,
		OccurredAt: time.Now().UTC(),
	}
	switch ce.OperationType {
	case "insert":
		ev.Type = EventCreate
		ev.After = fromBSON(ce.FullDocument).Fields
	case "update", "replace":
		ev.Type = EventUpdate
		ev.After = fromBSON(ce.FullDocument).Fields
		if ce.FullDocumentBeforeChange != nil {
			ev.Before = fromBSON(ce.FullDocumentBeforeChange).Fields
		}
	case "delete":
		ev.Type = EventDelete
		if ce.FullDocumentBeforeChange != nil {
			ev.Before = fromBSON(ce.FullDocumentBeforeChange).Fields
		}
	default:
		return Event{}, false
	}
	return ev, true
}
