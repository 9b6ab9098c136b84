// Package mongostore implements doclock.Store against a MongoDB collection,
// the concrete document store spec.md leaves as an external interface
// (SS1 "establishing or pooling the connection to the document store...
// supplied as an already-resolved collection handle").
//
// Grounded on this corpus's Mongo-backed lock repository pattern
// (FindOneAndUpdate with SetUpsert/SetReturnDocument(options.After) for the
// atomic find-and-modify primitive, FindOneAndDelete for the
// garbage-collecting release path).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-lockable/doclock"
)

// document is the BSON shape of spec.md SS3's lock document.
type document struct {
	Scope    string    `bson:"scope"`
	Key      string    `bson:"key"`
	Refcount int64     `bson:"refcount"`
	ExpireAt time.Time `bson:"expire_at"`
}

func (d document) toLockDocument() *doclock.LockDocument {
	return &doclock.LockDocument{
		Scope:    d.Scope,
		Key:      d.Key,
		Refcount: d.Refcount,
		ExpireAt: d.ExpireAt,
	}
}

// Collection implements doclock.Store against a single *mongo.Collection.
// The collection's name and database are caller-configured, per spec.md
// SS6; EnsureIndexes builds the required indices against it once.
type Collection struct {
	coll *mongo.Collection

	indexOnce sync.Once
	indexErr  error
}

// New wraps an already-resolved *mongo.Collection as a doclock.Store.
func New(coll *mongo.Collection) *Collection {
	return &Collection{coll: coll}
}

// Open returns a doclock.CollectionProducer suitable for doclock.New that
// wraps coll and ensures the required indices exist exactly once, the first
// time the Locker materializes its store - matching spec.md SS6's "once
// materialized, the index-ensure step runs once."
func Open(coll *mongo.Collection) doclock.CollectionProducer {
	c := New(coll)
	return func(ctx context.Context) (doclock.Store, error) {
		if err := c.ensureIndexes(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (c *Collection) ensureIndexes(ctx context.Context) error {
	c.indexOnce.Do(func() {
		c.indexErr = EnsureIndexes(ctx, c.coll)
	})
	return c.indexErr
}

// EnsureIndexes builds the three indices required by spec.md SS6: a unique
// compound index on (scope, key), and single-field indices on refcount and
// expire_at, both built in the background. It is idempotent - MongoDB
// treats CreateMany with an index of the same keys/options as a no-op.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	background := options.Index().SetBackground(true)
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetBackground(true),
		},
		{Keys: bson.D{{Key: "refcount", Value: 1}}, Options: background},
		{Keys: bson.D{{Key: "expire_at", Value: 1}}, Options: background},
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return nil
}

func guardFilter(scope, key string, guard doclock.Guard) bson.M {
	filter := bson.M{"scope": scope, "key": key}
	op, n := guard.Threshold()
	switch op {
	case "gt":
		filter["refcount"] = bson.M{"$gt": n}
	case "eq":
		filter["refcount"] = n
	}
	return filter
}

func (c *Collection) AtomicInc(ctx context.Context, scope, key string, delta int64, guard doclock.Guard) (*doclock.LockDocument, error) {
	filter := guardFilter(scope, key, guard)
	update := bson.M{
		"$inc": bson.M{"refcount": delta},
		"$setOnInsert": bson.M{
			"scope": scope,
			"key":   key,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(guard == doclock.GuardNone).
		SetReturnDocument(options.After)

	var doc document
	err := c.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, doclock.ErrStoreConflict
		}
		return nil, fmt.Errorf("mongostore: atomic inc: %w", err)
	}
	return doc.toLockDocument(), nil
}

func (c *Collection) AtomicSet(ctx context.Context, scope, key string, expireAt time.Time) (*doclock.LockDocument, error) {
	filter := bson.M{"scope": scope, "key": key}
	update := bson.M{
		"$set": bson.M{"expire_at": expireAt},
		"$setOnInsert": bson.M{
			"scope": scope,
			"key":   key,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc document
	err := c.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("mongostore: atomic set: %w", err)
	}
	return doc.toLockDocument(), nil
}

func (c *Collection) AtomicDelete(ctx context.Context, scope, key string, guard doclock.Guard) (*doclock.LockDocument, error) {
	filter := guardFilter(scope, key, guard)

	var doc document
	err := c.coll.FindOneAndDelete(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongostore: atomic delete: %w", err)
	}
	return doc.toLockDocument(), nil
}
