package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists checkpoints in a MongoDB collection.
// A unique index on (session_id, step) resolves concurrent writers.
type MongoStore struct {
	coll   *mongo.Collection
	closed atomic.Bool
}

type mongoCheckpointDoc struct {
	SessionID string    `bson:"session_id"`
	Step      int       `bson:"step"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	Data      []byte    `bson:"data"`
}

// NewMongoStore creates a Mongo-backed checkpoint store and ensures its index.
// dbName defaults to "taskrouter" if empty, collName defaults to "checkpoints".
func NewMongoStore(ctx context.Context, client *mongo.Client, dbName, collName string) (*MongoStore, error) {
	if dbName == "" {
		dbName = "taskrouter"
	}
	if collName == "" {
		collName = "checkpoints"
	}

	coll := client.Database(dbName).Collection(collName)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "step", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	latest, err := s.latestStep(ctx, cp.SessionID)
	if err != nil {
		return err
	}
	if cp.Step != latest+1 {
		return conflict(cp.SessionID, latest, cp.Step)
	}

	_, err = s.coll.InsertOne(ctx, mongoCheckpointDoc{
		SessionID: cp.SessionID,
		Step:      cp.Step,
		Status:    string(cp.Status),
		CreatedAt: cp.Timestamp,
		Data:      data,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return conflict(cp.SessionID, cp.Step, cp.Step)
		}
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *MongoStore) latestStep(ctx context.Context, sessionID string) (int, error) {
	var doc mongoCheckpointDoc
	err := s.coll.FindOne(ctx,
		bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "step", Value: -1}}).SetProjection(bson.M{"step": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read latest step: %w", err)
	}
	return doc.Step, nil
}

// LoadLatest implements Store.
func (s *MongoStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	return s.findOne(ctx, bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "step", Value: -1}}))
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context, sessionID string, step int) (*Checkpoint, error) {
	return s.findOne(ctx, bson.M{"session_id": sessionID, "step": step})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var doc mongoCheckpointDoc
	if err := s.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return Unmarshal(doc.Data)
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, sessionID string) ([]Info, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	cur, err := s.coll.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "step", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer cur.Close(ctx)

	infos := []Info{}
	for cur.Next(ctx) {
		var doc mongoCheckpointDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		infos = append(infos, Info{
			SessionID: doc.SessionID,
			Step:      doc.Step,
			Status:    Status(doc.Status),
			Timestamp: doc.CreatedAt,
			Size:      int64(len(doc.Data)),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// DeleteSession implements Store.
func (s *MongoStore) DeleteSession(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// Close implements Store. The client remains owned by the caller.
func (s *MongoStore) Close() error {
	s.closed.Store(true)
	return nil
}
