package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Collection schema:
//
//	{
//	  _id:        string,    // unique document id
//	  not_before: int64,     // due time in unix nanoseconds
//	  created_at: time.Time,
//	  payload:    []byte,    // JSON encoded Task
//	}
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "herald", collName to "queue_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "herald"
	}
	if collName == "" {
		collName = "queue_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID        string    `bson:"_id"`
	NotBefore int64     `bson:"not_before"`
	CreatedAt time.Time `bson:"created_at"`
	Payload   []byte    `bson:"payload"`
}

// Enqueue inserts a document for the given Task.
func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	t = stamp(t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.coll.InsertOne(ctx, mongoQueueDoc{
		// Task ids may repeat across retries, documents may not.
		ID:        uuid.NewString(),
		NotBefore: t.due().UnixNano(),
		CreatedAt: time.Now().UTC(),
		Payload:   data,
	})
	return err
}

// Dequeue blocks (via polling) until a task is due or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(
			ctx,
			bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}},
			options.FindOneAndDelete().SetSort(bson.D{
				{Key: "not_before", Value: 1},
				{Key: "created_at", Value: 1},
			}),
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				if err := waitPoll(ctx, tmr, q.pollInterval); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		return DecodeTask(doc.Payload)
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		slog.Default().Warn("mongo_queue_len_failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
