package taskqueue

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/herald/internal/testutil"
)

func TestMongoQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testutil.GetMongoURI(t)))
	if err != nil {
		t.Fatalf("mongo.Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	q := NewMongoQueue(client, "herald_queue_test", "")
	if err := q.coll.Drop(ctx); err != nil {
		t.Fatalf("drop: %v", err)
	}
	runQueueTests(t, q)
}
