// Package mongo builds a herald WorkerBundle on MongoDB.
package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/worker"
)

// NewBundle returns a WorkerBundle keeping jobs, messages, execution
// details and queued tasks in database dbName ("herald" when empty).
func NewBundle(mc *mongo.Client, client herald.Client, dbName string, cfg worker.Config) *herald.WorkerBundle {
	store := persistence.NewMongoPersistence(mc, dbName)
	q := taskqueue.NewMongoQueue(mc, dbName, "")
	return herald.NewBundle(client, store, q, cfg)
}
