// Package redis builds a herald WorkerBundle whose jobs, messages,
// execution details and queued tasks live in Redis.
package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/worker"
)

// DefaultPrefix namespaces every key the bundle writes.
const DefaultPrefix = "herald:"

// NewBundle returns a WorkerBundle backed by rdb. Store keys and queue
// keys share prefix; an empty prefix means DefaultPrefix.
func NewBundle(rdb *redis.Client, client herald.Client, prefix string, cfg worker.Config) *herald.WorkerBundle {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	store := persistence.NewRedisPersistence(rdb, prefix)
	q := taskqueue.NewRedisQueue(rdb, prefix)
	return herald.NewBundle(client, store, q, cfg)
}
