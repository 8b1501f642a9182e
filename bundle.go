package herald

import (
	"context"
	"database/sql"

	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/bridge"
	workerpkg "github.com/petrijr/herald/pkg/worker"
)

// WorkerBundle wires a Client, durable stores, a durable task queue and a
// Worker that consumes tasks from that queue.
type WorkerBundle struct {
	Client Client
	Store  persistence.Persistence
	Worker *workerpkg.Worker

	queue taskqueue.Queue
}

// NewSQLiteBundle constructs durable stores and a queue sharing the same
// SQLite database, and a Worker executing jobs against client. Jobs,
// messages, execution details and queued tasks survive restarts.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:herald.db?_journal=WAL")
//	bundle, err := herald.NewSQLiteBundle(db, client, worker.Config{MaxAttempts: 3})
//	run, err := bundle.Trigger(ctx, "welcome", herald.TriggerInput{...})
//	go bundle.Worker.Run(ctx, 2)
func NewSQLiteBundle(db *sql.DB, client Client, cfg workerpkg.Config) (*WorkerBundle, error) {
	store, err := persistence.NewSQLitePersistence(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return NewBundle(client, store, q, cfg), nil
}

// NewBundle wires a Worker over the given stores and queue. The backend
// packages (redis, postgres, mongo) build their bundles through it.
func NewBundle(client Client, store persistence.Persistence, q taskqueue.Queue, cfg workerpkg.Config) *WorkerBundle {
	ex := orchestrator.NewBridgeJobExecutor(store, bridge.NewLocalTransport(client),
		orchestrator.WithLogger(cfg.Logger))
	return &WorkerBundle{
		Client: client,
		Store:  store,
		Worker: workerpkg.NewWithConfig(ex, store, q, cfg),
		queue:  q,
	}
}

// Trigger creates the job chain of workflowID and enqueues its first job.
func (b *WorkerBundle) Trigger(ctx context.Context, workflowID string, in TriggerInput) (*Run, error) {
	return trigger(ctx, b.Client, b.Worker, workflowID, in)
}

// Pending returns the number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
