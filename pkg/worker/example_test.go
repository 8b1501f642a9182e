package worker_test

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/herald/internal/engine"
	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/bridge"
	"github.com/petrijr/herald/pkg/worker"
)

func ExampleWorker_ProcessOne() {
	ctx := context.Background()

	client := engine.NewClient()
	_ = client.AddWorkflows(api.WorkflowDefinition{
		ID: "welcome",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			_, err := wf.Step.SMS(ctx, "sms", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
				return map[string]any{"body": "Hello!"}, nil
			})
			return err
		},
	})

	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	executor := orchestrator.NewBridgeJobExecutor(store, bridge.NewLocalTransport(client))
	w := worker.New(executor, store, queue)

	job := &persistence.Job{
		ID:            "job-1",
		EnvironmentID: "env",
		TransactionID: "tx-1",
		WorkflowID:    "welcome",
		StepID:        "sms",
		Type:          api.StepTypeSMS,
		Status:        persistence.JobStatusPending,
		Payload:       map[string]any{},
		Subscriber:    map[string]any{"subscriberId": "sub-1"},
		CreatedAt:     time.Now(),
	}
	_ = store.Jobs.CreateJob(ctx, job)
	_ = w.EnqueueJob(ctx, job)

	if _, err := w.ProcessOne(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	msg, _ := store.Messages.FindMessageByJob(ctx, "env", "job-1")
	fmt.Println(msg.Channel, msg.Content["body"])
	// Output: sms Hello!
}
