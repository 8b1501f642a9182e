package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/testutil"
	"github.com/petrijr/herald/pkg/worker"
)

func TestBundle_TriggerAndProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, err := sql.Open("pgx", testutil.GetPostgresEndpoint(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := herald.NewClient()
	herald.New("digest-ready", func(ctx context.Context, wf *herald.WorkflowContext) error {
		_, err := wf.Step.Email(ctx, "email", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
			return map[string]any{"subject": "Ready", "body": "Your digest is ready"}, nil
		})
		return err
	}).MustRegister(client)

	b, err := NewBundle(db, client, worker.Config{MaxAttempts: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run, err := b.Trigger(ctx, "digest-ready", herald.TriggerInput{
		EnvironmentID: "pg",
		Subscriber:    map[string]any{"subscriberId": "s-9"},
	})
	require.NoError(t, err)

	processed, err := b.Worker.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)

	job, err := b.Store.Jobs.FindJob(ctx, "pg", run.Jobs[0].ID)
	require.NoError(t, err)
	require.Equal(t, persistence.JobStatusCompleted, job.Status)
}
