package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/pkg/api"
)

// runStoreTests exercises a Persistence implementation. Every backend
// test calls it with a fresh, empty store.
func runStoreTests(t *testing.T, p Persistence) {
	t.Helper()

	t.Run("jobs", func(t *testing.T) { testJobs(t, p.Jobs) })
	t.Run("digest", func(t *testing.T) { testMergedDigestJobs(t, p.Jobs) })
	t.Run("messages", func(t *testing.T) { testMessages(t, p.Messages) })
	t.Run("details", func(t *testing.T) { testExecutionDetails(t, p.Details) })
}

func sampleJob(id, parent string, created time.Time) *Job {
	return &Job{
		ID:            id,
		EnvironmentID: "env-1",
		TransactionID: "tx-1",
		ParentID:      parent,
		WorkflowID:    "welcome",
		StepID:        "step-" + id,
		Type:          api.StepTypeEmail,
		Status:        JobStatusPending,
		Payload:       map[string]any{"name": "John", "count": float64(2)},
		Subscriber:    map[string]any{"subscriberId": "sub-1"},
		Metadata:      &StepMetadata{Type: "regular", Amount: 1, Unit: "hours"},
		CreatedAt:     created.UTC(),
		UpdatedAt:     created.UTC(),
	}
}

func testJobs(t *testing.T, s JobStore) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	first := sampleJob("job-1", "", now)
	second := sampleJob("job-2", "job-1", now.Add(time.Second))
	require.NoError(t, s.CreateJob(ctx, second))
	require.NoError(t, s.CreateJob(ctx, first))
	assert.Error(t, s.CreateJob(ctx, first), "duplicate id must be rejected")

	got, err := s.FindJob(ctx, "env-1", "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ParentID)
	assert.Equal(t, "John", got.Payload["name"])
	assert.Equal(t, float64(2), got.Payload["count"])
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "hours", got.Metadata.Unit)
	assert.True(t, got.CreatedAt.Equal(second.CreatedAt))

	_, err = s.FindJob(ctx, "env-2", "job-2")
	assert.True(t, errors.Is(err, ErrJobNotFound), "job must not leak across environments")
	_, err = s.FindJob(ctx, "env-1", "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	got.Status = JobStatusCompleted
	got.StepOutput = map[string]any{"subject": "hi"}
	require.NoError(t, s.UpdateJob(ctx, got))

	again, err := s.FindJob(ctx, "env-1", "job-2")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, again.Status)
	assert.Equal(t, "hi", again.StepOutput["subject"])

	err = s.UpdateJob(ctx, sampleJob("missing", "", now))
	assert.True(t, errors.Is(err, ErrJobNotFound))

	all, err := s.ListJobs(ctx, JobFilter{TransactionID: "tx-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "job-1", all[0].ID, "jobs are listed oldest first")
	assert.Equal(t, "job-2", all[1].ID)

	done, err := s.ListJobs(ctx, JobFilter{EnvironmentID: "env-1", Status: JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "job-2", done[0].ID)
}

func testMergedDigestJobs(t *testing.T, s JobStore) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	digest := sampleJob("digest-1", "", now.Add(3*time.Second))
	digest.Type = api.StepTypeDigest
	require.NoError(t, s.CreateJob(ctx, digest))

	for i, id := range []string{"merged-b", "merged-a"} {
		j := sampleJob(id, "", now.Add(time.Duration(i)*time.Second))
		j.Type = api.StepTypeDigest
		j.Status = JobStatusMerged
		j.MergedDigestID = "digest-1"
		require.NoError(t, s.CreateJob(ctx, j))
	}
	pending := sampleJob("merged-pending", "", now)
	pending.MergedDigestID = "digest-1"
	require.NoError(t, s.CreateJob(ctx, pending))

	merged, err := s.FindMergedDigestJobs(ctx, "env-1", "digest-1")
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "merged-b", merged[0].ID)
	assert.Equal(t, "merged-a", merged[1].ID)
}

func testMessages(t *testing.T, s MessageStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.FindMessageByJob(ctx, "env-1", "job-1")
	assert.True(t, errors.Is(err, ErrMessageNotFound))

	msg := &Message{
		ID:            "msg-1",
		EnvironmentID: "env-1",
		JobID:         "job-1",
		TransactionID: "tx-1",
		Channel:       api.StepTypeInApp,
		Content:       map[string]any{"body": "hello"},
		CreatedAt:     now,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	got, err := s.FindMessageByJob(ctx, "env-1", "job-1")
	require.NoError(t, err)
	assert.False(t, got.Seen)
	assert.Nil(t, got.LastSeenDate)
	assert.Equal(t, "hello", got.Content["body"])

	got.Seen = true
	got.LastSeenDate = &now
	require.NoError(t, s.UpdateMessage(ctx, got))

	again, err := s.FindMessageByJob(ctx, "env-1", "job-1")
	require.NoError(t, err)
	assert.True(t, again.Seen)
	require.NotNil(t, again.LastSeenDate)
	assert.True(t, again.LastSeenDate.Equal(now))

	err = s.UpdateMessage(ctx, &Message{ID: "missing"})
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func testExecutionDetails(t *testing.T, s ExecutionDetailStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	for i, detail := range []string{"bridge_response_received", "failed_bridge_retry"} {
		require.NoError(t, s.CreateExecutionDetail(ctx, &ExecutionDetail{
			ID:            detail,
			EnvironmentID: "env-1",
			JobID:         "job-1",
			Detail:        detail,
			Source:        "internal",
			Status:        DetailStatusPending,
			Raw:           `{"ok":true}`,
			CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	got, err := s.ListExecutionDetails(ctx, "env-1", "job-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bridge_response_received", got[0].Detail)
	assert.Equal(t, "failed_bridge_retry", got[1].Detail)
	assert.Equal(t, `{"ok":true}`, got[0].Raw)

	none, err := s.ListExecutionDetails(ctx, "env-1", "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
