package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/bridge"
)

// Execution detail names recorded by BridgeJobExecutor.
const (
	DetailBridgeResponseReceived = "bridge_response_received"
	DetailFailedBridgeRetry      = "failed_bridge_retry"
	DetailFailedBridgeExecution  = "failed_bridge_execution"

	detailSourceInternal = "internal"
)

// payloadSourceKey is an internal payload key never forwarded to a bridge.
const payloadSourceKey = "__source"

// jsDateLayout formats times the way the bridge protocol expects them.
const jsDateLayout = "2006-01-02T15:04:05.000Z07:00"

// ExecuteJobCommand asks the executor to run one job.
type ExecuteJobCommand struct {
	EnvironmentID string
	Job           *persistence.Job
}

// JobExecutor runs a job and returns the bridge output.
type JobExecutor interface {
	Execute(ctx context.Context, cmd ExecuteJobCommand) (*api.ExecutionOutput, error)
}

// BridgeJobExecutor executes jobs through a bridge Transport.
type BridgeJobExecutor struct {
	store     persistence.Persistence
	transport bridge.Transport
	logger    *slog.Logger
	now       func() time.Time
}

var _ JobExecutor = (*BridgeJobExecutor)(nil)

// Option configures a BridgeJobExecutor.
type Option func(*BridgeJobExecutor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *BridgeJobExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the executor's time source.
func WithClock(now func() time.Time) Option {
	return func(e *BridgeJobExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewBridgeJobExecutor creates an executor that reads job history from
// store and sends events through transport.
func NewBridgeJobExecutor(store persistence.Persistence, transport bridge.Transport, opts ...Option) *BridgeJobExecutor {
	if transport == nil {
		panic("orchestrator: transport must not be nil")
	}
	e := &BridgeJobExecutor{
		store:     store,
		transport: transport,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute sends cmd.Job to the bridge and returns the step output.
func (e *BridgeJobExecutor) Execute(ctx context.Context, cmd ExecuteJobCommand) (*api.ExecutionOutput, error) {
	job := cmd.Job
	if job == nil {
		return nil, errors.New("orchestrator: job must not be nil")
	}
	if job.StepID == "" {
		return nil, fmt.Errorf("orchestrator: job %q has no step id", job.ID)
	}

	state, err := e.generateState(ctx, cmd.EnvironmentID, job)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build state for job %q: %w", job.ID, err)
	}

	ev := &api.Event{
		WorkflowID: job.WorkflowID,
		StepID:     job.StepID,
		Action:     api.ActionExecute,
		Payload:    normalizePayload(job.Payload),
		Subscriber: orEmpty(job.Subscriber),
		Controls:   orEmpty(job.Controls),
		State:      state,
	}

	out, err := e.send(ctx, job, ev)
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(out.Metadata)
	e.recordDetail(ctx, job, DetailBridgeResponseReceived, persistence.DetailStatusPending, raw)
	return out, nil
}

func (e *BridgeJobExecutor) send(ctx context.Context, job *persistence.Job, ev *api.Event) (*api.ExecutionOutput, error) {
	var last *bridge.Response
	hooked := bridge.WithResponseHook(ctx, func(ctx context.Context, resp bridge.Response) {
		last = &resp
		if resp.StatusCode < 400 {
			return
		}
		raw := map[string]any{
			"url":        resp.URL,
			"statusCode": resp.StatusCode,
			"retryCount": resp.Attempt - 1,
			"message":    resp.Status,
		}
		if len(resp.Body) > 0 {
			raw["raw"] = parseBridgeBody(resp.Body)
		}
		data, _ := json.Marshal(raw)
		e.recordDetail(ctx, job, DetailFailedBridgeRetry, persistence.DetailStatusWarning, data)
	})

	out, err := e.transport.Execute(hooked, ev)
	if err == nil {
		return out, nil
	}

	e.logger.Error("bridge_execution_failed",
		slog.String("job", job.ID),
		slog.String("workflow", job.WorkflowID),
		slog.String("step", job.StepID),
		slog.Any("error", err),
	)

	raw := map[string]any{"url": job.BridgeURL, "message": err.Error()}
	if last != nil {
		raw["url"] = last.URL
		raw["statusCode"] = last.StatusCode
		raw["message"] = last.Status
		if last.Attempt > 1 {
			raw["retryCount"] = last.Attempt - 1
		}
		if len(last.Body) > 0 {
			raw["raw"] = parseBridgeBody(last.Body)
		}
	}
	data, _ := json.Marshal(raw)
	e.recordDetail(ctx, job, DetailFailedBridgeExecution, persistence.DetailStatusFailed, data)
	return nil, err
}

func parseBridgeBody(body []byte) any {
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"error": fmt.Sprintf("Unexpected body received from Bridge: %s", body)}
	}
	return v
}

// recordDetail appends an execution detail. Failures are logged only.
func (e *BridgeJobExecutor) recordDetail(ctx context.Context, job *persistence.Job, detail string, status persistence.DetailStatus, raw []byte) {
	if e.store.Details == nil {
		return
	}
	d := &persistence.ExecutionDetail{
		ID:            uuid.NewString(),
		EnvironmentID: job.EnvironmentID,
		JobID:         job.ID,
		TransactionID: job.TransactionID,
		Detail:        detail,
		Source:        detailSourceInternal,
		Status:        status,
		Raw:           string(raw),
		CreatedAt:     e.now(),
	}
	if err := e.store.Details.CreateExecutionDetail(context.WithoutCancel(ctx), d); err != nil {
		e.logger.Warn("execution_detail_failed",
			slog.String("job", job.ID),
			slog.String("detail", detail),
			slog.Any("error", err),
		)
	}
}

// generateState walks the parent chain of job, nearest ancestor first.
func (e *BridgeJobExecutor) generateState(ctx context.Context, environmentID string, job *persistence.Job) ([]api.State, error) {
	var states []api.State
	seen := map[string]bool{job.ID: true}

	for parentID := job.ParentID; parentID != ""; {
		if seen[parentID] {
			return nil, fmt.Errorf("job chain loops at %q", parentID)
		}
		seen[parentID] = true

		parent, err := e.store.Jobs.FindJob(ctx, environmentID, parentID)
		if err != nil {
			if errors.Is(err, persistence.ErrJobNotFound) {
				break
			}
			return nil, err
		}

		st, err := e.mapState(ctx, parent)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
		parentID = parent.ParentID
	}
	return states, nil
}

func (e *BridgeJobExecutor) mapState(ctx context.Context, job *persistence.Job) (api.State, error) {
	outputs := map[string]any{}

	switch job.Type {
	case api.StepTypeDelay:
		outputs["duration"] = e.now().Sub(job.CreatedAt).Milliseconds()

	case api.StepTypeDigest:
		merged, err := e.store.Jobs.FindMergedDigestJobs(ctx, job.EnvironmentID, job.ID)
		if err != nil {
			return api.State{}, err
		}
		all := append(merged, job)
		sortByCreated(all)
		events := make([]any, 0, len(all))
		for _, j := range all {
			events = append(events, map[string]any{
				"id":      j.ID,
				"time":    j.CreatedAt.UTC().Format(jsDateLayout),
				"payload": orEmpty(j.Payload),
			})
		}
		outputs["events"] = events

	case api.StepTypeCustom:
		if job.StepOutput != nil {
			outputs = job.StepOutput
		}

	case api.StepTypeInApp:
		if e.store.Messages == nil {
			break
		}
		msg, err := e.store.Messages.FindMessageByJob(ctx, job.EnvironmentID, job.ID)
		if err != nil {
			if errors.Is(err, persistence.ErrMessageNotFound) {
				break
			}
			return api.State{}, err
		}
		outputs = map[string]any{
			"seen":         msg.Seen,
			"read":         msg.Read,
			"lastSeenDate": formatDate(msg.LastSeenDate),
			"lastReadDate": formatDate(msg.LastReadDate),
		}
	}

	status := api.StepStatus{Status: string(job.Status)}
	if job.Error != "" {
		status.Error = job.Error
	}
	return api.State{StepID: job.StepID, Outputs: outputs, State: status}, nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(jsDateLayout)
}

// normalizePayload copies the payload without internal keys.
func normalizePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == payloadSourceKey {
			continue
		}
		out[k] = v
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sortByCreated(jobs []*persistence.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
