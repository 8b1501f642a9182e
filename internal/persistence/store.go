package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/herald/pkg/api"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrMessageNotFound is returned when a message is not found.
	ErrMessageNotFound = errors.New("message not found")
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusMerged    JobStatus = "merged"
	JobStatusCanceled  JobStatus = "canceled"
)

// StepMetadata holds the timing settings of delay and digest steps.
type StepMetadata struct {
	// Type is regular, scheduled (delay) or timed (digest).
	Type      string  `json:"type,omitempty" bson:"type,omitempty"`
	Amount    float64 `json:"amount,omitempty" bson:"amount,omitempty"`
	Unit      string  `json:"unit,omitempty" bson:"unit,omitempty"`
	DelayPath string  `json:"delayPath,omitempty" bson:"delay_path,omitempty"`
	Cron      string  `json:"cron,omitempty" bson:"cron,omitempty"`
}

// Job is one step of one triggered workflow run. Jobs of a run form a
// chain through ParentID, first step first.
type Job struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environmentId"`
	TransactionID string `json:"transactionId"`
	ParentID      string `json:"parentId,omitempty"`

	WorkflowID string       `json:"workflowId"`
	StepID     string       `json:"stepId"`
	Type       api.StepType `json:"type"`
	BridgeURL  string       `json:"bridgeUrl,omitempty"`

	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`

	Payload    map[string]any `json:"payload,omitempty"`
	Subscriber map[string]any `json:"subscriber,omitempty"`
	Controls   map[string]any `json:"controls,omitempty"`
	Overrides  map[string]any `json:"overrides,omitempty"`
	Metadata   *StepMetadata  `json:"metadata,omitempty"`

	// StepOutput is the bridge output of a completed job.
	StepOutput map[string]any `json:"stepOutput,omitempty"`
	// MergedDigestID points merged digest jobs at the job that digests them.
	MergedDigestID string `json:"mergedDigestId,omitempty"`

	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobFilter selects jobs. Empty fields mean "no filter".
type JobFilter struct {
	EnvironmentID string
	TransactionID string
	Status        JobStatus
}

func (f JobFilter) match(j *Job) bool {
	if f.EnvironmentID != "" && j.EnvironmentID != f.EnvironmentID {
		return false
	}
	if f.TransactionID != "" && j.TransactionID != f.TransactionID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// Message is a delivered notification. In-app messages carry the seen and
// read flags that later steps read back as results.
type Message struct {
	ID            string         `json:"id"`
	EnvironmentID string         `json:"environmentId"`
	JobID         string         `json:"jobId"`
	TransactionID string         `json:"transactionId"`
	SubscriberID  string         `json:"subscriberId,omitempty"`
	Channel       api.StepType   `json:"channel"`
	Content       map[string]any `json:"content,omitempty"`

	Seen         bool       `json:"seen"`
	Read         bool       `json:"read"`
	LastSeenDate *time.Time `json:"lastSeenDate,omitempty"`
	LastReadDate *time.Time `json:"lastReadDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// DetailStatus is the severity of an ExecutionDetail.
type DetailStatus string

const (
	DetailStatusPending DetailStatus = "pending"
	DetailStatusSuccess DetailStatus = "success"
	DetailStatusWarning DetailStatus = "warning"
	DetailStatusFailed  DetailStatus = "failed"
)

// ExecutionDetail is an append-only audit record attached to a job.
type ExecutionDetail struct {
	ID            string       `json:"id"`
	EnvironmentID string       `json:"environmentId"`
	JobID         string       `json:"jobId"`
	TransactionID string       `json:"transactionId"`
	Detail        string       `json:"detail"`
	Source        string       `json:"source"`
	Status        DetailStatus `json:"status"`
	IsTest        bool         `json:"isTest"`
	IsRetry       bool         `json:"isRetry"`
	// Raw is a JSON document with detail specific data.
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStore handles storage of jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	// FindJob returns the job with the given id in the environment.
	FindJob(ctx context.Context, environmentID, id string) (*Job, error)
	// FindMergedDigestJobs returns the jobs merged into the digest job
	// digestJobID, oldest first.
	FindMergedDigestJobs(ctx context.Context, environmentID, digestJobID string) ([]*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}

// MessageStore handles storage of delivered messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	UpdateMessage(ctx context.Context, msg *Message) error
	FindMessageByJob(ctx context.Context, environmentID, jobID string) (*Message, error)
}

// ExecutionDetailStore handles storage of execution details.
type ExecutionDetailStore interface {
	CreateExecutionDetail(ctx context.Context, d *ExecutionDetail) error
	// ListExecutionDetails returns the details of a job in creation order.
	ListExecutionDetails(ctx context.Context, environmentID, jobID string) ([]*ExecutionDetail, error)
}
