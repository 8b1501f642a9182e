package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay step execution.
type Observer interface {
	// OnWorkflowStart is called once per ExecuteWorkflow call after the event
	// has been accepted.
	OnWorkflowStart(ctx context.Context, ev *Event)

	// OnWorkflowCompleted is called when the requested step produced an
	// ExecutionOutput.
	OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput)

	// OnWorkflowFailed is called when ExecuteWorkflow returns an error.
	OnWorkflowFailed(ctx context.Context, ev *Event, err error)

	// OnStepStart is called before the target step's handler runs.
	OnStepStart(ctx context.Context, ev *Event, stepID string, stepType StepType)

	// OnStepCompleted is called after the target step's handler returns,
	// for both successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, ev *Event, stepID string, stepType StepType, err error, duration time.Duration)

	// OnStepOutputInvalid is called when a handler output does not match the
	// step's output schema and the engine runs with the lenient policy.
	OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, ev *Event)                           {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput) {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, ev *Event, err error)               {}
func (NoopObserver) OnStepStart(ctx context.Context, ev *Event, stepID string, t StepType)   {}
func (NoopObserver) OnStepCompleted(ctx context.Context, ev *Event, stepID string, t StepType, err error, d time.Duration) {
}
func (NoopObserver) OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, ev *Event) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, ev)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, ev, out)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, ev *Event, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, ev, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, ev *Event, stepID string, t StepType) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, ev, stepID, t)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, ev *Event, stepID string, t StepType, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, ev, stepID, t, err, d)
	}
}

func (c *CompositeObserver) OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue) {
	for _, o := range c.observers {
		o.OnStepOutputInvalid(ctx, ev, stepID, issues)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs execution lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, ev *Event) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", ev.StepID),
		slog.String("action", string(ev.Action)),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput) {
	attrs := []any{
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", ev.StepID),
		slog.String("action", string(ev.Action)),
	}
	if out != nil {
		attrs = append(attrs, slog.Float64("duration_ms", out.Metadata.Duration))
		if out.Options != nil && out.Options.Skip {
			attrs = append(attrs, slog.Bool("skipped", true))
		}
	}
	o.Logger.InfoContext(ctx, "workflow_completed", attrs...)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, ev *Event, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", ev.StepID),
		slog.String("action", string(ev.Action)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, ev *Event, stepID string, t StepType) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", stepID),
		slog.String("step_type", string(t)),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, ev *Event, stepID string, t StepType, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", stepID),
		slog.String("step_type", string(t)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue) {
	o.Logger.WarnContext(ctx, "step_output_invalid",
		slog.String("workflow", ev.WorkflowID),
		slog.String("step", stepID),
		slog.Any("issues", issues),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	executionsStarted   atomic.Int64
	executionsCompleted atomic.Int64
	executionsFailed    atomic.Int64
	executionsSkipped   atomic.Int64
	stepsCompleted      atomic.Int64
	invalidOutputs      atomic.Int64
	totalStepDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ExecutionsStarted   int64
	ExecutionsCompleted int64
	ExecutionsFailed    int64
	ExecutionsSkipped   int64

	StepsCompleted  int64
	InvalidOutputs  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, ev *Event) {
	m.executionsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput) {
	m.executionsCompleted.Add(1)
	if out != nil && out.Options != nil && out.Options.Skip {
		m.executionsSkipped.Add(1)
	}
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, ev *Event, err error) {
	m.executionsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, ev *Event, stepID string, t StepType, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue) {
	m.invalidOutputs.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		ExecutionsStarted:   m.executionsStarted.Load(),
		ExecutionsCompleted: m.executionsCompleted.Load(),
		ExecutionsFailed:    m.executionsFailed.Load(),
		ExecutionsSkipped:   m.executionsSkipped.Load(),
		StepsCompleted:      steps,
		InvalidOutputs:      m.invalidOutputs.Load(),
		AvgStepDuration:     avg,
	}
}
