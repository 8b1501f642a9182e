package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts    int
	completes int
	fails     int

	stepStarts    int
	stepCompletes int
	invalid       int

	lastEvent        *Event
	lastOutput       *ExecutionOutput
	lastErr          error
	lastStepID       string
	lastStepType     StepType
	lastStepDuration time.Duration
	lastIssues       []ValidationIssue
}

func (o *testObserver) OnWorkflowStart(ctx context.Context, ev *Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastEvent = ev
}

func (o *testObserver) OnWorkflowCompleted(ctx context.Context, ev *Event, out *ExecutionOutput) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastOutput = out
}

func (o *testObserver) OnWorkflowFailed(ctx context.Context, ev *Event, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails++
	o.lastErr = err
}

func (o *testObserver) OnStepStart(ctx context.Context, ev *Event, stepID string, t StepType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts++
	o.lastStepID = stepID
	o.lastStepType = t
}

func (o *testObserver) OnStepCompleted(ctx context.Context, ev *Event, stepID string, t StepType, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes++
	o.lastStepDuration = d
}

func (o *testObserver) OnStepOutputInvalid(ctx context.Context, ev *Event, stepID string, issues []ValidationIssue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalid++
	o.lastIssues = issues
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func newTestEvent() *Event {
	return &Event{
		WorkflowID: "wf-test",
		StepID:     "send-email",
		Action:     ActionExecute,
		Payload:    map[string]any{},
	}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	ev := newTestEvent()
	var o Observer = NoopObserver{}

	o.OnWorkflowStart(ctx, ev)
	o.OnWorkflowCompleted(ctx, ev, &ExecutionOutput{})
	o.OnWorkflowFailed(ctx, ev, errors.New("boom"))
	o.OnStepStart(ctx, ev, "send-email", StepTypeEmail)
	o.OnStepCompleted(ctx, ev, "send-email", StepTypeEmail, nil, time.Second)
	o.OnStepOutputInvalid(ctx, ev, "send-email", nil)
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil)

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	ev := newTestEvent()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("step failed")
	out := &ExecutionOutput{Outputs: map[string]any{"body": "hi"}}
	issues := []ValidationIssue{{Path: "/body", Message: "required"}}

	co.OnWorkflowStart(ctx, ev)
	co.OnWorkflowCompleted(ctx, ev, out)
	co.OnWorkflowFailed(ctx, ev, err)
	co.OnStepStart(ctx, ev, "send-email", StepTypeEmail)
	co.OnStepCompleted(ctx, ev, "send-email", StepTypeEmail, err, 2*time.Second)
	co.OnStepOutputInvalid(ctx, ev, "send-email", issues)

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.completes != 1 || o.fails != 1 || o.stepStarts != 1 || o.stepCompletes != 1 || o.invalid != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastEvent != ev || o.lastOutput != out || o.lastErr != err {
			t.Fatalf("observer %d argument mismatch", i+1)
		}
		if o.lastStepID != "send-email" || o.lastStepType != StepTypeEmail || o.lastStepDuration != 2*time.Second {
			t.Fatalf("observer %d step mismatch: %+v", i+1, o)
		}
		if len(o.lastIssues) != 1 || o.lastIssues[0].Path != "/body" {
			t.Fatalf("observer %d issues mismatch: %+v", i+1, o.lastIssues)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnWorkflowStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	ev := newTestEvent()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnWorkflowStart(ctx, ev)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "workflow_start" {
		t.Fatalf("expected message workflow_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["workflow"] != "wf-test" {
		t.Fatalf("expected workflow=wf-test, got %v", attrs["workflow"])
	}
	if attrs["action"] != "execute" {
		t.Fatalf("expected action=execute, got %v", attrs["action"])
	}
}

func TestLoggingObserver_OnStepCompleted_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()
	ev := newTestEvent()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnStepCompleted(ctx, ev, "step-ok", StepTypeSMS, nil, time.Second)
	o.OnStepCompleted(ctx, ev, "step-fail", StepTypeSMS, errors.New("boom"), 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}
	if h.records[0].Level != slog.LevelDebug {
		t.Fatalf("expected success record LevelDebug, got %v", h.records[0].Level)
	}
	if h.records[1].Level != slog.LevelError {
		t.Fatalf("expected failure record LevelError, got %v", h.records[1].Level)
	}

	attrs := attrsToMap(h.records[1])
	if attrs["step"] != "step-fail" {
		t.Fatalf("expected step=step-fail, got %v", attrs["step"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

func TestLoggingObserver_OnStepOutputInvalid_Warns(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnStepOutputInvalid(context.Background(), newTestEvent(), "send-email",
		[]ValidationIssue{{Path: "/subject", Message: "required"}})

	if len(h.records) != 1 || h.records[0].Level != slog.LevelWarn {
		t.Fatalf("expected one warn record, got %+v", h.records)
	}
	if h.records[0].Message != "step_output_invalid" {
		t.Fatalf("unexpected message %q", h.records[0].Message)
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_CountersAndSnapshot(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	ev := newTestEvent()

	m.OnWorkflowStart(ctx, ev)
	m.OnWorkflowStart(ctx, ev)
	m.OnWorkflowStart(ctx, ev)

	m.OnWorkflowCompleted(ctx, ev, &ExecutionOutput{Options: &ExecutionOptions{Skip: true}})
	m.OnWorkflowFailed(ctx, ev, errors.New("fail"))
	m.OnStepOutputInvalid(ctx, ev, "send-email", nil)

	snap := m.Snapshot()
	if snap.ExecutionsStarted != 3 {
		t.Fatalf("ExecutionsStarted=%d, want 3", snap.ExecutionsStarted)
	}
	if snap.ExecutionsCompleted != 1 || snap.ExecutionsSkipped != 1 {
		t.Fatalf("completed=%d skipped=%d, want 1/1", snap.ExecutionsCompleted, snap.ExecutionsSkipped)
	}
	if snap.ExecutionsFailed != 1 {
		t.Fatalf("ExecutionsFailed=%d, want 1", snap.ExecutionsFailed)
	}
	if snap.InvalidOutputs != 1 {
		t.Fatalf("InvalidOutputs=%d, want 1", snap.InvalidOutputs)
	}
	if snap.StepsCompleted != 0 || snap.AvgStepDuration != 0 {
		t.Fatalf("unexpected step metrics: %+v", snap)
	}
}

func TestBasicMetrics_OnStepCompleted_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	ev := newTestEvent()

	m.OnStepCompleted(ctx, ev, "step-1", StepTypeEmail, nil, 1*time.Second)
	m.OnStepCompleted(ctx, ev, "step-2", StepTypeEmail, nil, 3*time.Second)
	m.OnStepCompleted(ctx, ev, "step-3", StepTypeEmail, errors.New("fail"), 10*time.Second)

	snap := m.Snapshot()
	if snap.StepsCompleted != 2 {
		t.Fatalf("StepsCompleted=%d, want 2", snap.StepsCompleted)
	}
	if snap.AvgStepDuration != 2*time.Second {
		t.Fatalf("AvgStepDuration=%v, want 2s", snap.AvgStepDuration)
	}
}
