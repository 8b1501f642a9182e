package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/herald/pkg/api"
)

// PrometheusObserver records engine callbacks as Prometheus metrics:
//
//	herald_executions_total{workflow,action,status}
//	herald_execution_duration_seconds{workflow,action}
//	herald_step_duration_seconds{workflow,step,type,status}
//	herald_step_output_invalid_total{workflow,step}
type PrometheusObserver struct {
	executions    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	stepDuration  *prometheus.HistogramVec
	invalidOutput *prometheus.CounterVec

	mu      sync.Mutex
	started map[*api.Event]time.Time
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "executions_total",
			Help:      "Total number of workflow step executions by outcome.",
		}, []string{"workflow", "action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "herald",
			Name:      "execution_duration_seconds",
			Help:      "Duration of ExecuteWorkflow calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow", "action"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "herald",
			Name:      "step_duration_seconds",
			Help:      "Duration of step handlers in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow", "step", "type", "status"}),
		invalidOutput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "step_output_invalid_total",
			Help:      "Step outputs that failed schema validation under the lenient policy.",
		}, []string{"workflow", "step"}),
		started: make(map[*api.Event]time.Time),
	}

	for _, c := range []prometheus.Collector{o.executions, o.duration, o.stepDuration, o.invalidOutput} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnWorkflowStart(ctx context.Context, ev *api.Event) {
	o.mu.Lock()
	o.started[ev] = time.Now()
	o.mu.Unlock()
}

func (o *PrometheusObserver) OnWorkflowCompleted(ctx context.Context, ev *api.Event, out *api.ExecutionOutput) {
	status := "completed"
	if out != nil && out.Options != nil && out.Options.Skip {
		status = "skipped"
	}
	o.finish(ev, status)
}

func (o *PrometheusObserver) OnWorkflowFailed(ctx context.Context, ev *api.Event, err error) {
	o.finish(ev, "failed")
}

func (o *PrometheusObserver) finish(ev *api.Event, status string) {
	action := string(ev.Action)
	o.executions.WithLabelValues(ev.WorkflowID, action, status).Inc()

	o.mu.Lock()
	start, ok := o.started[ev]
	delete(o.started, ev)
	o.mu.Unlock()
	if ok {
		o.duration.WithLabelValues(ev.WorkflowID, action).Observe(time.Since(start).Seconds())
	}
}

func (o *PrometheusObserver) OnStepStart(ctx context.Context, ev *api.Event, stepID string, t api.StepType) {
}

func (o *PrometheusObserver) OnStepCompleted(ctx context.Context, ev *api.Event, stepID string, t api.StepType, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.stepDuration.WithLabelValues(ev.WorkflowID, stepID, string(t), status).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnStepOutputInvalid(ctx context.Context, ev *api.Event, stepID string, issues []api.ValidationIssue) {
	o.invalidOutput.WithLabelValues(ev.WorkflowID, stepID).Inc()
}
