package engine

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/petrijr/herald/pkg/api"
)

// registeredWorkflow is a workflow definition together with what discovery
// recorded about it.
type registeredWorkflow struct {
	def           api.WorkflowDefinition
	payloadSchema *jsonschema.Schema
	steps         []*StepDescriptor
	code          string
}

// step returns the descriptor for stepID, scanning in declaration order.
func (w *registeredWorkflow) step(stepID string) (*StepDescriptor, bool) {
	for _, s := range w.steps {
		if s.StepID == stepID {
			return s, true
		}
	}
	return nil, false
}

type workflowRegistry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*registeredWorkflow
}

func newWorkflowRegistry() *workflowRegistry {
	return &workflowRegistry{
		byID: make(map[string]*registeredWorkflow),
	}
}

// Register stores the workflows. An ID that is already present is replaced
// in place and keeps its position.
func (r *workflowRegistry) Register(wfs ...*registeredWorkflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, wf := range wfs {
		id := wf.def.ID
		if _, exists := r.byID[id]; !exists {
			r.order = append(r.order, id)
		}
		r.byID[id] = wf
	}
}

func (r *workflowRegistry) Get(id string) (*registeredWorkflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.byID[id]
	return wf, ok
}

// All returns the workflows in registration order.
func (r *workflowRegistry) All() []*registeredWorkflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*registeredWorkflow, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
