package bridge

import (
	"context"

	"github.com/petrijr/herald/pkg/api"
)

// LocalTransport executes events against an in-process client.
type LocalTransport struct {
	client api.Client
}

var _ Transport = (*LocalTransport)(nil)

// NewLocalTransport wraps client as a Transport.
func NewLocalTransport(client api.Client) *LocalTransport {
	return &LocalTransport{client: client}
}

func (t *LocalTransport) Execute(ctx context.Context, ev *api.Event) (*api.ExecutionOutput, error) {
	cp := *ev
	if cp.Action == "" {
		cp.Action = api.ActionExecute
	}
	return t.client.ExecuteWorkflow(ctx, &cp)
}
