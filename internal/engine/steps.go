package engine

import (
	"context"

	"github.com/petrijr/herald/pkg/api"
)

// declarer handles a single step declaration. Discovery and replay are the
// two implementations.
type declarer interface {
	declare(ctx context.Context, t api.StepType, stepID string, fn api.StepHandler, opts []api.StepOption) (map[string]any, error)
}

// stepAPI adapts a declarer to api.Step.
type stepAPI struct {
	d declarer
}

var _ api.Step = stepAPI{}

func (s stepAPI) Email(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeEmail, stepID, fn, opts)
}

func (s stepAPI) SMS(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeSMS, stepID, fn, opts)
}

func (s stepAPI) Chat(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeChat, stepID, fn, opts)
}

func (s stepAPI) Push(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypePush, stepID, fn, opts)
}

func (s stepAPI) InApp(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeInApp, stepID, fn, opts)
}

func (s stepAPI) Digest(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeDigest, stepID, fn, opts)
}

func (s stepAPI) Delay(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeDelay, stepID, fn, opts)
}

func (s stepAPI) Custom(ctx context.Context, stepID string, fn api.StepHandler, opts ...api.StepOption) (map[string]any, error) {
	return s.d.declare(ctx, api.StepTypeCustom, stepID, fn, opts)
}
