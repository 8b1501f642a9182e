package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/pkg/schema"
)

// registerDemoWorkflows adds the workflows served by "herald serve".
func registerDemoWorkflows(client herald.Client) error {
	welcome := herald.New("welcome-onboarding", welcomeOnboarding).
		Name("Welcome onboarding").
		Description("In-app welcome, a short pause, then a follow-up email unless the welcome was read").
		Tags("demo", "onboarding").
		PayloadSchema(schema.Object().
			Field("name", schema.String().Default("there")).
			Field("plan", schema.Enum("free", "pro").Default("free")))

	digest := herald.New("comment-digest", commentDigest).
		Name("Comment digest").
		Description("Collects comments for ten minutes and sends one email").
		Tags("demo", "digest")

	for _, b := range []*herald.WorkflowBuilder{welcome, digest} {
		if err := b.Register(client); err != nil {
			return fmt.Errorf("register %s: %w", b.ID(), err)
		}
	}
	return nil
}

func welcomeOnboarding(ctx context.Context, wf *herald.WorkflowContext) error {
	inbox, err := wf.Step.InApp(ctx, "welcome", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"subject": controls["subject"], "body": controls["body"]}, nil
	}, herald.ControlSchema(schema.Object().
		Field("subject", schema.String().Default("Welcome!")).
		Field("body", schema.String().Default("Hi {{payload.name}}, your {{payload.plan}} plan is ready."))))
	if err != nil {
		return err
	}

	if _, err := wf.Step.Delay(ctx, "pause", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"type": "regular", "amount": controls["amount"], "unit": controls["unit"]}, nil
	}, herald.ControlSchema(schema.Object().
		Field("amount", schema.Number().Default(1)).
		Field("unit", schema.Enum("seconds", "minutes", "hours", "days").Default("minutes")))); err != nil {
		return err
	}

	_, err = wf.Step.Email(ctx, "follow-up", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{
			"subject": controls["subject"],
			"body":    "<h1>Getting started</h1><p>Here is what you can do next.</p>",
		}, nil
	}, herald.ControlSchema(schema.Object().
		Field("subject", schema.String().Default("Getting started, {{payload.name}}"))),
		herald.Skip(func(in herald.SkipInput) bool {
			read, _ := inbox["read"].(bool)
			return read
		}))
	return err
}

func commentDigest(ctx context.Context, wf *herald.WorkflowContext) error {
	digest, err := wf.Step.Digest(ctx, "collect", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"type": "regular", "amount": 10, "unit": "minutes"}, nil
	})
	if err != nil {
		return err
	}

	_, err = wf.Step.Email(ctx, "send", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		events, _ := digest["events"].([]any)
		lines := make([]string, 0, len(events))
		for _, e := range events {
			ev, _ := e.(map[string]any)
			p, _ := ev["payload"].(map[string]any)
			lines = append(lines, fmt.Sprintf("<li>%v: %v</li>", p["author"], p["text"]))
		}
		return map[string]any{
			"subject": fmt.Sprintf("%d new comments", len(events)),
			"body":    "<ul>" + strings.Join(lines, "") + "</ul>",
		}, nil
	}, herald.Provider("sendgrid", func(ctx context.Context, in herald.ProviderInput) (map[string]any, error) {
		return herald.Passthrough{
			Body: map[string]any{"categories": []any{"digest"}},
		}.Result(), nil
	}))
	return err
}
