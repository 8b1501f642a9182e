package herald_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/herald"
)

// Example_execute declares a workflow with the builder API and executes its
// second step, replaying the first from state.
func Example_execute() {
	client := herald.NewClient()

	herald.New("welcome", welcome).
		Name("Welcome").
		MustRegister(client)

	out, err := client.ExecuteWorkflow(context.Background(), &herald.Event{
		WorkflowID: "welcome",
		StepID:     "email",
		Action:     herald.ActionExecute,
		Payload:    map[string]any{"name": "Gopher"},
		State: []herald.State{{
			StepID:  "inbox",
			Outputs: map[string]any{"seen": true, "read": false, "lastSeenDate": nil, "lastReadDate": nil},
			State:   herald.StepStatus{Status: "completed"},
		}},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.Outputs["subject"])
	fmt.Println(out.Outputs["body"])
	// Output:
	// Hello Gopher
	// You already saw our inbox message.
}

// Example_localRunner triggers a workflow and lets a LocalRunner deliver it.
func Example_localRunner() {
	ctx := context.Background()

	runner := herald.NewLocalRunner()
	herald.New("welcome", welcome).MustRegister(runner.Client)

	run, err := runner.Trigger(ctx, "welcome", herald.TriggerInput{
		EnvironmentID: "dev",
		Subscriber:    map[string]any{"subscriberId": "sub-1"},
		Payload:       map[string]any{"name": "Gopher"},
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := runner.Drain(ctx); err != nil {
		log.Fatal(err)
	}

	for _, job := range run.Jobs {
		msg, err := runner.Store.Messages.FindMessageByJob(ctx, "dev", job.ID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: %v\n", msg.Channel, msg.Content["body"])
	}
	// Output:
	// in_app: Welcome aboard, Gopher!
	// email: Check your inbox.
}

func welcome(ctx context.Context, wf *herald.WorkflowContext) error {
	inbox, err := wf.Step.InApp(ctx, "inbox", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"body": fmt.Sprintf("Welcome aboard, %v!", wf.Payload["name"])}, nil
	})
	if err != nil {
		return err
	}
	_, err = wf.Step.Email(ctx, "email", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		body := "Check your inbox."
		if seen, _ := inbox["seen"].(bool); seen {
			body = "You already saw our inbox message."
		}
		return map[string]any{"subject": controls["subject"], "body": body}, nil
	}, herald.ControlSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{"type": "string", "default": "Hello {{payload.name}}"},
		},
	}))
	return err
}
