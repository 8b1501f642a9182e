package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrijr/herald/pkg/worker"
)

func newTriggerCmd(a *app) *cobra.Command {
	var (
		subscriber string
		payload    string
		env        string
	)
	cmd := &cobra.Command{
		Use:   "trigger WORKFLOW_ID",
		Short: "Create a run of a bridge workflow in the configured store and queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			logger := cfg.Logger()

			in := worker.TriggerInput{EnvironmentID: env, BridgeURL: cfg.Bridge.URL}
			if err := decodeObject(subscriber, &in.Subscriber); err != nil {
				return fmt.Errorf("--subscriber: %w", err)
			}
			if err := decodeObject(payload, &in.Payload); err != nil {
				return fmt.Errorf("--payload: %w", err)
			}

			bc := newBridgeClient(a, logger)
			disc, err := bc.Discover(ctx)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}

			b := newBackends()
			defer func() { _ = b.Close(context.Background()) }()
			w, err := newWorker(ctx, cfg, b, bc, logger)
			if err != nil {
				return err
			}

			for _, wf := range disc.Workflows {
				if wf.WorkflowID != args[0] {
					continue
				}
				run, err := w.Trigger(ctx, &wf, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "transaction %s: %d jobs queued\n", run.TransactionID, len(run.Jobs))
				return nil
			}
			return fmt.Errorf("workflow %q not found on %s", args[0], cfg.Bridge.URL)
		},
	}
	cmd.Flags().StringVar(&subscriber, "subscriber", "{}", "subscriber as a JSON object")
	cmd.Flags().StringVar(&payload, "payload", "{}", "payload as a JSON object")
	cmd.Flags().StringVar(&env, "environment", "default", "environment ID")
	return cmd
}

func decodeObject(s string, out *map[string]any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
