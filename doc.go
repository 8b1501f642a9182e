// Package herald is a code-first notification workflow engine for Go.
//
// Workflows are plain Go functions that declare typed steps (email, sms,
// chat, push, in_app, digest, delay and custom). A remote orchestrator, the
// bridge caller, drives a workflow one step at a time: each request carries
// the results of the steps that already ran, and herald replays them through
// the workflow function without re-running their handlers, stopping at the
// requested step to execute or preview it.
//
// # Core Concepts
//
//  1. Client
//  2. WorkflowBuilder
//  3. Step handlers and options
//  4. Bridge handler and client
//  5. LocalRunner and WorkerBundle
//
// # Client
//
// A Client holds registered workflows and executes events. For every event
// it:
//   - replays the supplied state up to the requested step
//   - evaluates skip predicates of the steps it walks past
//   - resolves the step's controls, filling schema defaults and compiling
//     {{ templates }} against payload and subscriber
//   - runs the handler and validates its output
//   - runs provider transforms and sanitizes human facing channel output
//
// Errors are returned as *Error values carrying an ErrorCode and an HTTP
// status; use AsError to inspect them.
//
// # WorkflowBuilder
//
// WorkflowBuilder is the fluent way to declare and register workflows:
//
//	herald.New("welcome", func(ctx context.Context, wf *herald.WorkflowContext) error {
//	    _, err := wf.Step.InApp(ctx, "inbox", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
//	        return map[string]any{"body": controls["body"]}, nil
//	    }, herald.ControlSchema(map[string]any{
//	        "type": "object",
//	        "properties": map[string]any{
//	            "body": map[string]any{"type": "string", "default": "Hi {{payload.name}}"},
//	        },
//	    }))
//	    return err
//	}).MustRegister(client)
//
// Control, output and payload schemas may be given as JSON schema maps,
// schema.Builder values or Go struct types (schema.ClassOf).
//
// # Bridge
//
// NewHandler mounts the HTTP bridge endpoint on an echo server. It answers
// discovery, health-check and code requests with GET and executes or
// previews steps with POST, optionally verifying HMAC signed requests.
// The bridge client in pkg/bridge calls such an endpoint with retries.
//
// # LocalRunner
//
// LocalRunner pairs a Client with in-memory job, message and execution
// detail stores, a task queue and a Worker. Trigger creates the job chain of
// a workflow; the worker executes the jobs in order, waiting out delay and
// digest steps, and records a message for each delivered channel step. It
// is the quickest way to run workflows end to end during development.
//
// WorkerBundle does the same on durable storage, so runs survive restarts.
// NewSQLiteBundle builds one on a SQLite database; the redis, postgres and
// mongo packages provide NewBundle for their drivers.
package herald
