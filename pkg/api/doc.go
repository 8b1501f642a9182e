// Package api contains the core building blocks used by the herald workflow
// engine. It defines the types exchanged between workflow code, the engine
// and the bridge, without depending on any of their implementations.
//
// Most users interact with the higher-level herald package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom integrations, such as alternative transports, or for
// contributors extending the engine itself.
//
// # Workflows and Steps
//
// A workflow is an ordinary Go function. It receives a WorkflowContext and
// declares its steps in order through the Step interface:
//
//	func(ctx context.Context, wf *api.WorkflowContext) error {
//		digest, err := wf.Step.Digest(ctx, "collect", digestHandler)
//		if err != nil {
//			return err
//		}
//		_, err = wf.Step.Email(ctx, "summary", emailHandler(digest))
//		return err
//	}
//
// The engine calls the function once per execution request and replays the
// results of earlier steps from Event.State, so the function must declare the
// same steps in the same order every time it runs. Errors returned by Step
// methods must be returned unchanged.
//
// # Events and Outputs
//
// An Event names a workflow, a target step and an Action. The engine answers
// execute and preview actions with an ExecutionOutput holding the validated
// handler outputs, the provider overrides and execution metadata.
//
// # Errors
//
// Every error produced by the engine is an *Error carrying an ErrorCode and an
// HTTP status code. The Err* values can be used with errors.Is.
//
// # Observability
//
// The Observer interface reports execution lifecycle events. LoggingObserver,
// BasicMetrics and NewCompositeObserver provide ready-made implementations.
package api
