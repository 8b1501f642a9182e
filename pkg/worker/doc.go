// Package worker provides the background worker that drives triggered
// workflow runs forward.
//
// A run is a chain of persisted jobs, one per workflow step. The worker
// consumes execute-job tasks from a task queue and, for each task:
//
//   - loads the job and marks it running
//   - sends it to the bridge through the orchestrator, which replays the
//     workflow with the outputs of the jobs before it
//   - stores the step output and, for channel steps, a delivered message
//   - enqueues the next job of the run, delayed by the wait a delay or
//     digest step asks for
//
// Failed tasks are retried up to Config.MaxAttempts times with exponential
// backoff; after that the job is marked failed and the run stops.
//
// Workers are decoupled from any particular persistence backend. Different
// backends (in-memory, SQLite, Postgres, Redis, MongoDB) plug in through the
// matching store and queue implementations, and several workers can share
// one queue to scale processing.
package worker
