// Package orchestrator drives triggered workflow runs against a bridge.
//
// A run is a chain of persisted jobs, one per step. BridgeJobExecutor sends
// one job to the bridge, rebuilding the replay state from the jobs before
// it, and WaitDurationCalculator turns delay and digest outputs into the
// time the next job has to wait.
package orchestrator
