// Package runner coordinates backend execution: it selects the first
// eligible adapter for a runtime context, retries transient failures with
// exponential backoff driven by the classifier's verdict, refreshes cached
// credentials on auth failures, and exposes one streaming-result contract
// regardless of backend. It also supports asynchronous runs with mid-flight
// cancellation by run ID.
package runner
