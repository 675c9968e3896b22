// Package retry wraps fallible remote calls with bounded retry and
// exponential or fixed backoff. Every remote call the orchestrator makes
// goes through an Executor.
//
// Wrapped actions may be repeated: callers must ensure they are safe to
// retry (idempotent or naturally conflict-detectable). The executor does
// not enforce this.
package retry
