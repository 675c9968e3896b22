// Package rollback maintains ordered compensation actions for a workflow
// instance and replays them in reverse (LIFO) when a multi-step grant
// fails partway through. Individual compensation failures are collected,
// never propagated: rollback is best-effort and must not mask the error
// that triggered it.
package rollback
