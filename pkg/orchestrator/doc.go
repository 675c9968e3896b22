// Package orchestrator drives access grant workflows: the full nine-phase
// grant creation machine, the lightweight attach flow, bulk assignment with
// partial-failure semantics, explicit rollback of completed operations, and
// read-only projections over operation history and live collaborator state.
package orchestrator
