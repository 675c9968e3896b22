// Package grant defines the core domain model for access grant
// provisioning: grant requests, group assignments, assignment operations
// and the operation error taxonomy shared by the orchestrator, the
// conflict detector and the history store.
package grant
