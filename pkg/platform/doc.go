// Package platform defines the cloud-platform client contract consumed by
// the orchestrator: permission set lifecycle, account assignment lifecycle
// and group synchronization lookups, plus a redis-backed cache for
// synchronization status reads on hot validation paths.
package platform
