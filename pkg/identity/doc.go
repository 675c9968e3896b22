// Package identity defines the identity-provider client contract consumed
// by the orchestrator: security-group lifecycle, membership, enterprise
// application binding and provisioning control. Wire-level concerns
// (transport, credential acquisition, token refresh) belong to
// implementations, not to this package.
//
// The Fake implementation backs unit tests and the CLI's local mode.
package identity
