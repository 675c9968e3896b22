package identity

import "errors"

var (
	// ErrGroupNotFound is returned when the referenced group does not exist.
	ErrGroupNotFound = errors.New("identity group not found")

	// ErrGroupExists is returned when a group with the same display name
	// already exists.
	ErrGroupExists = errors.New("identity group already exists")

	// ErrAssignmentNotFound is returned when an app role assignment does
	// not exist.
	ErrAssignmentNotFound = errors.New("app role assignment not found")

	// ErrGroupInUse is returned when a group cannot be deleted because it
	// is still referenced.
	ErrGroupInUse = errors.New("identity group still referenced")
)
