package platform

import "errors"

var (
	// ErrPermissionSetNotFound is returned when a permission set does not exist.
	ErrPermissionSetNotFound = errors.New("permission set not found")

	// ErrPermissionSetInUse is returned when a permission set is still
	// attached to account assignments.
	ErrPermissionSetInUse = errors.New("permission set still in use")

	// ErrAssignmentNotFound is returned when an account assignment does not exist.
	ErrAssignmentNotFound = errors.New("account assignment not found")

	// ErrAssignmentExists is returned when an identical assignment already exists.
	ErrAssignmentExists = errors.New("account assignment already exists")

	// ErrDeletionRequestNotFound is returned when a deletion request id is unknown.
	ErrDeletionRequestNotFound = errors.New("deletion request not found")
)
