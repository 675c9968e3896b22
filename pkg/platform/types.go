package platform

import (
	"context"
	"time"
)

// PermissionSet is a named bundle of policy statements and a session
// duration bound, instantiated per environment.
type PermissionSet struct {
	Ref                  string    `json:"ref"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	ManagedPolicyARNs    []string  `json:"managed_policy_arns,omitempty"`
	InlinePolicyDocument string    `json:"inline_policy_document,omitempty"`
	SessionDuration      string    `json:"session_duration,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// PermissionSetSpec is the input for permission set creation.
type PermissionSetSpec struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	ManagedPolicyARNs    []string `json:"managed_policy_arns,omitempty"`
	InlinePolicyDocument string   `json:"inline_policy_document,omitempty"`
	SessionDuration      string   `json:"session_duration,omitempty"`
}

// AssignmentState is the platform-side state of an account assignment.
type AssignmentState string

const (
	AssignmentProvisioned AssignmentState = "PROVISIONED"
	AssignmentInProgress  AssignmentState = "IN_PROGRESS"
	AssignmentSucceeded   AssignmentState = "SUCCEEDED"
	AssignmentFailed      AssignmentState = "FAILED"
)

// Assignment is a (group, permission set, account) binding on the platform.
type Assignment struct {
	GroupID          string          `json:"group_id"`
	AccountID        string          `json:"account_id"`
	PermissionSetRef string          `json:"permission_set_ref"`
	State            AssignmentState `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DeletionStatus is the result of polling an asynchronous assignment
// deletion request.
type DeletionStatus struct {
	State         AssignmentState `json:"state"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// SyncStatus reports whether an identity group has propagated into the
// platform's own identity store.
type SyncStatus struct {
	IsSynced      bool       `json:"is_synced"`
	RemoteGroupID string     `json:"remote_group_id,omitempty"`
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
}

// Client is the cloud-platform collaborator contract.
type Client interface {
	// CreatePermissionSet creates a permission set from the spec.
	CreatePermissionSet(ctx context.Context, spec PermissionSetSpec) (*PermissionSet, error)

	// DeletePermissionSet removes a permission set. Deleting an absent set
	// returns ErrPermissionSetNotFound; a set still attached to
	// assignments returns ErrPermissionSetInUse.
	DeletePermissionSet(ctx context.Context, ref string) error

	// GetPermissionSet looks a permission set up by reference.
	GetPermissionSet(ctx context.Context, ref string) (*PermissionSet, error)

	// ListPermissionSets lists all permission sets.
	ListPermissionSets(ctx context.Context) ([]PermissionSet, error)

	// AssignGroupToAccount creates an account assignment.
	AssignGroupToAccount(ctx context.Context, groupID, accountID, permissionSetRef string) (*Assignment, error)

	// GetAssignment looks up an existing assignment. Returns
	// ErrAssignmentNotFound when absent.
	GetAssignment(ctx context.Context, groupID, accountID, permissionSetRef string) (*Assignment, error)

	// DeleteAccountAssignment starts an asynchronous assignment deletion
	// and returns a request id for status polling. Deleting an absent
	// assignment returns ErrAssignmentNotFound.
	DeleteAccountAssignment(ctx context.Context, groupID, accountID, permissionSetRef string) (requestID string, err error)

	// GetAssignmentDeletionStatus polls a deletion request.
	GetAssignmentDeletionStatus(ctx context.Context, requestID string) (DeletionStatus, error)

	// CheckGroupSynchronizationStatus reports whether the identity group
	// has propagated into the platform identity store.
	CheckGroupSynchronizationStatus(ctx context.Context, groupID string) (SyncStatus, error)

	// ListAccountAssignments lists all current account assignments.
	ListAccountAssignments(ctx context.Context) ([]Assignment, error)
}

// SyncChecker is the read-only subset of Client that reports group
// synchronization. Satisfied by every Client and by SyncStatusCache, which
// is how cached reads substitute for live ones on validation paths.
type SyncChecker interface {
	CheckGroupSynchronizationStatus(ctx context.Context, groupID string) (SyncStatus, error)
}
