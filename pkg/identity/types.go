package identity

import (
	"context"
	"time"
)

// ProvisioningState is the state of group provisioning into the target
// platform's identity store.
type ProvisioningState string

const (
	ProvisioningNotProvisioned ProvisioningState = "NotProvisioned"
	ProvisioningInProgress     ProvisioningState = "Provisioning"
	ProvisioningProvisioned    ProvisioningState = "Provisioned"
	ProvisioningFailed         ProvisioningState = "Failed"
)

// Group is a directory security group.
type Group struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Owners      []string  `json:"owners,omitempty"`
	Members     []string  `json:"members,omitempty"`
}

// CreateGroupResult is the outcome of a group creation call.
type CreateGroupResult struct {
	Success bool     `json:"success"`
	GroupID string   `json:"group_id,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// MembershipResult is the outcome of an owner or member mutation.
type MembershipResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// BindAppResult is the outcome of binding a group to an enterprise
// application. AssignmentID identifies the app role assignment so rollback
// can remove exactly that binding.
type BindAppResult struct {
	Success      bool     `json:"success"`
	AssignmentID string   `json:"assignment_id,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// ProvisioningStatus is the result of a provisioning status poll.
type ProvisioningStatus struct {
	State  ProvisioningState `json:"state"`
	Errors []string          `json:"errors,omitempty"`
}

// GroupValidation is the detailed validation result for a group.
type GroupValidation struct {
	Exists      bool     `json:"exists"`
	DisplayName string   `json:"display_name,omitempty"`
	OwnerCount  int      `json:"owner_count"`
	MemberCount int      `json:"member_count"`
	Problems    []string `json:"problems,omitempty"`
}

// GroupFilter restricts ListGroups results.
type GroupFilter struct {
	// NamePrefix matches groups whose display name starts with the prefix.
	NamePrefix string
}

// Client is the identity-provider collaborator contract.
type Client interface {
	// CreateGroup creates a security group with the given display name.
	CreateGroup(ctx context.Context, name, description string) (CreateGroupResult, error)

	// AddOwner adds an owner principal (by email/UPN) to the group.
	AddOwner(ctx context.Context, groupID, principal string) (MembershipResult, error)

	// AddMember adds a member principal to the group.
	AddMember(ctx context.Context, groupID, principal string) (MembershipResult, error)

	// BindEnterpriseApp assigns the group to the enterprise application
	// that provisions it into the target platform.
	BindEnterpriseApp(ctx context.Context, groupID, appID string) (BindAppResult, error)

	// TriggerProvisioning requests on-demand provisioning of the group
	// through the enterprise application.
	TriggerProvisioning(ctx context.Context, groupID, appID string) (MembershipResult, error)

	// GetProvisioningStatus reports the provisioning state of the group.
	GetProvisioningStatus(ctx context.Context, groupID, appID string) (ProvisioningStatus, error)

	// DeleteGroup removes the group. Deleting an absent group returns
	// ErrGroupNotFound.
	DeleteGroup(ctx context.Context, groupID string) error

	// RemoveAppRoleAssignment removes a specific app role assignment,
	// identified by the AssignmentID captured at bind time.
	RemoveAppRoleAssignment(ctx context.Context, groupID, assignmentID string) error

	// RemoveEnterpriseAppBinding removes any binding between the group and
	// the enterprise application.
	RemoveEnterpriseAppBinding(ctx context.Context, groupID, appID string) error

	// ListGroups lists groups matching the filter.
	ListGroups(ctx context.Context, filter GroupFilter) ([]Group, error)

	// GetGroupByName looks a group up by exact display name. Returns
	// ErrGroupNotFound when absent.
	GetGroupByName(ctx context.Context, name string) (*Group, error)

	// ValidateGroupDetailed checks that the group exists and is well
	// formed (has owners, has members).
	ValidateGroupDetailed(ctx context.Context, groupID string) (GroupValidation, error)
}
