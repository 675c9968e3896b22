package orchestrator

// Phase is one step of a workflow state machine. Phases execute in strict
// order within a workflow instance; any phase can transition to FAILED.
type Phase string

// Full grant creation flow.
const (
	PhaseValidation               Phase = "VALIDATION"
	PhaseAzureGroupCreation       Phase = "AZURE_GROUP_CREATION"
	PhaseAzureGroupMembers        Phase = "AZURE_GROUP_MEMBERS"
	PhaseEnterpriseAppConfig      Phase = "ENTERPRISE_APP_CONFIG"
	PhaseProvisioning             Phase = "PROVISIONING"
	PhaseAwsSyncVerification      Phase = "AWS_SYNC_VERIFICATION"
	PhaseAwsPermissionSetCreation Phase = "AWS_PERMISSION_SET_CREATION"
	PhaseAwsAccountAssignment     Phase = "AWS_ACCOUNT_ASSIGNMENT"
	PhaseEndToEndValidation       Phase = "END_TO_END_VALIDATION"
	PhaseCompleted                Phase = "COMPLETED"
	PhaseFailed                   Phase = "FAILED"
)

// Lightweight attach flow (existing group to existing permission set).
const (
	PhaseAzureValidation Phase = "AZURE_VALIDATION"
	PhaseConflictCheck   Phase = "CONFLICT_CHECK"
	PhaseAwsAssignment   Phase = "AWS_ASSIGNMENT"
	PhaseVerification    Phase = "VERIFICATION"
)
