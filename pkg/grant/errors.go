package grant

import (
	"fmt"
	"time"
)

// ErrorCode is a machine-readable operation error code.
type ErrorCode string

const (
	// Validation failures: rejected before any remote side effect.
	ErrCodeRequestValidationFailed ErrorCode = "REQUEST_VALIDATION_FAILED"
	ErrCodeGroupValidationFailed   ErrorCode = "GROUP_VALIDATION_FAILED"

	// Conflict detection.
	ErrCodeConflictDetectionFailed ErrorCode = "CONFLICT_DETECTION_FAILED"
	ErrCodeConflictsDetected       ErrorCode = "CONFLICTS_DETECTED"

	// Per-phase execution failures: each triggers rollback of previously
	// registered actions.
	ErrCodeAzureGroupCreationFailed     ErrorCode = "AZURE_GROUP_CREATION_FAILED"
	ErrCodeAzureGroupMembersFailed      ErrorCode = "AZURE_GROUP_MEMBERS_FAILED"
	ErrCodeEnterpriseAppConfigFailed    ErrorCode = "ENTERPRISE_APP_CONFIG_FAILED"
	ErrCodeProvisioningFailed           ErrorCode = "PROVISIONING_FAILED"
	ErrCodeProvisioningTimeout          ErrorCode = "PROVISIONING_TIMEOUT"
	ErrCodeAwsSyncVerificationFailed    ErrorCode = "AWS_SYNC_VERIFICATION_FAILED"
	ErrCodeAwsSyncTimeout               ErrorCode = "AWS_SYNC_TIMEOUT"
	ErrCodeAwsPermissionSetCreateFailed ErrorCode = "AWS_PERMISSION_SET_CREATION_FAILED"
	ErrCodeAwsAccountAssignmentFailed   ErrorCode = "AWS_ACCOUNT_ASSIGNMENT_FAILED"
	ErrCodeEndToEndValidationFailed     ErrorCode = "END_TO_END_VALIDATION_FAILED"
	ErrCodeAssignmentFailed             ErrorCode = "ASSIGNMENT_FAILED"

	// Bulk operations: reserved for pre-execution batch failures only;
	// per-item execution failures carry ASSIGNMENT_FAILED.
	ErrCodeBulkAssignmentFailed ErrorCode = "BULK_ASSIGNMENT_FAILED"

	// Rollback: non-fatal, attached to the record, never re-raised.
	ErrCodeRollbackPartialFailure ErrorCode = "ROLLBACK_PARTIAL_FAILURE"

	// Operation-level lookup failures.
	ErrCodeOperationNotFound        ErrorCode = "OPERATION_NOT_FOUND"
	ErrCodeOperationNotRollbackable ErrorCode = "OPERATION_NOT_ROLLBACKABLE"
)

// OperationError is one entry in an operation's ordered error list. It
// carries enough structured context to diagnose which phase failed and why
// without inspecting logs.
type OperationError struct {
	Code      ErrorCode         `json:"code"`
	Message   string            `json:"message"`
	Phase     string            `json:"phase,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Error implements the error interface.
func (e OperationError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Phase, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewOperationError builds a timestamped operation error.
func NewOperationError(code ErrorCode, phase, message string) OperationError {
	return OperationError{
		Code:      code,
		Message:   message,
		Phase:     phase,
		Timestamp: time.Now().UTC(),
	}
}

// WithContext attaches a structured context key/value pair and returns the
// error for chaining.
func (e OperationError) WithContext(key, value string) OperationError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}
