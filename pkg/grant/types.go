package grant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Environment identifies one of the isolated deployment environments a
// grant can target.
type Environment string

const (
	EnvironmentDev     Environment = "Dev"
	EnvironmentQA      Environment = "QA"
	EnvironmentStaging Environment = "Staging"
	EnvironmentProd    Environment = "Prod"
)

// Environments lists all valid environments in display order.
var Environments = []Environment{
	EnvironmentDev,
	EnvironmentQA,
	EnvironmentStaging,
	EnvironmentProd,
}

// Valid reports whether the environment is one of the known values.
func (e Environment) Valid() bool {
	switch e {
	case EnvironmentDev, EnvironmentQA, EnvironmentStaging, EnvironmentProd:
		return true
	}
	return false
}

// GroupNamePrefix is the fixed two-component prefix for derived group names.
const GroupNamePrefix = "CE-AWS"

// TicketIDPattern validates access grant ticket identifiers (AG- followed
// by 3-4 digits).
var TicketIDPattern = regexp.MustCompile(`^AG-\d{3,4}$`)

// sessionDurationPattern matches the ISO-8601 duration subset accepted for
// permission set session durations (PT<n>H or PT<n>M).
var sessionDurationPattern = regexp.MustCompile(`^PT\d+[HM]$`)

// ValidSessionDuration reports whether s is an accepted session duration
// string (PT<n>H / PT<n>M).
func ValidSessionDuration(s string) bool {
	return sessionDurationPattern.MatchString(s)
}

// CustomPermissionSpec describes an explicitly specified permission set,
// used when a request does not reference a named template.
type CustomPermissionSpec struct {
	ManagedPolicyARNs    []string `json:"managed_policy_arns,omitempty"`
	InlinePolicyDocument string   `json:"inline_policy_document,omitempty"`
	SessionDuration      string   `json:"session_duration,omitempty"`
}

// AccessGrantRequest is the immutable input to CreateAccessGrant.
type AccessGrantRequest struct {
	Environment        Environment           `json:"environment"`
	TicketID           string                `json:"ticket_id"`
	Owners             []string              `json:"owners"`
	Members            []string              `json:"members"`
	PermissionTemplate string                `json:"permission_template,omitempty"`
	CustomPermissions  *CustomPermissionSpec `json:"custom_permissions,omitempty"`
	Description        string                `json:"description,omitempty"`
}

// GroupName derives the identity group name for the request:
// CE-AWS-<Environment>-<TicketID>.
func (r AccessGrantRequest) GroupName() string {
	return fmt.Sprintf("%s-%s-%s", GroupNamePrefix, r.Environment, r.TicketID)
}

// AssignmentStatus is the lifecycle status of a single group assignment.
type AssignmentStatus string

const (
	AssignmentStatusPending AssignmentStatus = "PENDING"
	AssignmentStatusActive  AssignmentStatus = "ACTIVE"
	AssignmentStatusFailed  AssignmentStatus = "FAILED"
)

// GroupAssignment represents one identity-group -> permission-set -> account
// triple. It is created by the orchestrator and mutated only by phase
// transitions.
type GroupAssignment struct {
	GroupID          string           `json:"group_id"`
	GroupName        string           `json:"group_name"`
	AccountID        string           `json:"account_id"`
	PermissionSetRef string           `json:"permission_set_ref"`
	Status           AssignmentStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	LastValidatedAt  *time.Time       `json:"last_validated_at,omitempty"`
}

// OperationKind categorizes an assignment operation.
type OperationKind string

const (
	OperationCreate OperationKind = "CREATE"
	OperationDelete OperationKind = "DELETE"
	OperationUpdate OperationKind = "UPDATE"
)

// OperationStatus is the overall status of an assignment operation.
type OperationStatus string

const (
	OperationInProgress OperationStatus = "IN_PROGRESS"
	OperationCompleted  OperationStatus = "COMPLETED"
	OperationFailed     OperationStatus = "FAILED"
	OperationRolledBack OperationStatus = "ROLLED_BACK"
)

// AssignmentOperation is the unit of work and audit record produced by the
// orchestrator. Append-only after creation except for status, end time and
// per-assignment status updates.
type AssignmentOperation struct {
	ID          string            `json:"id"`
	Kind        OperationKind     `json:"kind"`
	Assignments []GroupAssignment `json:"assignments"`
	Status      OperationStatus   `json:"status"`
	Errors      []OperationError  `json:"errors,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ConflictKind categorizes a detected assignment conflict.
type ConflictKind string

const (
	ConflictDuplicateAssignment ConflictKind = "DUPLICATE_ASSIGNMENT"
	ConflictPermissionOverlap   ConflictKind = "PERMISSION_OVERLAP"
	ConflictGroupNotSynced      ConflictKind = "GROUP_NOT_SYNCED"
)

// Conflict is a transient detection result; it is reported to callers but
// never persisted.
type Conflict struct {
	Kind             ConflictKind `json:"kind"`
	GroupID          string       `json:"group_id"`
	AccountID        string       `json:"account_id"`
	PermissionSetRef string       `json:"permission_set_ref"`
	Message          string       `json:"message"`
}

// AccessGrantResult is returned by CreateAccessGrant: the derived group
// name, the operation record, and the end-to-end validation outcome.
type AccessGrantResult struct {
	GroupName         string               `json:"group_name"`
	Operation         *AssignmentOperation `json:"operation"`
	ValidationResults ValidationResults    `json:"validation_results"`
}

// ValidationResults is the four-flag end-to-end validation report.
// UsersCanAccess is the logical AND of the other three flags.
type ValidationResults struct {
	GroupSynced          bool `json:"group_synced"`
	PermissionSetCreated bool `json:"permission_set_created"`
	AssignmentActive     bool `json:"assignment_active"`
	UsersCanAccess       bool `json:"users_can_access"`
}

// GrantValidationReport is the combined report returned by
// ValidateAccessGrant for an existing grant name.
type GrantValidationReport struct {
	GroupName        string            `json:"group_name"`
	Environment      Environment       `json:"environment"`
	TicketID         string            `json:"ticket_id"`
	GroupValid       bool              `json:"group_valid"`
	GroupSynced      bool              `json:"group_synced"`
	PermissionSetOK  bool              `json:"permission_set_ok"`
	AssignmentActive bool              `json:"assignment_active"`
	Details          map[string]string `json:"details,omitempty"`
}

// Healthy reports whether every validation flag in the report is true.
func (r GrantValidationReport) Healthy() bool {
	return r.GroupValid && r.GroupSynced && r.PermissionSetOK && r.AssignmentActive
}

// ParseGroupName splits a derived group name back into its environment and
// ticket components. The name must have exactly four hyphen-separated
// segments starting with the fixed two-component prefix.
func ParseGroupName(name string) (Environment, string, error) {
	parts := strings.Split(name, "-")
	// CE-AWS-<Env>-AG-<digits>: the two-component prefix plus the
	// environment, then the two halves of the ticket id.
	if len(parts) != 5 {
		return "", "", fmt.Errorf("group name %q does not match %s-<Environment>-AG-<digits>", name, GroupNamePrefix)
	}
	if parts[0]+"-"+parts[1] != GroupNamePrefix {
		return "", "", fmt.Errorf("group name %q does not start with %s-", name, GroupNamePrefix)
	}
	env := Environment(parts[2])
	if !env.Valid() {
		return "", "", fmt.Errorf("group name %q has unknown environment %q", name, parts[2])
	}
	ticket := parts[3] + "-" + parts[4]
	if !TicketIDPattern.MatchString(ticket) {
		return "", "", fmt.Errorf("group name %q has invalid ticket id %q", name, ticket)
	}
	return env, ticket, nil
}
