package api

import (
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

// BulkAssignRequest is the body of POST /api/v1/assignments/bulk.
type BulkAssignRequest struct {
	Assignments []orchestrator.AssignmentRequest `json:"assignments"`
}

// OperationErrorResponse is the error body for failed workflow requests.
// Operation is attached when a record was produced before the failure.
type OperationErrorResponse struct {
	Error     string                     `json:"error"`
	Message   string                     `json:"message"`
	Phase     string                     `json:"phase,omitempty"`
	Context   map[string]string          `json:"context,omitempty"`
	Operation *grant.AssignmentOperation `json:"operation,omitempty"`
}

// GrantListResponse is the body of GET /api/v1/grants.
type GrantListResponse struct {
	Grants []orchestrator.AccessGrantSummary `json:"grants"`
	Count  int                               `json:"count"`
}

// OperationListResponse is the body of GET /api/v1/operations.
type OperationListResponse struct {
	Operations []*grant.AssignmentOperation `json:"operations"`
	Count      int                          `json:"count"`
}

// RollbackResponse is the body of a successful rollback request.
type RollbackResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

// TemplateInfo is one catalog entry in GET /api/v1/templates.
type TemplateInfo struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	ManagedPolicyARNs []string `json:"managed_policy_arns,omitempty"`
	SessionDuration   string   `json:"session_duration,omitempty"`
}

// TemplateListResponse is the body of GET /api/v1/templates.
type TemplateListResponse struct {
	Templates []TemplateInfo `json:"templates"`
	Count     int            `json:"count"`
}
