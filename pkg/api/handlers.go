package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/httputil"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

// createGrant handles POST /api/v1/grants
func (s *Server) createGrant(w http.ResponseWriter, r *http.Request) {
	var req grant.AccessGrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.orch.CreateAccessGrant(r.Context(), req)
	if err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, result)
}

// listGrants handles GET /api/v1/grants
func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	env := grant.Environment(httputil.ParseQueryString(r, "environment", ""))
	if env != "" && !env.Valid() {
		httputil.WriteBadRequest(w, "unknown environment: "+string(env))
		return
	}

	grants, err := s.orch.ListAccessGrants(r.Context(), orchestrator.GrantFilter{Environment: env})
	if err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, GrantListResponse{Grants: grants, Count: len(grants)})
}

// validateGrant handles GET /api/v1/grants/{name}/validate
func (s *Server) validateGrant(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	report, err := s.orch.ValidateAccessGrant(r.Context(), name)
	if err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, report)
}

// createAssignment handles POST /api/v1/assignments
func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.AssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	op, err := s.orch.CreateAssignment(r.Context(), req)
	if err != nil {
		s.writeWorkflowError(w, r, err, op)
		return
	}
	httputil.WriteCreated(w, op)
}

// bulkAssign handles POST /api/v1/assignments/bulk
func (s *Server) bulkAssign(w http.ResponseWriter, r *http.Request) {
	var req BulkAssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	op, err := s.orch.BulkAssign(r.Context(), req.Assignments)
	if err != nil {
		s.writeWorkflowError(w, r, err, op)
		return
	}
	httputil.WriteCreated(w, op)
}

// listOperations handles GET /api/v1/operations
func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter := history.ListFilter{
		Status: grant.OperationStatus(httputil.ParseQueryString(r, "status", "")),
		Kind:   grant.OperationKind(httputil.ParseQueryString(r, "kind", "")),
		Limit:  limit,
	}

	ops, err := s.orch.ListOperations(r.Context(), filter)
	if err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, OperationListResponse{Operations: ops, Count: len(ops)})
}

// getOperation handles GET /api/v1/operations/{id}
func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	op, err := s.orch.GetOperationStatus(r.Context(), id)
	if err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, op)
}

// rollbackOperation handles POST /api/v1/operations/{id}/rollback
func (s *Server) rollbackOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.orch.RollbackOperation(r.Context(), id); err != nil {
		s.writeWorkflowError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, RollbackResponse{
		OperationID: id,
		Status:      string(grant.OperationRolledBack),
	})
}

// listTemplates handles GET /api/v1/templates
func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	names := s.templates.Names()
	infos := make([]TemplateInfo, 0, len(names))
	for _, name := range names {
		tpl, ok := s.templates.Get(name)
		if !ok {
			continue
		}
		infos = append(infos, TemplateInfo{
			Name:              name,
			Description:       tpl.Description,
			ManagedPolicyARNs: tpl.ManagedPolicyARNs,
			SessionDuration:   tpl.SessionDuration,
		})
	}
	httputil.WriteSuccess(w, TemplateListResponse{Templates: infos, Count: len(infos)})
}

// writeWorkflowError maps a workflow error onto an HTTP status and body.
// When an operation record exists it rides along so callers can inspect
// the full error list and per-assignment statuses.
func (s *Server) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error, op *grant.AssignmentOperation) {
	var opErr grant.OperationError
	if !errors.As(err, &opErr) {
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w, err)
		return
	}

	body := OperationErrorResponse{
		Error:     string(opErr.Code),
		Message:   opErr.Message,
		Phase:     opErr.Phase,
		Context:   opErr.Context,
		Operation: op,
	}
	httputil.WriteJSON(w, statusForCode(opErr.Code), body)
}

// statusForCode maps workflow error codes onto HTTP statuses. Codes that
// reject the request before execution map to 400, conflicts and
// non-rollbackable operations to 409, unknown operations to 404, and
// execution failures to 500.
func statusForCode(code grant.ErrorCode) int {
	switch code {
	case grant.ErrCodeRequestValidationFailed,
		grant.ErrCodeGroupValidationFailed,
		grant.ErrCodeBulkAssignmentFailed:
		return http.StatusBadRequest
	case grant.ErrCodeConflictsDetected,
		grant.ErrCodeOperationNotRollbackable:
		return http.StatusConflict
	case grant.ErrCodeOperationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
