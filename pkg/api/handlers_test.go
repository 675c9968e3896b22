package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

func TestCreateGrantEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	result := env.createGrant(t)

	assert.Equal(t, "CE-AWS-Dev-AG-0042", result.GroupName)
	require.NotNil(t, result.Operation)
	assert.Equal(t, grant.OperationCompleted, result.Operation.Status)
	assert.True(t, result.ValidationResults.UsersCanAccess)
}

func TestCreateGrantEndpointValidationFailure(t *testing.T) {
	env := newAPIEnv(t)

	body := validGrantBody()
	body.TicketID = "TICKET-42"
	w := env.do(t, "POST", "/api/v1/grants", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errBody OperationErrorResponse
	decodeInto(t, w, &errBody)
	assert.Equal(t, string(grant.ErrCodeRequestValidationFailed), errBody.Error)
}

func TestCreateGrantEndpointMalformedJSON(t *testing.T) {
	env := newAPIEnv(t)

	req := env.do(t, "POST", "/api/v1/grants", nil)

	assert.Equal(t, http.StatusBadRequest, req.Code)
}

func TestListGrantsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createGrant(t)

	w := env.do(t, "GET", "/api/v1/grants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list GrantListResponse
	decodeInto(t, w, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "CE-AWS-Dev-AG-0042", list.Grants[0].GroupName)
	assert.Equal(t, grant.EnvironmentDev, list.Grants[0].Environment)

	w = env.do(t, "GET", "/api/v1/grants?environment=QA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &list)
	assert.Zero(t, list.Count)

	w = env.do(t, "GET", "/api/v1/grants?environment=Bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateGrantEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	result := env.createGrant(t)

	w := env.do(t, "GET", "/api/v1/grants/"+result.GroupName+"/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report grant.GrantValidationReport
	decodeInto(t, w, &report)
	assert.True(t, report.Healthy())
	assert.Equal(t, "AG-0042", report.TicketID)
}

func TestValidateGrantEndpointMalformedName(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "GET", "/api/v1/grants/Engineering-All/validate", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errBody OperationErrorResponse
	decodeInto(t, w, &errBody)
	assert.Equal(t, string(grant.ErrCodeRequestValidationFailed), errBody.Error)
}

func TestValidateGrantEndpointMissingGroup(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "GET", "/api/v1/grants/CE-AWS-Dev-AG-0099/validate", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var report grant.GrantValidationReport
	decodeInto(t, w, &report)
	assert.False(t, report.GroupValid)
	assert.Equal(t, "not found", report.Details["group"])
}

func TestCreateAssignmentEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	ref := env.seedAssignmentTargets(t, "g1", "CE-AWS-Dev-AG-0100")

	w := env.do(t, "POST", "/api/v1/assignments", orchestrator.AssignmentRequest{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: ref,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var op grant.AssignmentOperation
	decodeInto(t, w, &op)
	assert.Equal(t, grant.OperationCompleted, op.Status)
	require.Len(t, op.Assignments, 1)
	assert.Equal(t, grant.AssignmentStatusActive, op.Assignments[0].Status)
}

func TestCreateAssignmentEndpointConflict(t *testing.T) {
	env := newAPIEnv(t)
	ref := env.seedAssignmentTargets(t, "g1", "CE-AWS-Dev-AG-0100")
	req := orchestrator.AssignmentRequest{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: ref,
	}

	w := env.do(t, "POST", "/api/v1/assignments", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, "POST", "/api/v1/assignments", req)
	require.Equal(t, http.StatusConflict, w.Code)
	var errBody OperationErrorResponse
	decodeInto(t, w, &errBody)
	assert.Equal(t, string(grant.ErrCodeConflictsDetected), errBody.Error)
	require.NotNil(t, errBody.Operation)
	assert.Equal(t, grant.OperationFailed, errBody.Operation.Status)
}

func TestCreateAssignmentEndpointValidation(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "POST", "/api/v1/assignments", orchestrator.AssignmentRequest{
		GroupID: "g1",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errBody OperationErrorResponse
	decodeInto(t, w, &errBody)
	assert.Equal(t, string(grant.ErrCodeRequestValidationFailed), errBody.Error)
}

func TestBulkAssignEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	ref1 := env.seedAssignmentTargets(t, "g1", "CE-AWS-Dev-AG-0100")
	ref2 := env.seedAssignmentTargets(t, "g2", "CE-AWS-Dev-AG-0101")

	w := env.do(t, "POST", "/api/v1/assignments/bulk", BulkAssignRequest{
		Assignments: []orchestrator.AssignmentRequest{
			{GroupID: "g1", AccountID: "111111111111", PermissionSetRef: ref1},
			{GroupID: "g2", AccountID: "111111111111", PermissionSetRef: ref2},
		},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var op grant.AssignmentOperation
	decodeInto(t, w, &op)
	assert.Equal(t, grant.OperationCompleted, op.Status)
	assert.Len(t, op.Assignments, 2)
}

func TestBulkAssignEndpointEmptyBatch(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "POST", "/api/v1/assignments/bulk", BulkAssignRequest{})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errBody OperationErrorResponse
	decodeInto(t, w, &errBody)
	assert.Equal(t, string(grant.ErrCodeBulkAssignmentFailed), errBody.Error)
}

func TestListOperationsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createGrant(t)

	w := env.do(t, "GET", "/api/v1/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list OperationListResponse
	decodeInto(t, w, &list)
	require.Equal(t, 1, list.Count)

	w = env.do(t, "GET", "/api/v1/operations?status=FAILED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &list)
	assert.Zero(t, list.Count)

	w = env.do(t, "GET", "/api/v1/operations?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOperationEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	result := env.createGrant(t)

	w := env.do(t, "GET", "/api/v1/operations/"+result.Operation.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var op grant.AssignmentOperation
	decodeInto(t, w, &op)
	assert.Equal(t, result.Operation.ID, op.ID)

	w = env.do(t, "GET", "/api/v1/operations/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRollbackOperationEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	result := env.createGrant(t)

	w := env.do(t, "POST", "/api/v1/operations/"+result.Operation.ID+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp RollbackResponse
	decodeInto(t, w, &resp)
	assert.Equal(t, string(grant.OperationRolledBack), resp.Status)

	// A second rollback of the same operation is rejected.
	w = env.do(t, "POST", "/api/v1/operations/"+result.Operation.ID+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRollbackOperationEndpointUnknownID(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "POST", "/api/v1/operations/nope/rollback", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTemplatesEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "GET", "/api/v1/templates", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var list TemplateListResponse
	decodeInto(t, w, &list)
	require.Equal(t, 2, list.Count)

	names := []string{list.Templates[0].Name, list.Templates[1].Name}
	assert.Contains(t, names, "readonly")
	assert.Contains(t, names, "poweruser")
}

func TestHealthzEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, "DELETE", "/api/v1/grants", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
